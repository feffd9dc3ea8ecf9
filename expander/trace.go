package expander

import (
	"fmt"
	"sort"

	"github.com/kennyfs/KataCoffee/book"
	"github.com/kennyfs/KataCoffee/game"
	"github.com/kennyfs/KataCoffee/searcher"
)

// Raw-policy condition for dragging a sibling move along while tracing:
// noticeably higher policy than the traced move itself.
func policyBoostedOver(p, target float64) bool {
	return p > 0 && p > 1.5*target+0.05
}

// AddVariationWithoutUpdate walks one variation from another book into this
// one in add-only mode: existing edges are followed, missing ones are added
// together with any sibling whose raw policy is noticeably higher, and no
// values are written. The touched hashes are collected for a batched refresh
// afterwards.
func (e *Expander) AddVariationWithoutUpdate(targetHist *game.BoardHistory, toUpdate map[book.Hash]bool) error {
	initial := e.book.InitialBoard()
	if !targetHist.InitialBoard.Equals(initial) || targetHist.InitialPla != e.book.InitialPla() {
		return fmt.Errorf("traced variation does not start from this book's initial position")
	}

	node := e.book.Root()
	hist := e.book.InitialHist()

	for _, mv := range targetHist.Moves {
		if hist.GameFinished {
			e.logger.Info().Str("hash", node.Hash().String()).Msg("skipping rest of trace variation: game over here")
			e.book.MarkCannotExpand(node)
			break
		}
		if mv.Pla != node.Pla() {
			return fmt.Errorf("traced variation player out of sync at move %d", len(hist.Moves))
		}
		// Possibly illegal due to a rules mismatch between the books; stop
		// where we are.
		if !hist.IsLegal(mv.Loc, mv.Pla) {
			e.logger.Info().Str("hash", node.Hash().String()).Msg("skipping rest of trace variation: illegal move")
			break
		}

		if !e.book.IsMoveInBook(node, mv.Loc) {
			if !e.book.CanExpand(node) {
				e.logger.Info().Str("hash", node.Hash().String()).Msg("skipping rest of trace variation: node non-expandable")
				break
			}

			// Expensive symmetry-averaged policy query, done without holding
			// any book state.
			board := hist.RecentBoard()
			out := searcher.FullSymmetryNNOutput(board, mv.Pla, e.eval, nil)
			movePolicy := out.PolicyAt(mv.Loc)

			type boosted struct {
				loc    game.Loc
				policy float64
			}
			var extras []boosted
			for i := 0; i <= board.NumLocs(); i++ {
				l := game.Loc(i)
				if i == board.NumLocs() {
					l = game.PassLoc
				}
				if l == mv.Loc {
					continue
				}
				if p := out.PolicyAt(l); policyBoostedOver(p, movePolicy) && hist.IsLegal(l, mv.Pla) {
					extras = append(extras, boosted{loc: l, policy: p})
				}
			}
			sort.Slice(extras, func(i, j int) bool { return extras[i].policy > extras[j].policy })

			toUpdate[node.Hash()] = true

			// Another worker may have added the move in the meantime;
			// PlayAndAddMove is idempotent so adding again is safe.
			if !e.book.IsMoveInBook(node, mv.Loc) {
				child, isTransposition, err := e.book.PlayAndAddMove(node, hist.Copy(), mv.Loc, movePolicy)
				if err != nil {
					e.logger.Warn().Err(err).Str("hash", node.Hash().String()).Msg("failed to add traced move")
					break
				}
				if !child.IsNil() && !isTransposition {
					toUpdate[child.Hash()] = true
				}
			}
			for _, ex := range extras {
				if e.book.IsMoveInBook(node, ex.loc) {
					continue
				}
				child, isTransposition, err := e.book.PlayAndAddMove(node, hist.Copy(), ex.loc, ex.policy)
				if err != nil {
					continue
				}
				if !child.IsNil() && !isTransposition {
					toUpdate[child.Hash()] = true
				}
			}
		}

		if err := hist.MakeMove(mv.Loc, mv.Pla); err != nil {
			return err
		}
		node = e.book.Follow(node, mv.Loc)
		if node.IsNil() {
			return fmt.Errorf("traced edge vanished while walking")
		}
	}
	return nil
}
