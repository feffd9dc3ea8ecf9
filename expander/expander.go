// Package expander drives book growth: it picks expandable nodes, runs
// bounded searches at them through worker-owned search handles, splices the
// results back into the book, and keeps the "best move outside the book"
// statistics fresh.
package expander

import (
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kennyfs/KataCoffee/book"
	"github.com/kennyfs/KataCoffee/game"
	"github.com/kennyfs/KataCoffee/metrics"
	"github.com/kennyfs/KataCoffee/searcher"
)

// Settings are the expansion-specific knobs beyond the base search params.
type Settings struct {
	MinTreeVisitsToRecord          int64
	MaxDepthToRecord               int
	MaxVisitsForLeaves             int64
	WideRootNoiseBookExplore       float64
	CpuctExplorationLogBookExplore float64
	LogSearchInfo                  bool
}

// Expander splices search results into one shared book. Each worker calls it
// with its own search handle; the book's own locking covers every structural
// step.
type Expander struct {
	book     *book.Book
	eval     searcher.Evaluator
	params   searcher.Params
	settings Settings
	logger   zerolog.Logger
	stop     *atomic.Bool
	metrics  metrics.Collector
}

func New(
	b *book.Book,
	eval searcher.Evaluator,
	params searcher.Params,
	settings Settings,
	logger zerolog.Logger,
	stop *atomic.Bool,
	collector metrics.Collector,
) *Expander {
	if collector == nil {
		collector = metrics.NewDummyCollector()
	}
	return &Expander{
		book:     b,
		eval:     eval,
		params:   params,
		settings: settings,
		logger:   logger,
		stop:     stop,
		metrics:  collector,
	}
}

// findNewMoves builds the avoid set for searching at node: every legal move
// already in the book, unless the node qualifies for re-expansion, in which
// case nothing is avoided and already-searched moves are searched freshly.
// Reports whether at least one legal move remains outside the avoid set.
func (e *Expander) findNewMoves(hist *game.BoardHistory, node book.Node, allowReExpansion bool) (avoid []game.Loc, isReExpansion, hasNewMoves bool) {
	isReExpansion = allowReExpansion &&
		e.book.CanReExpand(node) &&
		e.book.RecursiveValues(node).Visits < e.book.Params().MaxVisitsForReExpansion
	pla := node.Pla()
	for _, move := range hist.LegalMoves(pla) {
		if !isReExpansion && e.book.IsMoveInBook(node, move) {
			avoid = append(avoid, move)
		} else {
			hasNewMoves = true
		}
	}
	return avoid, isReExpansion, hasNewMoves
}

// applyParamsCompensatingCpuct installs params and the avoid list on the
// search, scaling the exploration constants up by the removed policy mass so
// the search does not under-explore when most policy is avoided.
func (e *Expander) applyParamsCompensatingCpuct(s *searcher.Search, params searcher.Params, hist *game.BoardHistory, pla game.Player, avoid []game.Loc) {
	out := searcher.FullSymmetryNNOutput(hist.RecentBoard(), pla, e.eval, nil)
	avoided := make(map[game.Loc]bool, len(avoid))
	for _, l := range avoid {
		avoided[l] = true
	}
	policySum := 0.0
	for i := 0; i <= hist.RecentBoard().NumLocs(); i++ {
		l := game.Loc(i)
		if i == hist.RecentBoard().NumLocs() {
			l = game.PassLoc
		}
		if avoided[l] {
			continue
		}
		if p := out.PolicyAt(l); p > 0 {
			policySum += p
		}
	}
	policySum = math.Min(math.Max(policySum, 1e-5), 1.0)
	scale := math.Pow(policySum, 1.0/(4.0*params.WideRootNoise+1.0))
	params.CPUctExploration /= scale
	params.CPUctExplorationLog /= scale
	s.SetParams(params)
	s.SetAvoidMoves(avoid)
}

// Sentinel values biased against the node's side to move, for a node with no
// legal moves left outside the book.
const sentinelValue = 1e20

func (e *Expander) setNodeValuesNoMoves(node book.Node) {
	var tv book.BookValues
	if node.Pla() == game.White {
		tv.WinLossValue = -sentinelValue
		tv.ScoreMean = -sentinelValue
		tv.SharpScoreMean = -sentinelValue
	} else {
		tv.WinLossValue = sentinelValue
		tv.ScoreMean = sentinelValue
		tv.SharpScoreMean = sentinelValue
	}
	e.book.SetThisValuesNotInBook(node, tv)
	e.book.MarkCannotExpand(node)
}

func (e *Expander) setNodeValuesTerminal(node book.Node, hist *game.BoardHistory) {
	var wl float64
	switch hist.Winner {
	case game.White:
		wl = 1
	case game.Black:
		wl = -1
	}
	visits := float64(e.settings.MaxVisitsForLeaves)
	e.book.SetThisValuesNotInBook(node, book.BookValues{
		WinLossValue:   wl,
		ScoreMean:      hist.FinalScore,
		SharpScoreMean: hist.FinalScore,
		MaxPolicy:      1.0,
		Weight:         visits,
		Visits:         visits,
	})
	e.book.MarkCannotExpand(node)
}

// setNodeValuesFromSearch writes a finished search's aggregates into the
// node's BookValues. The stored max policy is the maximum full-symmetry
// policy over moves not in the avoid set, so it is independent of the search
// root's orientation.
func (e *Expander) setNodeValuesFromSearch(
	s *searcher.Search,
	node book.Node,
	tnode *searcher.TreeNode,
	boardHist *game.BoardHistory,
	avoid []game.Loc,
) {
	values, ok := s.NodeValues(tnode)
	if !ok {
		return
	}
	sharp, ok := s.SharpScore(tnode)
	if !ok {
		sharp = values.ExpectedScore
	}
	wlErr, scoreErr := s.ShallowAverageShortTermErrors(tnode)

	board := boardHist.RecentBoard()
	out := searcher.FullSymmetryNNOutput(board, node.Pla(), e.eval, nil)
	avoided := make(map[game.Loc]bool, len(avoid))
	for _, l := range avoid {
		avoided[l] = true
	}
	maxPolicy := 0.0
	for i := 0; i <= board.NumLocs(); i++ {
		l := game.Loc(i)
		if i == board.NumLocs() {
			l = game.PassLoc
		}
		if avoided[l] {
			continue
		}
		if p := out.PolicyAt(l); p > maxPolicy {
			maxPolicy = p
		}
	}

	e.book.SetThisValuesNotInBook(node, book.BookValues{
		WinLossValue:   values.WinLossValue,
		ScoreMean:      values.ExpectedScore,
		SharpScoreMean: sharp,
		WinLossError:   wlErr,
		ScoreError:     scoreErr,
		ScoreStdev:     values.ScoreStdev,
		MaxPolicy:      maxPolicy,
		Weight:         values.Weight,
		Visits:         float64(values.Visits),
	})
}

// expandFromSearchResult recursively splices an MCTS subtree into the book
// down to maxDepth, recording children that have enough visits or are the
// best move. Returns whether any move was added directly to node.
func (e *Expander) expandFromSearchResult(
	s *searcher.Search,
	tnode *searcher.TreeNode,
	node book.Node,
	hist *game.BoardHistory,
	maxDepth int,
	toSearch, toUpdate map[book.Hash]bool,
	visited map[*searcher.TreeNode]bool,
) bool {
	if maxDepth <= 0 {
		return false
	}
	// Transpositions inside the search graph must not recurse forever.
	if visited[tnode] {
		return false
	}
	visited[tnode] = true

	locs, selectionValues := s.PlaySelectionValues(tnode)
	if len(locs) == 0 {
		return false
	}
	bestLoc := locs[0]
	bestValue := selectionValues[0]
	for i := 1; i < len(locs); i++ {
		if selectionValues[i] > bestValue {
			bestValue = selectionValues[i]
			bestLoc = locs[i]
		}
	}

	// Full-symmetry policy in this node's frame, so the recorded raw policy
	// does not depend on the search root's orientation.
	fullSym := searcher.FullSymmetryNNOutput(hist.RecentBoard(), node.Pla(), e.eval, nil)

	anyRecursion := false
	anythingAdded := false
	for _, child := range tnode.Children {
		if child.Visits == 0 {
			continue
		}
		moveLoc := child.MoveFromParent
		if moveLoc != bestLoc && child.Visits < e.settings.MinTreeVisitsToRecord {
			continue
		}
		// Keeps the original generator's behavior: the recorded policy is
		// looked up at the best child's location for every spliced child.
		rawPolicy := fullSym.PolicyAt(bestLoc)

		var bookChild book.Node
		nextHist := hist.Copy()
		if e.book.IsMoveInBook(node, moveLoc) {
			bookChild = e.book.Follow(node, moveLoc)
			if !nextHist.IsLegal(moveLoc, node.Pla()) {
				e.logger.Warn().
					Str("move", game.LocString(moveLoc, hist.RecentBoard().XSize, hist.RecentBoard().YSize)).
					Str("hash", node.Hash().String()).
					Msg("booked move is illegal here, marking node non-expandable")
				e.book.MarkCannotExpand(node)
				continue
			}
			if err := nextHist.MakeMove(moveLoc, node.Pla()); err != nil {
				continue
			}
			// Overwrite a leaf child's values if this search saw it deeper.
			if e.book.NumUniqueMovesInBook(bookChild) == 0 &&
				e.book.RecursiveValues(bookChild).Visits < float64(child.Visits) {
				e.setNodeValuesFromSearch(s, bookChild, child, nextHist, nil)
			}
		} else {
			added, isTransposition, err := e.book.PlayAndAddMove(node, nextHist, moveLoc, rawPolicy)
			if err != nil {
				e.logger.Warn().
					Str("move", game.LocString(moveLoc, hist.RecentBoard().XSize, hist.RecentBoard().YSize)).
					Str("hash", node.Hash().String()).
					Err(err).
					Msg("could not add move, marking node non-expandable")
				e.book.MarkCannotExpand(node)
				continue
			}
			bookChild = added
			toUpdate[bookChild.Hash()] = true
			e.logger.Debug().
				Str("parent", node.Hash().String()).
				Str("child", bookChild.Hash().String()).
				Str("move", game.LocString(moveLoc, hist.RecentBoard().XSize, hist.RecentBoard().YSize)).
				Msg("adding book edge")
			anythingAdded = true

			// A transposed child keeps its own values unless it is a leaf we
			// just searched deeper than its whole subtree.
			if !isTransposition ||
				(e.book.NumUniqueMovesInBook(bookChild) == 0 &&
					e.book.RecursiveValues(bookChild).Visits < float64(child.Visits)) {
				e.setNodeValuesFromSearch(s, bookChild, child, nextHist, nil)
			}
		}

		if child.Visits >= e.settings.MinTreeVisitsToRecord {
			anyRecursion = true
			e.expandFromSearchResult(s, child, bookChild, nextHist, maxDepth-1, toSearch, toUpdate, visited)
		}
	}

	if anythingAdded || anyRecursion {
		toUpdate[node.Hash()] = true
	}
	if anythingAdded {
		toSearch[node.Hash()] = true
	}
	return anythingAdded
}

// Expand runs the full expansion procedure on one selected node and returns
// the set of nodes whose values changed, for propagation.
func (e *Expander) Expand(s *searcher.Search, node book.Node) []book.Node {
	hist, moveHistory, frameNode, ok := e.book.HistoryReachingHere(node)
	if !ok {
		e.logger.Warn().
			Str("hash", node.Hash().String()).
			Msg("failed to reconstruct history reaching node; hash collision or corruption, marking non-expandable")
		e.book.MarkCannotExpand(node)
		return nil
	}

	// Canonical-hash invariant: walking the recorded moves must reproduce
	// the node's hash.
	if e.book.BookVersion >= 2 {
		hash, _, _ := book.GetHashAndSymmetry(hist, e.book.RepBound(), e.book.BookVersion)
		if hash != node.Hash() {
			e.logger.Warn().
				Str("hash", node.Hash().String()).
				Str("walked", hash.String()).
				Int("moves", len(moveHistory)).
				Msg("integrity check failed walking to node, marking non-expandable")
			e.book.MarkCannotExpand(node)
			return nil
		}
	}

	node = frameNode

	if hist.GameFinished {
		e.setNodeValuesTerminal(node, hist)
		return []book.Node{node}
	}

	e.logger.Info().
		Str("hash", node.Hash().String()).
		Float64("cost", e.book.RecursiveValues(node).TotalExpansionCost).
		Msg("expanding node")

	avoid, isReExpansion, hasNewMoves := e.findNewMoves(hist, node, true)
	if !hasNewMoves {
		e.setNodeValuesNoMoves(node)
		return []book.Node{node}
	}

	params := e.params
	params.WideRootNoise = e.settings.WideRootNoiseBookExplore
	params.CPUctExplorationLog = e.settings.CpuctExplorationLogBookExplore
	s.SetPosition(node.Pla(), hist)
	s.SetRootSymmetries(e.book.ValidSymmetries(node))
	e.applyParamsCompensatingCpuct(s, params, hist, node.Pla(), avoid)
	s.RunWholeSearch(e.stop)

	if e.stop != nil && e.stop.Load() {
		// Discard the partial tree; the node stays expandable.
		return nil
	}

	toSearch := make(map[book.Hash]bool)
	toUpdate := make(map[book.Hash]bool)
	visited := make(map[*searcher.TreeNode]bool)
	anythingAdded := e.expandFromSearchResult(
		s, s.RootNode(), node, hist, e.settings.MaxDepthToRecord, toSearch, toUpdate, visited)
	// The expanded node always needs its outside-book values refreshed, even
	// when a re-expansion found every searched move already booked.
	toSearch[node.Hash()] = true
	toUpdate[node.Hash()] = true

	e.metrics.AddExpansion()
	e.metrics.AddMovesAdded(len(toUpdate))

	// Refresh every node whose avoid set changed.
	for hash := range toSearch {
		refreshNode := e.book.ByHash(hash)
		if refreshNode.IsNil() {
			continue
		}
		if err := e.SearchAndUpdateNodeValues(s, refreshNode); err != nil {
			e.logger.Error().Err(err).Str("hash", hash.String()).Msg("value refresh failed")
		}
		e.metrics.AddRefresh()
	}

	changed := make([]book.Node, 0, len(toUpdate)+1)
	for hash := range toUpdate {
		if n := e.book.ByHash(hash); !n.IsNil() {
			changed = append(changed, n)
		}
	}

	// Only nodes that were discovered transitively may be re-expanded; after
	// a primary expansion this one no longer qualifies.
	e.book.MarkReExpanded(node)
	changed = append(changed, node)

	if !anythingAdded && !isReExpansion {
		e.logger.Warn().
			Str("hash", node.Hash().String()).
			Msg("search found no new moves despite legal moves outside the book, marking non-expandable")
		e.book.MarkCannotExpand(node)
	}
	return changed
}
