package expander

import (
	"fmt"

	"github.com/kennyfs/KataCoffee/book"
	"github.com/kennyfs/KataCoffee/searcher"
)

// SearchAndUpdateNodeValues runs a short search restricted to moves outside
// the book to refresh a node's "best move not yet booked" summary. Terminal
// positions get exact game-over values; nodes with nothing left outside the
// book get sentinel values and stop being expandable.
func (e *Expander) SearchAndUpdateNodeValues(s *searcher.Search, node book.Node) error {
	hist, _, frameNode, ok := e.book.HistoryReachingHere(node)
	if !ok {
		return fmt.Errorf("%w: cannot reconstruct history for %s while refreshing values", book.ErrIntegrity, node.Hash())
	}
	node = frameNode

	if hist.GameFinished {
		e.setNodeValuesTerminal(node, hist)
		return nil
	}

	avoid, _, hasNewMoves := e.findNewMoves(hist, node, false)
	if !hasNewMoves {
		e.setNodeValuesNoMoves(node)
		return nil
	}

	params := e.params
	if params.MaxVisits > e.settings.MaxVisitsForLeaves {
		params.MaxVisits = e.settings.MaxVisitsForLeaves
	}
	s.SetPosition(node.Pla(), hist)
	s.SetRootSymmetries(e.book.ValidSymmetries(node))
	e.applyParamsCompensatingCpuct(s, params, hist, node.Pla(), avoid)
	s.RunWholeSearch(e.stop)

	if e.settings.LogSearchInfo {
		values, _ := s.NodeValues(s.RootNode())
		e.logger.Info().
			Str("hash", node.Hash().String()).
			Int64("visits", values.Visits).
			Float64("winloss", values.WinLossValue).
			Msg("quick search on remaining moves")
	}

	e.setNodeValuesFromSearch(s, node, s.RootNode(), hist, avoid)
	return nil
}
