package searcher

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kennyfs/KataCoffee/game"
)

func newTestSearch(maxVisits int64) *Search {
	params := DefaultParams()
	params.MaxVisits = maxVisits
	return NewSearch(params, NewHeuristicEvaluator(7), 42)
}

func TestSearchRunsToVisitCap(t *testing.T) {
	s := newTestSearch(50)
	hist := game.NewBoardHistory(game.NewBoard(5, 5), game.Black, game.DefaultRules())
	s.SetPosition(game.Black, hist)
	s.RunWholeSearch(nil)

	root := s.RootNode()
	require.EqualValues(t, 50, root.Visits)
	values, ok := s.NodeValues(root)
	require.True(t, ok)
	require.EqualValues(t, 50, values.Visits)
	require.GreaterOrEqual(t, values.WinLossValue, -1.0)
	require.LessOrEqual(t, values.WinLossValue, 1.0)
}

func TestSearchHonorsStopFlag(t *testing.T) {
	s := newTestSearch(1 << 30)
	hist := game.NewBoardHistory(game.NewBoard(5, 5), game.Black, game.DefaultRules())
	s.SetPosition(game.Black, hist)
	var stop atomic.Bool
	stop.Store(true)
	s.RunWholeSearch(&stop)
	require.EqualValues(t, 0, s.RootNode().Visits, "pre-set stop flag halts before any playout")
}

func TestSearchAvoidMoves(t *testing.T) {
	s := newTestSearch(80)
	hist := game.NewBoardHistory(game.NewBoard(3, 3), game.Black, game.DefaultRules())
	s.SetPosition(game.Black, hist)
	center := game.MakeLoc(1, 1, 3)
	s.SetAvoidMoves([]game.Loc{center})
	s.RunWholeSearch(nil)

	for _, c := range s.RootNode().Children {
		require.NotEqual(t, center, c.MoveFromParent, "avoided move must not appear at the root")
	}
	require.NotEmpty(t, s.RootNode().Children)
}

func TestSearchTerminalPosition(t *testing.T) {
	hist := game.NewBoardHistory(game.NewBoard(3, 3), game.Black, game.DefaultRules())
	require.NoError(t, hist.MakeMove(game.PassLoc, game.Black))
	require.NoError(t, hist.MakeMove(game.PassLoc, game.White))
	require.True(t, hist.GameFinished)

	s := newTestSearch(10)
	s.SetPosition(game.Black, hist)
	s.RunWholeSearch(nil)

	root := s.RootNode()
	require.True(t, root.Terminal)
	values, ok := s.NodeValues(root)
	require.True(t, ok)
	require.InDelta(t, hist.FinalScore, values.ExpectedScore, 1e-9)
}

func TestFullSymmetryNNOutputIsSymmetric(t *testing.T) {
	eval := NewHeuristicEvaluator(11)
	board := game.NewBoard(5, 5)
	out := FullSymmetryNNOutput(board, game.Black, eval, nil)

	// On an empty square board the averaged policy must itself be symmetric.
	for s := game.Symmetry(0); s < game.NumSymmetries; s++ {
		for i := 0; i < board.NumLocs(); i++ {
			l := game.Loc(i)
			img := game.SymLoc(s, l, 5, 5)
			require.InDelta(t, out.PolicyAt(l), out.PolicyAt(img), 1e-12, "sym %d loc %d", s, i)
		}
	}
}

func TestSharpScoreStaysInPlausibleRange(t *testing.T) {
	s := newTestSearch(100)
	hist := game.NewBoardHistory(game.NewBoard(5, 5), game.Black, game.DefaultRules())
	s.SetPosition(game.Black, hist)
	s.RunWholeSearch(nil)

	sharp, ok := s.SharpScore(s.RootNode())
	require.True(t, ok)
	values, _ := s.NodeValues(s.RootNode())
	require.InDelta(t, values.ExpectedScore, sharp, 50.0, "sharp score stays in a plausible range")
}
