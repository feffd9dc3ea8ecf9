package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistorySuperko(t *testing.T) {
	h := NewBoardHistory(NewBoard(5, 5), Black, DefaultRules())
	// Build the ko shape, then verify the recapture that would repeat the
	// position is rejected even after an intervening exchange.
	moves := []struct {
		x, y int
		pla  Player
	}{
		{1, 0, Black}, {2, 0, White},
		{0, 1, Black}, {3, 1, White},
		{1, 2, Black}, {2, 2, White},
		{2, 1, Black}, {1, 1, White}, // white takes the ko
	}
	for _, m := range moves {
		require.NoError(t, h.MakeMove(MakeLoc(m.x, m.y, 5), m.pla))
	}
	ko := MakeLoc(2, 1, 5)
	require.False(t, h.IsLegal(ko, Black), "immediate retake is illegal")

	// Black plays elsewhere, white answers: the simple-ko point clears, but
	// positional superko still forbids recreating the earlier position.
	require.NoError(t, h.MakeMove(MakeLoc(4, 4, 5), Black))
	require.NoError(t, h.MakeMove(MakeLoc(4, 3, 5), White))
	require.NoError(t, h.MakeMove(ko, Black), "retake after exchange reaches a new whole-board position")
	require.False(t, h.IsLegal(MakeLoc(1, 1, 5), White), "white retake would repeat a previous position")
}

func TestHistoryGameEnd(t *testing.T) {
	t.Run("two passes end the game with area scoring", func(t *testing.T) {
		b := NewBoard(3, 3)
		// A single black center stone owns the whole board; white has none.
		require.NoError(t, b.SetStone(MakeLoc(1, 1, 3), Black))
		rules := DefaultRules()
		rules.Komi = 2.5
		h := NewBoardHistory(b, Black, rules)
		require.NoError(t, h.MakeMove(PassLoc, Black))
		require.False(t, h.GameFinished)
		require.NoError(t, h.MakeMove(PassLoc, White))
		require.True(t, h.GameFinished)
		// All nine points are black area: white-minus-black = -9 + komi.
		require.InDelta(t, -6.5, h.FinalScore, 1e-9)
		require.Equal(t, Black, h.Winner)
	})

	t.Run("no moves are legal after game end", func(t *testing.T) {
		h := NewBoardHistory(NewBoard(3, 3), Black, DefaultRules())
		require.NoError(t, h.MakeMove(PassLoc, Black))
		require.NoError(t, h.MakeMove(PassLoc, White))
		require.True(t, h.GameFinished)
		require.Empty(t, h.LegalMoves(Black))
		require.False(t, h.IsLegal(PassLoc, Black))
	})
}

func TestHistoryLegalMovesIncludesPass(t *testing.T) {
	h := NewBoardHistory(NewBoard(3, 3), Black, DefaultRules())
	moves := h.LegalMoves(Black)
	require.Contains(t, moves, PassLoc)
	require.Len(t, moves, 10, "nine points plus pass on an empty 3x3 board")
}

func TestHistoryCopyIsIndependent(t *testing.T) {
	h := NewBoardHistory(NewBoard(5, 5), Black, DefaultRules())
	require.NoError(t, h.MakeMove(MakeLoc(2, 2, 5), Black))
	cp := h.Copy()
	require.NoError(t, cp.MakeMove(MakeLoc(1, 1, 5), White))
	require.Len(t, h.Moves, 1)
	require.Len(t, cp.Moves, 2)
	require.Equal(t, Empty, h.RecentBoard().Get(1, 1))
}
