package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoardPlayAndCapture(t *testing.T) {
	t.Run("placing a stone updates occupancy and hash", func(t *testing.T) {
		b := NewBoard(5, 5)
		before := b.PosHash()
		require.NoError(t, b.Play(MakeLoc(2, 2, 5), Black))
		require.Equal(t, Black, b.Get(2, 2))
		require.NotEqual(t, before, b.PosHash(), "hash should change when a stone is placed")
	})

	t.Run("surrounded single stone is captured", func(t *testing.T) {
		b := NewBoard(5, 5)
		// White stone at (2,2), black on all four sides.
		require.NoError(t, b.Play(MakeLoc(2, 2, 5), White))
		require.NoError(t, b.Play(MakeLoc(1, 2, 5), Black))
		require.NoError(t, b.Play(MakeLoc(3, 2, 5), Black))
		require.NoError(t, b.Play(MakeLoc(2, 1, 5), Black))
		require.NoError(t, b.Play(MakeLoc(2, 3, 5), Black))
		require.Equal(t, Empty, b.Get(2, 2), "white stone should be captured")
	})

	t.Run("suicide is illegal", func(t *testing.T) {
		b := NewBoard(5, 5)
		require.NoError(t, b.Play(MakeLoc(1, 0, 5), Black))
		require.NoError(t, b.Play(MakeLoc(0, 1, 5), Black))
		require.False(t, b.IsLegal(MakeLoc(0, 0, 5), White), "single-point suicide in the corner")
	})

	t.Run("simple ko point is illegal immediately", func(t *testing.T) {
		b := NewBoard(5, 5)
		// Classic ko shape around (1,1)/(2,1).
		require.NoError(t, b.Play(MakeLoc(1, 0, 5), Black))
		require.NoError(t, b.Play(MakeLoc(0, 1, 5), Black))
		require.NoError(t, b.Play(MakeLoc(1, 2, 5), Black))
		require.NoError(t, b.Play(MakeLoc(2, 0, 5), White))
		require.NoError(t, b.Play(MakeLoc(3, 1, 5), White))
		require.NoError(t, b.Play(MakeLoc(2, 2, 5), White))
		// Black plays into the ko point; white captures it.
		require.NoError(t, b.Play(MakeLoc(2, 1, 5), Black))
		require.NoError(t, b.Play(MakeLoc(1, 1, 5), White))
		require.Equal(t, Empty, b.Get(2, 1), "white recapture removes the black stone")
		require.Equal(t, MakeLoc(2, 1, 5), b.KoLoc())
		require.False(t, b.IsLegal(MakeLoc(2, 1, 5), Black), "immediate ko recapture is illegal")
	})

	t.Run("pass clears the ko point", func(t *testing.T) {
		b := NewBoard(5, 5)
		b.koLoc = MakeLoc(2, 2, 5)
		require.NoError(t, b.Play(PassLoc, Black))
		require.Equal(t, NullLoc, b.KoLoc())
	})
}

func TestBoardSetStone(t *testing.T) {
	b := NewBoard(5, 5)
	require.NoError(t, b.SetStone(MakeLoc(0, 0, 5), Black))
	require.NoError(t, b.SetStone(MakeLoc(1, 0, 5), White))
	require.Error(t, b.SetStone(MakeLoc(0, 1, 5), White), "setup leaving the corner stone with no liberties should fail")
}

func TestLocString(t *testing.T) {
	require.Equal(t, "A1", LocString(MakeLoc(0, 8, 9), 9, 9))
	require.Equal(t, "J9", LocString(MakeLoc(8, 0, 9), 9, 9))
	require.Equal(t, "pass", LocString(PassLoc, 9, 9))

	loc, err := ParseLoc("D4", 9, 9)
	require.NoError(t, err)
	require.Equal(t, "D4", LocString(loc, 9, 9))
}
