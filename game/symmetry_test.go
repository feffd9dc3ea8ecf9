package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSymmetryComposeInverse(t *testing.T) {
	t.Run("inverse composes to identity", func(t *testing.T) {
		for s := Symmetry(0); s < NumSymmetries; s++ {
			require.Equal(t, IdentitySymmetry, s.Compose(s.Inverse()), "s=%d", s)
			require.Equal(t, IdentitySymmetry, s.Inverse().Compose(s), "s=%d", s)
		}
	})

	t.Run("composition matches applying in sequence", func(t *testing.T) {
		const size = 7
		for a := Symmetry(0); a < NumSymmetries; a++ {
			for b := Symmetry(0); b < NumSymmetries; b++ {
				for _, l := range []Loc{MakeLoc(1, 2, size), MakeLoc(0, 0, size), MakeLoc(6, 3, size)} {
					stepwise := SymLoc(b, SymLoc(a, l, size, size), size, size)
					composed := SymLoc(a.Compose(b), l, size, size)
					require.Equal(t, stepwise, composed, "a=%d b=%d loc=%d", a, b, l)
				}
			}
		}
	})

	t.Run("pass maps to pass", func(t *testing.T) {
		for s := Symmetry(0); s < NumSymmetries; s++ {
			require.Equal(t, PassLoc, SymLoc(s, PassLoc, 9, 9))
		}
	})

	t.Run("transposing symmetries are invalid on rectangles", func(t *testing.T) {
		count := 0
		for s := Symmetry(0); s < NumSymmetries; s++ {
			if s.IsValidForSize(9, 13) {
				count++
				require.False(t, s.Transposes())
			}
		}
		require.Equal(t, 4, count)
	})
}

func TestSymBoardMatchesSymPosHash(t *testing.T) {
	b := NewBoard(5, 5)
	require.NoError(t, b.Play(MakeLoc(1, 2, 5), Black))
	require.NoError(t, b.Play(MakeLoc(3, 0, 5), White))
	require.NoError(t, b.Play(MakeLoc(0, 4, 5), Black))
	for s := Symmetry(0); s < NumSymmetries; s++ {
		img := SymBoard(s, b)
		require.Equal(t, img.PosHash(), b.SymPosHash(s), "s=%d", s)
	}
}

func TestSymBoardRoundTrip(t *testing.T) {
	b := NewBoard(5, 5)
	require.NoError(t, b.Play(MakeLoc(1, 2, 5), Black))
	require.NoError(t, b.Play(MakeLoc(3, 3, 5), White))
	for s := Symmetry(0); s < NumSymmetries; s++ {
		back := SymBoard(s.Inverse(), SymBoard(s, b))
		require.True(t, b.Equals(back), "s=%d", s)
	}
}
