package book

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	b, _, _, _, _ := buildValuedBook(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.katabook")

	require.NoError(t, b.SaveToFile(path))
	loaded, err := LoadFromFile(path, 20)
	require.NoError(t, err)

	t.Run("structure survives", func(t *testing.T) {
		require.Equal(t, b.Size(), loaded.Size())
		require.Equal(t, b.BookVersion, loaded.BookVersion)
		require.Equal(t, b.RepBound(), loaded.RepBound())
		require.True(t, b.InitialBoard().Equals(loaded.InitialBoard()))
		require.Equal(t, b.Params(), loaded.Params())
		for _, n := range b.AllNodes() {
			ln := loaded.ByHash(n.Hash())
			require.False(t, ln.IsNil(), "node %s must survive", n.Hash())
			require.Equal(t, b.ThisValuesNotInBook(n), loaded.ThisValuesNotInBook(ln))
			require.Equal(t, b.CanExpand(n), loaded.CanExpand(ln))
			require.Equal(t, b.CanReExpand(n), loaded.CanReExpand(ln))
		}
	})

	t.Run("recursive values recompute identically after load", func(t *testing.T) {
		loaded.RecomputeEverything()
		for _, n := range b.AllNodes() {
			require.Equal(t, b.RecursiveValues(n), loaded.RecursiveValues(loaded.ByHash(n.Hash())))
		}
	})

	t.Run("save-load-save is byte identical", func(t *testing.T) {
		path2 := filepath.Join(dir, "test2.katabook")
		require.NoError(t, loaded.SaveToFile(path2))
		bytes1, err := os.ReadFile(path)
		require.NoError(t, err)
		bytes2, err := os.ReadFile(path2)
		require.NoError(t, err)
		require.Equal(t, bytes1, bytes2)
	})

	t.Run("integrity check passes after load", func(t *testing.T) {
		require.Empty(t, loaded.IntegrityCheck())
	})
}

func TestSharpScoreOutlierCapOnLoad(t *testing.T) {
	b, root, _, _, _ := buildValuedBook(t)
	b.SetThisValuesNotInBook(root, BookValues{ScoreMean: 1.0, SharpScoreMean: 100.0, Visits: 5})
	dir := t.TempDir()
	path := filepath.Join(dir, "outlier.katabook")
	require.NoError(t, b.SaveToFile(path))

	loaded, err := LoadFromFile(path, 2.0)
	require.NoError(t, err)
	tv := loaded.ThisValuesNotInBook(loaded.ByHash(root.Hash()))
	require.Equal(t, 3.0, tv.SharpScoreMean, "clamped to scoreMean + cap")
}

func TestCheckParams(t *testing.T) {
	t.Run("mismatch fails when changing is disallowed", func(t *testing.T) {
		b, _, _, _, _ := buildValuedBook(t)
		intended := b.Params()
		intended.CostPerMove += 1.0
		err := b.CheckParams(intended, false, nil)
		require.ErrorIs(t, err, ErrConfigMismatch)
		require.NotEqual(t, intended.CostPerMove, b.Params().CostPerMove, "params stay untouched")
	})

	t.Run("mismatch overwrites and reports when allowed", func(t *testing.T) {
		b, _, _, _, _ := buildValuedBook(t)
		intended := b.Params()
		intended.CostPerMove += 1.0
		intended.BonusForWLPV1 = 0.7
		var changed []string
		err := b.CheckParams(intended, true, func(name string, from, to float64) {
			changed = append(changed, name)
		})
		require.NoError(t, err)
		require.Equal(t, []string{"costPerMove", "bonusForWLPV1"}, changed)
		require.Equal(t, intended, b.Params())
	})

	t.Run("identical params are fine either way", func(t *testing.T) {
		b, _, _, _, _ := buildValuedBook(t)
		require.NoError(t, b.CheckParams(b.Params(), false, nil))
	})
}
