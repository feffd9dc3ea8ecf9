package expander

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kennyfs/KataCoffee/book"
	"github.com/kennyfs/KataCoffee/game"
)

func TestTraceCopiesVariations(t *testing.T) {
	// Source book: a couple of hand-built variations with visit weights.
	source := newHarness(t, 5, 1)
	addLine := func(moves ...string) {
		hist := source.book.InitialHist()
		node := source.book.Root()
		for _, mv := range moves {
			loc, err := game.ParseLoc(mv, 5, 5)
			require.NoError(t, err)
			var added book.Node
			added, _, err = source.book.PlayAndAddMove(node, hist, loc, 0.2)
			require.NoError(t, err)
			node = added
		}
		source.book.SetThisValuesNotInBook(node, book.BookValues{Visits: 25, MaxPolicy: 0.3})
	}
	addLine("C3", "C4")
	addLine("C3", "D2")
	addLine("B2")
	source.book.RecomputeEverything()

	dest := newHarness(t, 5, 1)
	require.NoError(t, dest.driver.RunTrace(source.book, 0))

	t.Run("every traced leaf is reachable in the destination", func(t *testing.T) {
		for _, leaf := range source.book.AllLeaves(0) {
			hist, _, _, ok := source.book.HistoryReachingHere(leaf)
			require.True(t, ok)
			node := dest.book.Root()
			replay := dest.book.InitialHist()
			for _, mv := range hist.Moves {
				require.True(t, dest.book.IsMoveInBook(node, mv.Loc),
					"move %s of traced line missing", game.LocString(mv.Loc, 5, 5))
				require.NoError(t, replay.MakeMove(mv.Loc, mv.Pla))
				node = dest.book.Follow(node, mv.Loc)
				require.False(t, node.IsNil())
			}
			require.Equal(t, leaf.Hash(), node.Hash(), "replayed line reaches the same canonical node")
		}
	})

	t.Run("traced nodes carry refreshed values", func(t *testing.T) {
		for _, n := range dest.book.AllNodes() {
			tv := dest.book.ThisValuesNotInBook(n)
			rv := dest.book.RecursiveValues(n)
			require.Greater(t, tv.Visits+rv.Visits, 0.0, "node %s never refreshed", n.Hash())
		}
	})

	t.Run("visit threshold excludes thin leaves", func(t *testing.T) {
		dest2 := newHarness(t, 5, 1)
		require.NoError(t, dest2.driver.RunTrace(source.book, 1000))
		require.Equal(t, 1, dest2.book.Size(), "nothing qualifies, only the root remains")
	})

	requireInvariants(t, dest.book)
}
