package book

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kennyfs/KataCoffee/game"
)

func testParams() Params {
	return Params{
		ErrorFactor:             1.0,
		CostPerMove:             0.5,
		CostPerUCBWinLossLoss:   3.0,
		CostPerLogPolicy:        0.5,
		CostPerMovesExpanded:    1.0,
		ScoreLossCap:            10.0,
		UtilityPerScore:         0.1,
		MaxVisitsForReExpansion: 50,
	}
}

func newTestBook(t *testing.T, size int) *Book {
	t.Helper()
	return New(LatestBookVersion, game.NewBoard(size, size), game.DefaultRules(), game.Black, 5, testParams(), 20)
}

func TestPlayAndAddMove(t *testing.T) {
	t.Run("adding a move inserts exactly one node", func(t *testing.T) {
		b := newTestBook(t, 9)
		root := b.Root()
		hist := b.InitialHist()
		child, isTransposition, err := b.PlayAndAddMove(root, hist, mustLoc(t, "C3", 9), 0.1)
		require.NoError(t, err)
		require.False(t, isTransposition)
		require.False(t, child.IsNil())
		require.Equal(t, 2, b.Size())
		require.True(t, b.IsMoveInBook(root, mustLoc(t, "C3", 9)))
		require.Equal(t, game.White, child.Pla())
	})

	t.Run("same canonical move twice is a no-op", func(t *testing.T) {
		b := newTestBook(t, 9)
		root := b.Root()
		c3 := mustLoc(t, "C3", 9)
		first, _, err := b.PlayAndAddMove(root, b.InitialHist(), c3, 0.1)
		require.NoError(t, err)
		second, isTransposition, err := b.PlayAndAddMove(root, b.InitialHist(), c3, 0.1)
		require.NoError(t, err)
		require.True(t, isTransposition)
		require.Equal(t, first.Hash(), second.Hash())
		require.Equal(t, 2, b.Size())
		require.Equal(t, 1, b.NumUniqueMovesInBook(root))
	})

	t.Run("symmetric moves transpose to one shared node", func(t *testing.T) {
		b := newTestBook(t, 9)
		root := b.Root()
		sizeBefore := b.Size()
		childA, isTransA, err := b.PlayAndAddMove(root, b.InitialHist(), mustLoc(t, "C3", 9), 0.1)
		require.NoError(t, err)
		require.False(t, isTransA)
		childB, isTransB, err := b.PlayAndAddMove(root, b.InitialHist(), mustLoc(t, "G7", 9), 0.1)
		require.NoError(t, err)
		require.True(t, isTransB, "G7 is a symmetry image of C3")
		require.Equal(t, childA.Hash(), childB.Hash())
		require.Equal(t, sizeBefore+1, b.Size(), "both adds create exactly one node")
	})

	t.Run("transposition via different move orders shares a node", func(t *testing.T) {
		b := newTestBook(t, 9)
		root := b.Root()

		histA := b.InitialHist()
		nodeA, _, err := b.PlayAndAddMove(root, histA, mustLoc(t, "C3", 9), 0.1)
		require.NoError(t, err)
		nodeA2, _, err := b.PlayAndAddMove(nodeA, histA, mustLoc(t, "G7", 9), 0.1)
		require.NoError(t, err)

		histB := b.InitialHist()
		nodeB, _, err := b.PlayAndAddMove(root, histB, mustLoc(t, "G7", 9), 0.1)
		require.NoError(t, err)
		sizeBefore := b.Size()
		nodeB2, isTransposition, err := b.PlayAndAddMove(nodeB, histB, mustLoc(t, "C3", 9), 0.1)
		require.NoError(t, err)
		require.True(t, isTransposition)
		require.Equal(t, nodeA2.Hash(), nodeB2.Hash())
		require.Equal(t, sizeBefore, b.Size(), "transposition must not create a node")
	})

	t.Run("move-order transpositions share a node", func(t *testing.T) {
		b := newTestBook(t, 9)
		root := b.Root()

		walkAdding := func(moves []string) Node {
			hist := b.InitialHist()
			node := root
			for _, mv := range moves {
				var err error
				node, _, err = b.PlayAndAddMove(node, hist, mustLoc(t, mv, 9), 0.1)
				require.NoError(t, err)
			}
			return node
		}
		endA := walkAdding([]string{"C3", "G7", "E3", "G5"})
		sizeBefore := b.Size()
		endB := walkAdding([]string{"E3", "G5", "C3", "G7"})
		require.Equal(t, endA.Hash(), endB.Hash(), "same stones by either order")
		require.Equal(t, sizeBefore+3, b.Size(), "second path adds only its intermediate nodes")
	})

	t.Run("illegal move is rejected", func(t *testing.T) {
		b := newTestBook(t, 9)
		root := b.Root()
		hist := b.InitialHist()
		c3 := mustLoc(t, "C3", 9)
		child, _, err := b.PlayAndAddMove(root, hist, c3, 0.1)
		require.NoError(t, err)
		_, _, err = b.PlayAndAddMove(child, hist, c3, 0.1)
		require.Error(t, err, "occupied point")
	})
}

func TestFollowAndHistoryReconstruction(t *testing.T) {
	b := newTestBook(t, 9)
	root := b.Root()
	hist := b.InitialHist()
	moves := []string{"C3", "G7", "E5"}
	node := root
	for _, mv := range moves {
		var err error
		node, _, err = b.PlayAndAddMove(node, hist, mustLoc(t, mv, 9), 0.1)
		require.NoError(t, err)
	}

	t.Run("follow walks the same edges", func(t *testing.T) {
		walked := b.Root()
		for _, mv := range moves {
			walked = b.Follow(walked, mustLoc(t, mv, 9))
			require.False(t, walked.IsNil())
		}
		require.Equal(t, node.Hash(), walked.Hash())
	})

	t.Run("reconstructed history reproduces the canonical hash", func(t *testing.T) {
		for _, n := range b.AllNodes() {
			gotHist, _, _, ok := b.HistoryReachingHere(n)
			require.True(t, ok)
			hash, _, _ := GetHashAndSymmetry(gotHist, b.RepBound(), b.BookVersion)
			require.Equal(t, n.Hash(), hash, "canonical hash round trip")
		}
	})

	t.Run("integrity check passes on a healthy book", func(t *testing.T) {
		require.Empty(t, b.IntegrityCheck())
	})
}

func TestTerminalStickiness(t *testing.T) {
	b := newTestBook(t, 9)
	root := b.Root()
	require.True(t, b.CanExpand(root))
	b.MarkCannotExpand(root)
	require.False(t, b.CanExpand(root))
	// No API path re-enables expansion.
	b.SetThisValuesNotInBook(root, BookValues{Visits: 5})
	b.Recompute([]Node{root})
	require.False(t, b.CanExpand(root))
}

func TestAllLeaves(t *testing.T) {
	b := newTestBook(t, 9)
	root := b.Root()
	hist := b.InitialHist()
	child, _, err := b.PlayAndAddMove(root, hist, mustLoc(t, "C3", 9), 0.1)
	require.NoError(t, err)
	b.SetThisValuesNotInBook(child, BookValues{Visits: 10})
	b.RecomputeEverything()

	leaves := b.AllLeaves(0)
	require.Len(t, leaves, 1, "only the child is a leaf")
	require.Equal(t, child.Hash(), leaves[0].Hash())
	require.Empty(t, b.AllLeaves(11), "visit threshold filters the leaf out")
}
