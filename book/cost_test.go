package book

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpansionCost(t *testing.T) {
	t.Run("bonus lowers the effective cost by exactly its value", func(t *testing.T) {
		b, _, childA, _, _ := buildValuedBook(t)
		before := b.RecursiveValues(childA).TotalExpansionCost

		b.SetBonusByHash(map[Hash]float64{childA.Hash(): 1.0})
		b.RecomputeEverything()
		after := b.RecursiveValues(childA).TotalExpansionCost
		require.InDelta(t, before-1.0, after, 1e-9)
	})

	t.Run("root has zero cost from root", func(t *testing.T) {
		b, root, _, _, _ := buildValuedBook(t)
		require.Equal(t, 0.0, b.RecursiveValues(root).MinCostFromRoot)
	})

	t.Run("children pay at least the fixed per-move cost", func(t *testing.T) {
		b, _, childA, childB, _ := buildValuedBook(t)
		params := b.Params()
		for _, n := range []Node{childA, childB} {
			require.GreaterOrEqual(t, b.RecursiveValues(n).MinCostFromRoot, params.CostPerMove)
		}
	})

	t.Run("raising costPerMovesExpanded penalizes crowded nodes", func(t *testing.T) {
		b, root, _, _, _ := buildValuedBook(t)
		before := b.RecursiveValues(root).TotalExpansionCost
		params := b.Params()
		params.CostPerMovesExpanded += 2.0
		b.SetParams(params)
		b.RecomputeEverything()
		after := b.RecursiveValues(root).TotalExpansionCost
		// Root has two booked moves: 2 more cost units per move expanded.
		require.InDelta(t, before+4.0, after, 1e-9)
	})
}

func TestNextNToExpand(t *testing.T) {
	b, root, childA, childB, grand := buildValuedBook(t)

	t.Run("returns ascending by total expansion cost", func(t *testing.T) {
		nodes := b.NextNToExpand(10)
		require.Len(t, nodes, 4, "all nodes are expandable")
		for i := 1; i < len(nodes); i++ {
			prev := b.RecursiveValues(nodes[i-1]).TotalExpansionCost
			cur := b.RecursiveValues(nodes[i]).TotalExpansionCost
			require.LessOrEqual(t, prev, cur)
		}
	})

	t.Run("non-expandable nodes are never selected", func(t *testing.T) {
		b.MarkCannotExpand(childA)
		for _, n := range b.NextNToExpand(10) {
			require.NotEqual(t, childA.Hash(), n.Hash())
		}
	})

	t.Run("n caps the result", func(t *testing.T) {
		require.Len(t, b.NextNToExpand(2), 2)
	})

	_ = root
	_ = childB
	_ = grand
}
