package book

import (
	"math"

	"github.com/kennyfs/KataCoffee/game"
)

// recomputeNodeLocked rebuilds n's aggregate values from its children's
// aggregates and its own BookValues. Ties between equally good children go to
// the smaller child hash; the phantom option loses all ties.
func (b *Book) recomputeNodeLocked(n *bookNode) {
	sign := plaSign(n.pla)
	opts := b.optionsOfLocked(n)

	visits := n.tv.Visits
	for _, move := range n.moveOrder {
		visits += b.nodes[n.childrenInBook[move].child].rv.Visits
	}

	best := opts[len(opts)-1] // phantom
	for i := len(opts) - 2; i >= 0; i-- {
		o := opts[i]
		if sign*o.wl > sign*best.wl ||
			(sign*o.wl == sign*best.wl && (best.move == game.NullLoc || o.childHash.Less(best.childHash))) {
			best = o
		}
	}

	old := n.rv
	n.rv = RecursiveValues{
		Visits:         visits,
		WinLossValue:   best.wl,
		ScoreMean:      best.score,
		SharpScoreMean: best.sharp,
		WinLossError:   best.wlError,
		ScoreError:     best.scoreErr,
		BestMoveInBook: best.move,

		MinCostFromRoot:    old.MinCostFromRoot,
		TotalExpansionCost: old.TotalExpansionCost,
		WLCostFromRoot:     old.WLCostFromRoot,
		IsWLPV1:            old.IsWLPV1,
		IsWLPV2:            old.IsWLPV2,
		IsBiggestWLCost:    old.IsBiggestWLCost,
	}
}

// ancestorClosureLocked collects dirty plus every node reachable from it via
// parent references.
func (b *Book) ancestorClosureLocked(dirty []Hash) map[Hash]bool {
	closure := make(map[Hash]bool)
	stack := append([]Hash(nil), dirty...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if closure[h] {
			continue
		}
		n, ok := b.nodes[h]
		if !ok {
			continue
		}
		closure[h] = true
		for _, p := range n.parents {
			if !closure[p.hash] {
				stack = append(stack, p.hash)
			}
		}
	}
	return closure
}

// topoOrderLocked returns the nodes of subset (nil meaning all nodes) in
// parents-before-children order following in-book edges from the root.
// Nodes of subset unreachable from the root are appended afterwards.
func (b *Book) topoOrderLocked(subset map[Hash]bool) []*bookNode {
	inSubset := func(h Hash) bool { return subset == nil || subset[h] }

	var order []*bookNode
	state := make(map[Hash]int8) // 1 = on stack, 2 = done

	type frame struct {
		node *bookNode
		next int
	}
	var visit func(start *bookNode)
	visit = func(start *bookNode) {
		stack := []frame{{node: start}}
		state[start.hash] = 1
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next < len(f.node.moveOrder) {
				move := f.node.moveOrder[f.next]
				f.next++
				child := b.nodes[f.node.childrenInBook[move].child]
				if state[child.hash] == 0 {
					state[child.hash] = 1
					stack = append(stack, frame{node: child})
				}
				continue
			}
			state[f.node.hash] = 2
			order = append(order, f.node)
			stack = stack[:len(stack)-1]
		}
	}

	if root, ok := b.nodes[b.rootHash]; ok {
		visit(root)
	}
	if subset != nil {
		for h := range subset {
			if n, ok := b.nodes[h]; ok && state[h] == 0 {
				visit(n)
			}
		}
	} else {
		for _, n := range b.allNodesLocked() {
			if state[n.node.hash] == 0 {
				visit(n.node)
			}
		}
	}

	// Post-order has children first; reverse for parents-first, then filter.
	parentsFirst := make([]*bookNode, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		if inSubset(order[i].hash) || subset == nil {
			parentsFirst = append(parentsFirst, order[i])
		}
	}
	return parentsFirst
}

// Recompute rebuilds the recursive values of the given nodes and all their
// ancestors, then refreshes the selector's cost state for the whole book.
func (b *Book) Recompute(nodes []Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dirty := make([]Hash, 0, len(nodes))
	for _, n := range nodes {
		if !n.IsNil() {
			dirty = append(dirty, n.node.hash)
		}
	}
	closure := b.ancestorClosureLocked(dirty)
	order := b.topoOrderLocked(closure)
	// Children before parents for value aggregation.
	for i := len(order) - 1; i >= 0; i-- {
		b.recomputeNodeLocked(order[i])
	}
	b.costPassLocked()
}

// RecomputeEverything rebuilds every node's recursive values bottom-up and
// refreshes the selector cost state. Idempotent: a second run leaves all
// values unchanged.
func (b *Book) RecomputeEverything() {
	b.mu.Lock()
	defer b.mu.Unlock()
	order := b.topoOrderLocked(nil)
	for i := len(order) - 1; i >= 0; i-- {
		b.recomputeNodeLocked(order[i])
	}
	b.costPassLocked()
}

// costPassLocked refreshes MinCostFromRoot, the WLPV markers, the biggest
// WL-cost marker, and TotalExpansionCost for every node reachable from the
// root.
func (b *Book) costPassLocked() {
	order := b.topoOrderLocked(nil)

	for _, n := range order {
		n.rv.MinCostFromRoot = math.Inf(1)
		n.rv.WLCostFromRoot = math.Inf(1)
		n.rv.IsWLPV1 = false
		n.rv.IsWLPV2 = false
		n.rv.IsBiggestWLCost = false
	}
	root, ok := b.nodes[b.rootHash]
	if !ok {
		return
	}
	root.rv.MinCostFromRoot = 0
	root.rv.WLCostFromRoot = 0

	// Relax edge costs parents-first.
	for _, n := range order {
		if math.IsInf(n.rv.MinCostFromRoot, 1) {
			continue
		}
		opts := b.optionsOfLocked(n)
		sign := plaSign(n.pla)
		bestWL, bestScore, passFavored := bestOptionUCBs(opts, sign, b.params.ErrorFactor)
		for _, o := range opts {
			if o.move == game.NullLoc {
				continue
			}
			cost, wlTerm := b.params.edgeCost(o, bestWL, bestScore, sign, passFavored)
			child := b.nodes[o.childHash]
			if total := n.rv.MinCostFromRoot + cost; total < child.rv.MinCostFromRoot {
				child.rv.MinCostFromRoot = total
				child.rv.WLCostFromRoot = n.rv.WLCostFromRoot + wlTerm
			}
		}
	}

	// Mark the principal win/loss variation and its biggest WL-cost node.
	b.markWLPVLocked(root)

	for _, n := range order {
		phantom, _ := b.phantomCostLocked(n)
		// A node unreachable from the root (should not happen) keeps its
		// infinite cost from the root, so it sorts last.
		minCost := n.rv.MinCostFromRoot
		n.rv.TotalExpansionCost = minCost + phantom - b.bonusesLocked(n)
	}
}

// markWLPVLocked walks the best-by-win/loss path from the root, marking the
// first and second nodes of the variation, and the node along it whose
// incoming step carries the largest WL cost.
func (b *Book) markWLPVLocked(root *bookNode) {
	cur := root
	depth := 0
	var biggest *bookNode
	biggestTerm := math.Inf(-1)
	seen := make(map[Hash]bool)
	for {
		if seen[cur.hash] {
			break
		}
		seen[cur.hash] = true
		move := cur.rv.BestMoveInBook
		if move == game.NullLoc {
			break
		}
		e, ok := cur.childrenInBook[move]
		if !ok {
			break
		}
		opts := b.optionsOfLocked(cur)
		sign := plaSign(cur.pla)
		bestWL, bestScore, passFavored := bestOptionUCBs(opts, sign, b.params.ErrorFactor)
		var wlTerm float64
		for _, o := range opts {
			if o.move == move {
				_, wlTerm = b.params.edgeCost(o, bestWL, bestScore, sign, passFavored)
				break
			}
		}
		child := b.nodes[e.child]
		depth++
		if depth == 1 {
			child.rv.IsWLPV1 = true
		} else if depth == 2 {
			child.rv.IsWLPV2 = true
		}
		if wlTerm > biggestTerm {
			biggestTerm = wlTerm
			biggest = child
		}
		cur = child
	}
	if biggest != nil {
		biggest.rv.IsBiggestWLCost = true
	}
}
