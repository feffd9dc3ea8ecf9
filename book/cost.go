package book

import (
	"math"
	"sort"

	"github.com/kennyfs/KataCoffee/game"
)

// The selector's view of one option at a node: either a booked child edge or
// the phantom "best move not yet in book" derived from the node's BookValues.
type expansionOption struct {
	move      game.Loc // canonical; NullLoc for the phantom option
	rawPolicy float64
	wl        float64
	score     float64
	sharp     float64
	wlError   float64
	scoreErr  float64
	childHash Hash
}

func plaSign(pla game.Player) float64 {
	if pla == game.White {
		return 1
	}
	return -1
}

func (b *Book) optionsOfLocked(n *bookNode) []expansionOption {
	opts := make([]expansionOption, 0, len(n.moveOrder)+1)
	for _, move := range n.moveOrder {
		e := n.childrenInBook[move]
		child := b.nodes[e.child]
		opts = append(opts, expansionOption{
			move:      move,
			rawPolicy: e.rawPolicy,
			wl:        child.rv.WinLossValue,
			score:     child.rv.ScoreMean,
			sharp:     child.rv.SharpScoreMean,
			wlError:   child.rv.WinLossError,
			scoreErr:  child.rv.ScoreError,
			childHash: e.child,
		})
	}
	opts = append(opts, expansionOption{
		move:      game.NullLoc,
		rawPolicy: n.tv.MaxPolicy,
		wl:        n.tv.WinLossValue,
		score:     n.tv.ScoreMean,
		sharp:     n.tv.SharpScoreMean,
		wlError:   n.tv.WinLossError,
		scoreErr:  n.tv.ScoreError,
	})
	return opts
}

func ucbWinLoss(o expansionOption, sign, errorFactor float64) float64 {
	return sign*o.wl + errorFactor*o.wlError
}

func ucbScore(o expansionOption, sign, errorFactor float64) float64 {
	return sign*o.score + errorFactor*o.scoreErr
}

// bestOptionUCBs scans the options once: the best win/loss UCB, the best
// score UCB, and whether a pass move is currently the favored line.
func bestOptionUCBs(opts []expansionOption, sign, errorFactor float64) (bestWL, bestScore float64, passFavored bool) {
	bestWL = math.Inf(-1)
	bestScore = math.Inf(-1)
	bestWLMove := game.NullLoc
	for _, o := range opts {
		if u := ucbWinLoss(o, sign, errorFactor); u > bestWL {
			bestWL = u
			bestWLMove = o.move
		}
		if u := ucbScore(o, sign, errorFactor); u > bestScore {
			bestScore = u
		}
	}
	passFavored = bestWLMove == game.PassLoc
	return bestWL, bestScore, passFavored
}

const minRawPolicyForCost = 1e-10

// edgeCost is the expansion cost of walking one option from its parent. The
// win/loss component is returned separately so the propagator can attribute
// WL cost along the principal variation.
func (p *Params) edgeCost(o expansionOption, bestWLUCB, bestScoreUCB float64, sign float64, passFavored bool) (cost, wlTerm float64) {
	delta := bestWLUCB - ucbWinLoss(o, sign, p.ErrorFactor)
	if delta < 0 {
		delta = 0
	}
	wlTerm = p.CostPerUCBWinLossLoss*delta +
		p.CostPerUCBWinLossLossPow3*delta*delta*delta +
		p.CostPerUCBWinLossLossPow7*math.Pow(delta, 7)

	scoreGap := bestScoreUCB - ucbScore(o, sign, p.ErrorFactor)
	if scoreGap < 0 {
		scoreGap = 0
	}
	if scoreGap > p.ScoreLossCap {
		scoreGap = p.ScoreLossCap
	}

	rawPolicy := o.rawPolicy
	if rawPolicy < minRawPolicyForCost {
		rawPolicy = minRawPolicyForCost
	}

	cost = p.CostPerMove +
		wlTerm +
		p.CostPerUCBScoreLoss*p.UtilityPerScore*scoreGap +
		p.CostPerLogPolicy*(-math.Log(rawPolicy))
	if passFavored {
		cost += p.CostWhenPassFavored
	}
	return cost, wlTerm
}

// phantomCostLocked is the cost of expanding n itself: the phantom edge's
// cost plus the crowding penalty for moves already expanded here.
func (b *Book) phantomCostLocked(n *bookNode) (cost, wlTerm float64) {
	opts := b.optionsOfLocked(n)
	sign := plaSign(n.pla)
	bestWL, bestScore, passFavored := bestOptionUCBs(opts, sign, b.params.ErrorFactor)
	phantom := opts[len(opts)-1]
	cost, wlTerm = b.params.edgeCost(phantom, bestWL, bestScore, sign, passFavored)
	k := float64(len(n.childrenInBook))
	cost += b.params.CostPerMovesExpanded*k + b.params.CostPerSquaredMovesExpanded*k*k
	return cost, wlTerm
}

const excessUnexpandedPolicyThreshold = 0.5

func (b *Book) bonusesLocked(n *bookNode) float64 {
	p := &b.params
	bonus := p.BonusPerWinLossError*n.tv.WinLossError +
		p.BonusPerScoreError*n.tv.ScoreError +
		p.BonusPerSharpScoreDiscrepancy*math.Abs(n.tv.ScoreMean-n.tv.SharpScoreMean)
	if excess := n.tv.MaxPolicy - excessUnexpandedPolicyThreshold; excess > 0 {
		bonus += p.BonusPerExcessUnexpandedPolicy * excess
	}
	if n.rv.IsWLPV1 {
		bonus += p.BonusForWLPV1
	}
	if n.rv.IsWLPV2 {
		bonus += p.BonusForWLPV2
	}
	if n.rv.IsBiggestWLCost {
		bonus += p.BonusForBiggestWLCost
	}
	bonus += b.bonusByHash[n.hash]
	return bonus
}

// NextNToExpand returns handles to the n expandable nodes with the lowest
// total expansion cost, ties broken by hash order. Costs are those of the
// most recent recompute pass.
func (b *Book) NextNToExpand(n int) []Node {
	b.mu.Lock()
	defer b.mu.Unlock()

	type candidate struct {
		node *bookNode
		cost float64
	}
	var cands []candidate
	for _, bn := range b.nodes {
		if !bn.canExpand {
			continue
		}
		cands = append(cands, candidate{node: bn, cost: bn.rv.TotalExpansionCost})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].cost != cands[j].cost {
			return cands[i].cost < cands[j].cost
		}
		return cands[i].node.hash.Less(cands[j].node.hash)
	})
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]Node, 0, n)
	for _, c := range cands[:n] {
		out = append(out, Node{book: b, node: c.node, symmetry: game.IdentitySymmetry})
	}
	return out
}
