package searcher

import (
	"math"
	"sync/atomic"

	"golang.org/x/exp/rand"

	"github.com/kennyfs/KataCoffee/game"
)

// TreeNode is one node of a search tree. Statistics are weight-summed and
// white-positive; consumers divide by WeightSum.
type TreeNode struct {
	Pla            game.Player
	MoveFromParent game.Loc
	PolicyPrior    float64

	Children []*TreeNode

	Visits        int64
	WeightSum     float64
	WLSum         float64
	ScoreSum      float64
	ScoreSqSum    float64
	WLErrorSum    float64
	ScoreErrorSum float64

	Terminal      bool
	TerminalWL    float64
	TerminalScore float64

	expanded bool
}

// Values are a node's aggregated statistics.
type Values struct {
	WinLossValue  float64
	ExpectedScore float64
	ScoreStdev    float64
	WinLossError  float64
	ScoreError    float64
	Weight        float64
	Visits        int64
}

// Search is one worker-owned MCTS handle: a bounded PUCT search against an
// Evaluator, with an avoid list at the root and cooperative cancellation.
type Search struct {
	params    Params
	evaluator Evaluator
	rng       *rand.Rand

	rootPla        game.Player
	rootHist       *game.BoardHistory
	avoid          map[game.Loc]bool
	rootSymmetries []game.Symmetry

	root *TreeNode
}

func NewSearch(params Params, evaluator Evaluator, seed uint64) *Search {
	return &Search{
		params:    params,
		evaluator: evaluator,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (s *Search) SetParams(p Params) { s.params = p }

func (s *Search) Params() Params { return s.params }

func (s *Search) Evaluator() Evaluator { return s.evaluator }

func (s *Search) RootNode() *TreeNode { return s.root }

func (s *Search) RootPla() game.Player { return s.rootPla }

func (s *Search) RootHist() *game.BoardHistory { return s.rootHist }

// SetPosition points the handle at a new root position, dropping any tree.
func (s *Search) SetPosition(pla game.Player, hist *game.BoardHistory) {
	s.rootPla = pla
	s.rootHist = hist.Copy()
	s.root = nil
	s.avoid = nil
}

// SetAvoidMoves forbids the given moves at the search root.
func (s *Search) SetAvoidMoves(locs []game.Loc) {
	s.avoid = make(map[game.Loc]bool, len(locs))
	for _, l := range locs {
		s.avoid[l] = true
	}
}

// SetRootSymmetries restricts which symmetries the root policy averages
// over, typically the position's own valid symmetries.
func (s *Search) SetRootSymmetries(syms []game.Symmetry) {
	s.rootSymmetries = syms
}

// RunWholeSearch runs playouts until MaxVisits or the stop flag. The tree
// stays available through RootNode afterwards.
func (s *Search) RunWholeSearch(stop *atomic.Bool) {
	s.root = &TreeNode{Pla: s.rootPla, MoveFromParent: game.NullLoc}
	for s.root.Visits < s.params.MaxVisits {
		if stop != nil && stop.Load() {
			return
		}
		s.playout()
	}
}

func (s *Search) playout() {
	hist := s.rootHist.Copy()
	node := s.root
	path := []*TreeNode{node}

	for node.expanded && !node.Terminal && len(node.Children) > 0 {
		child := s.selectChild(node)
		if err := hist.MakeMove(child.MoveFromParent, node.Pla); err != nil {
			// The move was legal when expanded; treat as terminal dead end.
			child.Terminal = true
		}
		node = child
		path = append(path, node)
	}

	var wl, score, wlErr, scoreErr, scoreSq float64
	switch {
	case node.Terminal:
		wl, score = node.TerminalWL, node.TerminalScore
		scoreSq = score * score
	case hist.GameFinished:
		node.Terminal = true
		node.TerminalWL = terminalWinLoss(hist)
		node.TerminalScore = hist.FinalScore
		wl, score = node.TerminalWL, node.TerminalScore
		scoreSq = score * score
	default:
		out := s.expand(node, hist)
		wl = out.WinLossValue
		score = out.ScoreMean
		scoreSq = score*score + out.ScoreStdev*out.ScoreStdev
		wlErr = out.WinLossError
		scoreErr = out.ScoreError
	}

	for _, n := range path {
		n.Visits++
		n.WeightSum++
		n.WLSum += wl
		n.ScoreSum += score
		n.ScoreSqSum += scoreSq
		n.WLErrorSum += wlErr
		n.ScoreErrorSum += scoreErr
	}
}

func terminalWinLoss(hist *game.BoardHistory) float64 {
	switch hist.Winner {
	case game.White:
		return 1
	case game.Black:
		return -1
	}
	return 0
}

// expand evaluates a leaf and creates its children. The root uses the
// full-symmetry policy and honors the avoid list; deeper nodes use a plain
// evaluation.
func (s *Search) expand(node *TreeNode, hist *game.BoardHistory) *NNOutput {
	board := hist.RecentBoard()
	var out *NNOutput
	isRoot := node == s.root
	if isRoot {
		out = FullSymmetryNNOutput(board, node.Pla, s.evaluator, s.rootSymmetries)
	} else {
		out = s.evaluator.Evaluate(board, node.Pla)
	}

	moves := hist.LegalMoves(node.Pla)
	priors := make([]float64, 0, len(moves))
	kept := make([]game.Loc, 0, len(moves))
	total := 0.0
	for _, m := range moves {
		if isRoot && s.avoid[m] {
			continue
		}
		p := out.PolicyAt(m)
		kept = append(kept, m)
		priors = append(priors, p)
		total += p
	}
	if total <= 0 {
		total = 1
	}
	uniform := 1 / float64(len(kept))
	for i, m := range kept {
		p := priors[i] / total
		if isRoot && s.params.WideRootNoise > 0 {
			// Flatten the root prior toward uniform to widen exploration.
			p = (p + s.params.WideRootNoise*uniform) / (1 + s.params.WideRootNoise)
		}
		node.Children = append(node.Children, &TreeNode{
			Pla:            node.Pla.Opponent(),
			MoveFromParent: m,
			PolicyPrior:    p,
		})
	}
	node.expanded = true
	return out
}

func (s *Search) selectChild(node *TreeNode) *TreeNode {
	sign := 1.0
	if node.Pla == game.Black {
		sign = -1
	}
	parentAvg := 0.0
	if node.WeightSum > 0 {
		parentAvg = sign * node.WLSum / node.WeightSum
	}
	cpuct := s.params.CPUctExploration
	if s.params.CPUctExplorationLog > 0 {
		cpuct += s.params.CPUctExplorationLog * math.Log((float64(node.Visits)+500)/500)
	}
	sqrtVisits := math.Sqrt(float64(node.Visits) + 1)

	var best *TreeNode
	bestScore := math.Inf(-1)
	for _, c := range node.Children {
		var q float64
		if c.WeightSum > 0 {
			q = sign * c.WLSum / c.WeightSum
		} else {
			q = parentAvg - s.params.FPUReduction
		}
		u := cpuct * c.PolicyPrior * sqrtVisits / (1 + float64(c.Visits))
		// Tiny seeded jitter so exact ties don't always resolve to the
		// first child.
		if score := q + u + s.rng.Float64()*1e-12; score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best
}

// NodeValues reads a node's aggregated statistics. Reports false for a node
// that was never visited.
func (s *Search) NodeValues(n *TreeNode) (Values, bool) {
	if n == nil || n.WeightSum <= 0 {
		return Values{}, false
	}
	w := n.WeightSum
	mean := n.ScoreSum / w
	variance := n.ScoreSqSum/w - mean*mean
	if variance < 0 {
		variance = 0
	}
	return Values{
		WinLossValue:  n.WLSum / w,
		ExpectedScore: mean,
		ScoreStdev:    math.Sqrt(variance),
		WinLossError:  n.WLErrorSum / w,
		ScoreError:    n.ScoreErrorSum / w,
		Weight:        w,
		Visits:        n.Visits,
	}, true
}

// ShallowAverageShortTermErrors estimates the short-term win/loss and score
// error of a node from the evaluations aggregated beneath it.
func (s *Search) ShallowAverageShortTermErrors(n *TreeNode) (wlError, scoreError float64) {
	if n == nil || n.WeightSum <= 0 {
		return 0, 0
	}
	return n.WLErrorSum / n.WeightSum, n.ScoreErrorSum / n.WeightSum
}

const sharpScoreMaxDepth = 30

// SharpScore is the score estimate biased toward the most-visited line: the
// node's mean blended, halving per ply, with the best child's sharp score.
func (s *Search) SharpScore(n *TreeNode) (float64, bool) {
	if n == nil || n.WeightSum <= 0 {
		return 0, false
	}
	score := 0.0
	weight := 1.0
	depth := 0
	for n != nil && n.WeightSum > 0 && depth < sharpScoreMaxDepth {
		mean := n.ScoreSum / n.WeightSum
		var next *TreeNode
		for _, c := range n.Children {
			if c.Visits > 0 && (next == nil || c.Visits > next.Visits) {
				next = c
			}
		}
		if next == nil {
			score += weight * mean
			weight = 0
			break
		}
		score += weight * 0.5 * mean
		weight *= 0.5
		n = next
		depth++
	}
	if weight > 0 && n != nil && n.WeightSum > 0 {
		score += weight * (n.ScoreSum / n.WeightSum)
	}
	return score, true
}

// PlaySelectionValues lists a node's visited children with their selection
// values (visit counts), in the order the children were created: pass first,
// then board points by location. Ties are not broken by prior.
func (s *Search) PlaySelectionValues(n *TreeNode) ([]game.Loc, []float64) {
	locs := make([]game.Loc, 0, len(n.Children))
	values := make([]float64, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Visits == 0 {
			continue
		}
		locs = append(locs, c.MoveFromParent)
		values = append(values, float64(c.Visits))
	}
	return locs, values
}
