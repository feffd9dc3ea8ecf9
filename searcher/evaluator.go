package searcher

import (
	"math"

	"github.com/OneOfOne/xxhash"

	"github.com/kennyfs/KataCoffee/game"
)

// NNOutput is one evaluation of a position: a policy over all board points
// plus pass, and value estimates. Win/loss and scores are white-positive.
type NNOutput struct {
	// Policy has one entry per board location plus a final entry for pass.
	Policy       []float64
	WinLossValue float64
	ScoreMean    float64
	ScoreStdev   float64
	// Short-term error estimates of the value and score heads.
	WinLossError float64
	ScoreError   float64
}

// PolicyAt reads the policy entry for a move, pass included.
func (o *NNOutput) PolicyAt(l game.Loc) float64 {
	if l == game.PassLoc {
		return o.Policy[len(o.Policy)-1]
	}
	return o.Policy[l]
}

// Evaluator supplies policy vectors and value estimates for positions. The
// book engine talks to the neural evaluator only through this interface so
// it is testable without one.
type Evaluator interface {
	Evaluate(board *game.Board, pla game.Player) *NNOutput
}

// FullSymmetryNNOutput queries the evaluator once per symmetry and averages
// the results mapped back to the original frame, so the stored policy is
// independent of any single orientation. syms nil means all symmetries valid
// for the geometry.
func FullSymmetryNNOutput(board *game.Board, pla game.Player, eval Evaluator, syms []game.Symmetry) *NNOutput {
	if syms == nil {
		for s := game.Symmetry(0); s < game.NumSymmetries; s++ {
			if s.IsValidForSize(board.XSize, board.YSize) {
				syms = append(syms, s)
			}
		}
	}
	n := board.NumLocs()
	out := &NNOutput{Policy: make([]float64, n+1)}
	for _, s := range syms {
		sb := game.SymBoard(s, board)
		r := eval.Evaluate(sb, pla)
		for i := 0; i < n; i++ {
			out.Policy[i] += r.Policy[game.SymLoc(s, game.Loc(i), board.XSize, board.YSize)]
		}
		out.Policy[n] += r.Policy[len(r.Policy)-1]
		out.WinLossValue += r.WinLossValue
		out.ScoreMean += r.ScoreMean
		out.ScoreStdev += r.ScoreStdev
		out.WinLossError += r.WinLossError
		out.ScoreError += r.ScoreError
	}
	k := float64(len(syms))
	for i := range out.Policy {
		out.Policy[i] /= k
	}
	out.WinLossValue /= k
	out.ScoreMean /= k
	out.ScoreStdev /= k
	out.WinLossError /= k
	out.ScoreError /= k
	return out
}

// HeuristicEvaluator is a deterministic, model-free Evaluator: a
// center-weighted policy with position-keyed noise and a material-based
// value. It stands in for the neural evaluator in tests and model-less runs.
type HeuristicEvaluator struct {
	Seed uint64
}

func NewHeuristicEvaluator(seed uint64) *HeuristicEvaluator {
	return &HeuristicEvaluator{Seed: seed}
}

func (e *HeuristicEvaluator) noise(posHash uint64, l game.Loc) float64 {
	h := xxhash.NewS64(e.Seed)
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(posHash >> (8 * i))
		buf[8+i] = byte(uint64(int64(l)) >> (8 * i))
	}
	h.Write(buf[:])
	return float64(h.Sum64()%4096) / 4096.0
}

func (e *HeuristicEvaluator) Evaluate(board *game.Board, pla game.Player) *NNOutput {
	n := board.NumLocs()
	policy := make([]float64, n+1)
	cx := float64(board.XSize-1) / 2
	cy := float64(board.YSize-1) / 2
	maxDist := cx + cy + 1
	total := 0.0
	empties := 0
	stoneDiff := 0 // black minus white
	for i := 0; i < n; i++ {
		switch board.At(game.Loc(i)) {
		case game.Black:
			stoneDiff++
			continue
		case game.White:
			stoneDiff--
			continue
		}
		empties++
		if !board.IsLegal(game.Loc(i), pla) {
			continue
		}
		x := float64(i % board.XSize)
		y := float64(i / board.XSize)
		center := 1 - (math.Abs(x-cx)+math.Abs(y-cy))/maxDist
		w := math.Exp(2.2*center + 1.1*e.noise(board.PosHash(), game.Loc(i)))
		policy[i] = w
		total += w
	}
	// Pass gains weight as the board fills up.
	passW := 0.02 + 2.0*math.Exp(-3.0*float64(empties)/float64(n))
	policy[n] = passW
	total += passW
	for i := range policy {
		policy[i] /= total
	}

	scoreMean := -float64(stoneDiff) * 0.5
	return &NNOutput{
		Policy:       policy,
		WinLossValue: math.Tanh(scoreMean / (0.5 * float64(board.XSize))),
		ScoreMean:    scoreMean,
		ScoreStdev:   math.Sqrt(float64(empties))*0.5 + 0.5,
		WinLossError: 0.15 + 0.1*e.noise(board.PosHash(), game.PassLoc),
		ScoreError:   1.0 + 0.5*e.noise(board.PosHash()^1, game.PassLoc),
	}
}
