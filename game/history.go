package game

import "fmt"

// Move is one played move.
type Move struct {
	Loc Loc
	Pla Player
}

// BoardHistory tracks a game line from an initial position: the current
// board, whose turn it is, the positions seen so far for positional superko,
// and game-over state under area scoring (two consecutive passes end the
// game).
type BoardHistory struct {
	InitialBoard *Board
	InitialPla   Player
	Rules        Rules

	Moves           []Move
	board           *Board
	PresumedNextPla Player

	ConsecutivePasses int
	GameFinished      bool
	Winner            Player
	// FinalScore is white minus black, komi included. Valid once GameFinished.
	FinalScore float64

	posHashCounts map[uint64]int
	// PosHashes holds, for the initial setup and after every non-pass move,
	// the position hash under each of the 8 symmetries (0 where the symmetry
	// is invalid for the geometry). Index 0 is the identity hash used for
	// superko; the canonical book hash folds those entries of a bounded suffix
	// whose position occurred more than once.
	PosHashes [][NumSymmetries]uint64
}

func NewBoardHistory(initialBoard *Board, initialPla Player, rules Rules) *BoardHistory {
	b := initialBoard.Copy()
	h := &BoardHistory{
		InitialBoard:    initialBoard.Copy(),
		InitialPla:      initialPla,
		Rules:           rules,
		board:           b,
		PresumedNextPla: initialPla,
		posHashCounts:   make(map[uint64]int),
	}
	h.recordPosHash()
	return h
}

func (h *BoardHistory) recordPosHash() {
	var hashes [NumSymmetries]uint64
	for s := Symmetry(0); s < NumSymmetries; s++ {
		hashes[s] = h.board.SymPosHash(s)
	}
	h.posHashCounts[hashes[IdentitySymmetry]]++
	h.PosHashes = append(h.PosHashes, hashes)
}

func (h *BoardHistory) RecentBoard() *Board { return h.board }

func (h *BoardHistory) Copy() *BoardHistory {
	counts := make(map[uint64]int, len(h.posHashCounts))
	for k, v := range h.posHashCounts {
		counts[k] = v
	}
	moves := make([]Move, len(h.Moves))
	copy(moves, h.Moves)
	hashes := make([][NumSymmetries]uint64, len(h.PosHashes))
	copy(hashes, h.PosHashes)
	return &BoardHistory{
		InitialBoard:      h.InitialBoard.Copy(),
		InitialPla:        h.InitialPla,
		Rules:             h.Rules,
		Moves:             moves,
		board:             h.board.Copy(),
		PresumedNextPla:   h.PresumedNextPla,
		ConsecutivePasses: h.ConsecutivePasses,
		GameFinished:      h.GameFinished,
		Winner:            h.Winner,
		FinalScore:        h.FinalScore,
		posHashCounts:     counts,
		PosHashes:         hashes,
	}
}

// IsLegal reports whether pla may play at l: board-level legality plus
// positional superko (the resulting stone arrangement must be new).
func (h *BoardHistory) IsLegal(l Loc, pla Player) bool {
	if h.GameFinished {
		return false
	}
	if l == PassLoc {
		return true
	}
	if !h.board.IsLegal(l, pla) {
		return false
	}
	cp := h.board.Copy()
	if err := cp.Play(l, pla); err != nil {
		return false
	}
	return h.posHashCounts[cp.PosHash()] == 0
}

// MakeMove plays l for pla, updating superko history and game-over state.
func (h *BoardHistory) MakeMove(l Loc, pla Player) error {
	if !h.IsLegal(l, pla) {
		return fmt.Errorf("illegal move %s for %s", LocString(l, h.board.XSize, h.board.YSize), pla)
	}
	if err := h.board.Play(l, pla); err != nil {
		return err
	}
	h.Moves = append(h.Moves, Move{Loc: l, Pla: pla})
	h.PresumedNextPla = pla.Opponent()
	if l == PassLoc {
		h.ConsecutivePasses++
	} else {
		h.ConsecutivePasses = 0
		h.recordPosHash()
	}
	if h.ConsecutivePasses >= 2 {
		h.endGameByScoring()
	}
	return nil
}

// MakeMoveTolerant is MakeMove returning success instead of an error, for
// replaying externally supplied lines.
func (h *BoardHistory) MakeMoveTolerant(l Loc, pla Player) bool {
	return h.MakeMove(l, pla) == nil
}

func (h *BoardHistory) endGameByScoring() {
	h.GameFinished = true
	black, white := h.areaScore()
	h.FinalScore = float64(white) - float64(black) + h.Rules.Komi
	switch {
	case h.FinalScore > 0:
		h.Winner = White
	case h.FinalScore < 0:
		h.Winner = Black
	default:
		h.Winner = Empty
	}
}

// areaScore counts stones plus single-color-enclosed territory for each side.
func (h *BoardHistory) areaScore() (black, white int) {
	b := h.board
	n := b.NumLocs()
	seen := make([]bool, n)
	var nbuf [4]Loc
	for i := 0; i < n; i++ {
		l := Loc(i)
		switch b.At(l) {
		case Black:
			black++
			continue
		case White:
			white++
			continue
		}
		if seen[i] {
			continue
		}
		// Flood fill this empty region and see which colors border it.
		region := []Loc{l}
		seen[i] = true
		bordersBlack, bordersWhite := false, false
		size := 0
		for len(region) > 0 {
			cur := region[len(region)-1]
			region = region[:len(region)-1]
			size++
			for _, nb := range b.neighbors(cur, nbuf[:0]) {
				switch b.At(nb) {
				case Black:
					bordersBlack = true
				case White:
					bordersWhite = true
				default:
					if !seen[nb] {
						seen[nb] = true
						region = append(region, nb)
					}
				}
			}
		}
		if bordersBlack && !bordersWhite {
			black += size
		} else if bordersWhite && !bordersBlack {
			white += size
		}
	}
	return black, white
}

// RepeatedRecentPosHashes returns the per-symmetry hashes of the positions
// among the most recent bound entries that occurred more than once in the
// whole game. Empty in acyclic play; nonempty exactly when a repetition
// cycle is in progress and superko history starts mattering for legality.
func (h *BoardHistory) RepeatedRecentPosHashes(bound int) [][NumSymmetries]uint64 {
	start := len(h.PosHashes) - bound
	if start < 0 {
		start = 0
	}
	var out [][NumSymmetries]uint64
	for _, hashes := range h.PosHashes[start:] {
		if h.posHashCounts[hashes[IdentitySymmetry]] >= 2 {
			out = append(out, hashes)
		}
	}
	return out
}

// LegalMoves lists every legal location for pla, pass included.
func (h *BoardHistory) LegalMoves(pla Player) []Loc {
	if h.GameFinished {
		return nil
	}
	moves := []Loc{PassLoc}
	for i := 0; i < h.board.NumLocs(); i++ {
		if h.IsLegal(Loc(i), pla) {
			moves = append(moves, Loc(i))
		}
	}
	return moves
}
