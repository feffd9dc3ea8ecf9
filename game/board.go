package game

import (
	"fmt"
	"strings"
)

// Player is a stone color or the empty point.
type Player int8

const (
	Empty Player = 0
	Black Player = 1
	White Player = 2
)

func (p Player) Opponent() Player {
	switch p {
	case Black:
		return White
	case White:
		return Black
	}
	return Empty
}

func (p Player) String() string {
	switch p {
	case Black:
		return "B"
	case White:
		return "W"
	}
	return "."
}

// Loc addresses a point on the board as y*xSize+x, or one of the sentinels.
type Loc int32

const (
	NullLoc Loc = -2
	PassLoc Loc = -1
)

func MakeLoc(x, y, xSize int) Loc {
	return Loc(y*xSize + x)
}

func (l Loc) X(xSize int) int { return int(l) % xSize }
func (l Loc) Y(xSize int) int { return int(l) / xSize }

const columnLetters = "ABCDEFGHJKLMNOPQRSTUVWXYZ"

// LocString renders a location in the usual GTP style ("D4", "pass").
func LocString(l Loc, xSize, ySize int) string {
	switch l {
	case PassLoc:
		return "pass"
	case NullLoc:
		return "null"
	}
	x := l.X(xSize)
	y := l.Y(xSize)
	if x < 0 || x >= xSize || y < 0 || y >= ySize || x >= len(columnLetters) {
		return fmt.Sprintf("loc%d", int(l))
	}
	return fmt.Sprintf("%c%d", columnLetters[x], ySize-y)
}

// ParseLoc is the inverse of LocString.
func ParseLoc(s string, xSize, ySize int) (Loc, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "PASS" {
		return PassLoc, nil
	}
	if len(s) < 2 {
		return NullLoc, fmt.Errorf("invalid location %q", s)
	}
	x := strings.IndexByte(columnLetters, s[0])
	if x < 0 || x >= xSize {
		return NullLoc, fmt.Errorf("invalid column in location %q", s)
	}
	var row int
	if _, err := fmt.Sscanf(s[1:], "%d", &row); err != nil || row < 1 || row > ySize {
		return NullLoc, fmt.Errorf("invalid row in location %q", s)
	}
	return MakeLoc(x, ySize-row, xSize), nil
}

// Board is a rectangular go board with simple-ko tracking and an
// incrementally maintained zobrist hash over the stones.
type Board struct {
	XSize, YSize int
	stones       []Player
	koLoc        Loc
	posHash      uint64
}

const MaxBoardSize = 19

func NewBoard(xSize, ySize int) *Board {
	if xSize < 2 || xSize > MaxBoardSize || ySize < 2 || ySize > MaxBoardSize {
		panic(fmt.Sprintf("invalid board size %dx%d", xSize, ySize))
	}
	return &Board{
		XSize:  xSize,
		YSize:  ySize,
		stones: make([]Player, xSize*ySize),
		koLoc:  NullLoc,
	}
}

func (b *Board) Copy() *Board {
	stones := make([]Player, len(b.stones))
	copy(stones, b.stones)
	return &Board{
		XSize:   b.XSize,
		YSize:   b.YSize,
		stones:  stones,
		koLoc:   b.koLoc,
		posHash: b.posHash,
	}
}

func (b *Board) NumLocs() int { return b.XSize * b.YSize }

func (b *Board) At(l Loc) Player {
	return b.stones[l]
}

func (b *Board) Get(x, y int) Player {
	return b.stones[y*b.XSize+x]
}

func (b *Board) KoLoc() Loc { return b.koLoc }

// PosHash is the zobrist hash of the stones alone, the quantity tracked for
// positional superko.
func (b *Board) PosHash() uint64 { return b.posHash }

func (b *Board) IsOnBoard(l Loc) bool {
	return l >= 0 && int(l) < len(b.stones)
}

func (b *Board) neighbors(l Loc, out []Loc) []Loc {
	x := l.X(b.XSize)
	y := l.Y(b.XSize)
	if x > 0 {
		out = append(out, l-1)
	}
	if x < b.XSize-1 {
		out = append(out, l+1)
	}
	if y > 0 {
		out = append(out, l-Loc(b.XSize))
	}
	if y < b.YSize-1 {
		out = append(out, l+Loc(b.XSize))
	}
	return out
}

// chainAndLiberties flood-fills the chain containing l and counts liberties.
func (b *Board) chainAndLiberties(l Loc) (chain []Loc, liberties int) {
	color := b.stones[l]
	seen := make(map[Loc]bool)
	libSeen := make(map[Loc]bool)
	stack := []Loc{l}
	seen[l] = true
	var nbuf [4]Loc
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		chain = append(chain, cur)
		for _, n := range b.neighbors(cur, nbuf[:0]) {
			switch b.stones[n] {
			case Empty:
				if !libSeen[n] {
					libSeen[n] = true
					liberties++
				}
			case color:
				if !seen[n] {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return chain, liberties
}

func (b *Board) setStoneHash(l Loc, old, new_ Player) {
	z := getZobrist(b.XSize, b.YSize)
	b.posHash ^= z.stone(l, old) ^ z.stone(l, new_)
}

// IsLegal reports board-level legality for pla at l: empty point, not the
// simple-ko point, and not suicide. Superko is the history's concern.
func (b *Board) IsLegal(l Loc, pla Player) bool {
	if l == PassLoc {
		return true
	}
	if !b.IsOnBoard(l) || b.stones[l] != Empty {
		return false
	}
	if l == b.koLoc {
		return false
	}
	return !b.isSuicide(l, pla)
}

func (b *Board) isSuicide(l Loc, pla Player) bool {
	opp := pla.Opponent()
	var nbuf [4]Loc
	for _, n := range b.neighbors(l, nbuf[:0]) {
		switch b.stones[n] {
		case Empty:
			return false
		case pla:
			if _, libs := b.chainAndLiberties(n); libs > 1 {
				return false
			}
		case opp:
			if _, libs := b.chainAndLiberties(n); libs == 1 {
				return false
			}
		}
	}
	return true
}

// Play places a stone for pla at l, removing captured chains and updating the
// simple-ko point. Pass clears the ko point.
func (b *Board) Play(l Loc, pla Player) error {
	if l == PassLoc {
		b.koLoc = NullLoc
		return nil
	}
	if !b.IsLegal(l, pla) {
		return fmt.Errorf("illegal move %s for %s", LocString(l, b.XSize, b.YSize), pla)
	}
	b.stones[l] = pla
	b.setStoneHash(l, Empty, pla)

	opp := pla.Opponent()
	captured := 0
	var lastCaptured Loc = NullLoc
	var nbuf [4]Loc
	for _, n := range b.neighbors(l, nbuf[:0]) {
		if b.stones[n] != opp {
			continue
		}
		chain, libs := b.chainAndLiberties(n)
		if libs == 0 {
			for _, c := range chain {
				b.stones[c] = Empty
				b.setStoneHash(c, opp, Empty)
				captured++
				lastCaptured = c
			}
		}
	}

	b.koLoc = NullLoc
	if captured == 1 {
		if chain, libs := b.chainAndLiberties(l); len(chain) == 1 && libs == 1 {
			b.koLoc = lastCaptured
		}
	}
	return nil
}

// SetStone places a stone directly, for setup positions. Fails if the stone,
// or any neighboring chain, would be left without liberties.
func (b *Board) SetStone(l Loc, pla Player) error {
	if !b.IsOnBoard(l) {
		return fmt.Errorf("setup stone off board at %d", int(l))
	}
	old := b.stones[l]
	b.stones[l] = pla
	b.setStoneHash(l, old, pla)
	check := b.neighbors(l, []Loc{l})
	for _, c := range check {
		if b.stones[c] == Empty {
			continue
		}
		if _, libs := b.chainAndLiberties(c); libs == 0 {
			b.stones[l] = old
			b.setStoneHash(l, pla, old)
			return fmt.Errorf("setup stone at %s leaves a chain with no liberties", LocString(l, b.XSize, b.YSize))
		}
	}
	return nil
}

func (b *Board) Equals(other *Board) bool {
	if b.XSize != other.XSize || b.YSize != other.YSize || b.koLoc != other.koLoc {
		return false
	}
	for i := range b.stones {
		if b.stones[i] != other.stones[i] {
			return false
		}
	}
	return true
}

func (b *Board) String() string {
	var sb strings.Builder
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			switch b.Get(x, y) {
			case Black:
				sb.WriteByte('X')
			case White:
				sb.WriteByte('O')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
