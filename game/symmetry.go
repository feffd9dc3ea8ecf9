package game

// Symmetry is one of the 8 dihedral board symmetries, encoded as
// bit0 = flip x, bit1 = flip y, bit2 = transpose. Transposition is applied
// first, then the flips.
type Symmetry int8

const NumSymmetries = 8

const (
	IdentitySymmetry Symmetry = 0
	symFlipX         Symmetry = 1
	symFlipY         Symmetry = 2
	symTranspose     Symmetry = 4
)

func (s Symmetry) flipX() bool { return s&symFlipX != 0 }
func (s Symmetry) flipY() bool { return s&symFlipY != 0 }

// Transposes reports whether s swaps the board axes.
func (s Symmetry) Transposes() bool { return s&symTranspose != 0 }

func (s Symmetry) transpose() bool { return s.Transposes() }

// IsValidForSize reports whether applying s keeps the board geometry:
// transposing symmetries need a square board.
func (s Symmetry) IsValidForSize(xSize, ySize int) bool {
	return !s.transpose() || xSize == ySize
}

// Compose returns the symmetry equivalent to applying s first, then t.
func (s Symmetry) Compose(t Symmetry) Symmetry {
	fx, fy := s.flipX(), s.flipY()
	if t.transpose() {
		fx, fy = fy, fx
	}
	if t.flipX() {
		fx = !fx
	}
	if t.flipY() {
		fy = !fy
	}
	var out Symmetry
	if fx {
		out |= symFlipX
	}
	if fy {
		out |= symFlipY
	}
	if s.transpose() != t.transpose() {
		out |= symTranspose
	}
	return out
}

// Inverse returns the symmetry undoing s.
func (s Symmetry) Inverse() Symmetry {
	if !s.transpose() {
		return s
	}
	var out Symmetry = symTranspose
	if s.flipY() {
		out |= symFlipX
	}
	if s.flipX() {
		out |= symFlipY
	}
	return out
}

// SymLoc maps l through s on a board of the given size. Pass maps to pass.
func SymLoc(s Symmetry, l Loc, xSize, ySize int) Loc {
	if l == PassLoc || l == NullLoc {
		return l
	}
	x := l.X(xSize)
	y := l.Y(xSize)
	if s.transpose() {
		x, y = y, x
		xSize, ySize = ySize, xSize
	}
	if s.flipX() {
		x = xSize - 1 - x
	}
	if s.flipY() {
		y = ySize - 1 - y
	}
	return MakeLoc(x, y, xSize)
}

// SymPosHash computes the zobrist position hash of b's image under s without
// materializing the image. Returns 0 for symmetries invalid for b's geometry.
func (b *Board) SymPosHash(s Symmetry) uint64 {
	if !s.IsValidForSize(b.XSize, b.YSize) {
		return 0
	}
	if s == IdentitySymmetry {
		return b.posHash
	}
	xSize, ySize := b.XSize, b.YSize
	if s.transpose() {
		xSize, ySize = ySize, xSize
	}
	z := getZobrist(xSize, ySize)
	var h uint64
	for i := 0; i < b.NumLocs(); i++ {
		p := b.stones[i]
		if p == Empty {
			continue
		}
		h ^= z.stone(SymLoc(s, Loc(i), b.XSize, b.YSize), p)
	}
	return h
}

// SymBoard returns the image of b under s. The ko point is carried along.
func SymBoard(s Symmetry, b *Board) *Board {
	xSize, ySize := b.XSize, b.YSize
	if s.transpose() {
		xSize, ySize = ySize, xSize
	}
	out := NewBoard(xSize, ySize)
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			p := b.Get(x, y)
			if p == Empty {
				continue
			}
			l := SymLoc(s, MakeLoc(x, y, b.XSize), b.XSize, b.YSize)
			out.stones[l] = p
			out.setStoneHash(l, Empty, p)
		}
	}
	out.koLoc = NullLoc
	if b.koLoc != NullLoc {
		out.koLoc = SymLoc(s, b.koLoc, b.XSize, b.YSize)
	}
	return out
}
