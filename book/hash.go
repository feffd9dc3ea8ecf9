package book

import (
	"encoding/binary"
	"fmt"

	"github.com/OneOfOne/xxhash"

	"github.com/kennyfs/KataCoffee/game"
)

// Hash identifies one canonical position: the 128-bit fold of the full game
// state (occupancy, side to move, bounded superko history, scoring phase)
// under the symmetry that minimizes it.
type Hash struct {
	Hi, Lo uint64
}

func (h Hash) Less(other Hash) bool {
	if h.Hi != other.Hi {
		return h.Hi < other.Hi
	}
	return h.Lo < other.Lo
}

func (h Hash) String() string {
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// LatestBookVersion gates the hash-computation rules. Only this version is
// produced by new runs; older versions may still be loaded for inspection.
const LatestBookVersion = 2

const (
	hashSeedHi = 0x1d872b41eef4f0a9
	hashSeedLo = 0x7a3f6db3c9e4a851
)

// stateHashUnderSymmetry folds the state of hist, as seen through symmetry s,
// into a 128-bit hash.
func stateHashUnderSymmetry(hist *game.BoardHistory, s game.Symmetry, repBound, bookVersion int) Hash {
	board := hist.RecentBoard()
	xSize, ySize := board.XSize, board.YSize
	if !s.IsValidForSize(xSize, ySize) {
		panic("state hash requested for symmetry invalid for board size")
	}
	outX, outY := xSize, ySize
	if s.Transposes() {
		outX, outY = ySize, xSize
	}

	fold := func(seed uint64) uint64 {
		hasher := xxhash.NewS64(seed ^ uint64(bookVersion))
		var buf [8]byte
		writeU64 := func(v uint64) {
			binary.LittleEndian.PutUint64(buf[:], v)
			hasher.Write(buf[:])
		}
		writeU64(uint64(outX)<<32 | uint64(outY))

		inv := s.Inverse()
		row := make([]byte, outX)
		for y := 0; y < outY; y++ {
			for x := 0; x < outX; x++ {
				src := game.SymLoc(inv, game.MakeLoc(x, y, outX), outX, outY)
				row[x] = byte(board.At(src))
			}
			hasher.Write(row)
		}

		ko := board.KoLoc()
		writeU64(uint64(int64(game.SymLoc(s, ko, xSize, ySize))) + 3)
		writeU64(uint64(hist.PresumedNextPla))
		phase := uint64(hist.ConsecutivePasses)
		if hist.GameFinished {
			phase |= 1 << 8
		}
		writeU64(phase)

		// Superko history enters the identity only when repetition is in
		// evidence: fold repeated recent positions order-independently, so
		// move-order transpositions in acyclic play share a node.
		repeated := hist.RepeatedRecentPosHashes(repBound)
		writeU64(uint64(len(repeated)))
		var repFold uint64
		for _, hashes := range repeated {
			repFold ^= hashes[s]
		}
		writeU64(repFold)
		return hasher.Sum64()
	}

	return Hash{Hi: fold(hashSeedHi), Lo: fold(hashSeedLo)}
}

// GetHashAndSymmetry canonicalizes the position at the end of hist: it
// enumerates the board symmetries valid for the geometry, picks the one whose
// image has the lexicographically smallest state hash, and reports that hash,
// the aligning symmetry (real frame -> canonical frame), and the set of
// symmetries of the canonical frame that map the position to itself.
func GetHashAndSymmetry(hist *game.BoardHistory, repBound, bookVersion int) (Hash, game.Symmetry, []game.Symmetry) {
	board := hist.RecentBoard()
	var hashes [game.NumSymmetries]Hash
	var valid [game.NumSymmetries]bool

	best := game.IdentitySymmetry
	for s := game.Symmetry(0); s < game.NumSymmetries; s++ {
		if !s.IsValidForSize(board.XSize, board.YSize) {
			continue
		}
		valid[s] = true
		hashes[s] = stateHashUnderSymmetry(hist, s, repBound, bookVersion)
		if hashes[s].Less(hashes[best]) {
			best = s
		}
	}

	canonical := hashes[best]
	var selfSyms []game.Symmetry
	for g := game.Symmetry(0); g < game.NumSymmetries; g++ {
		composed := best.Compose(g)
		if !valid[composed] {
			continue
		}
		if g.IsValidForSize(board.XSize, board.YSize) && hashes[composed] == canonical {
			selfSyms = append(selfSyms, g)
		}
	}
	return canonical, best, selfSyms
}
