package game

import (
	"sync"

	"github.com/bszcz/mt19937_64"
)

// Zobrist tables, one per board geometry, generated lazily from a fixed seed
// so hashes are stable across processes.
type zobristTable struct {
	xSize, ySize int
	cells        []uint64
	side         uint64
}

type zobristStore struct {
	mu     sync.Mutex
	tables map[[2]int]*zobristTable
}

var zobristTables = &zobristStore{tables: make(map[[2]int]*zobristTable)}

const zobristSeed = 0x9e3779b97f4a7c15

func getZobrist(xSize, ySize int) *zobristTable {
	zobristTables.mu.Lock()
	defer zobristTables.mu.Unlock()
	key := [2]int{xSize, ySize}
	if t, ok := zobristTables.tables[key]; ok {
		return t
	}
	rng := mt19937_64.New()
	rng.Seed(int64(zobristSeed ^ uint64(xSize)<<32 ^ uint64(ySize)))
	t := &zobristTable{
		xSize: xSize,
		ySize: ySize,
		cells: make([]uint64, xSize*ySize*2),
	}
	for i := range t.cells {
		t.cells[i] = rng.Uint64()
	}
	t.side = rng.Uint64()
	zobristTables.tables[key] = t
	return t
}

func (t *zobristTable) stone(l Loc, p Player) uint64 {
	switch p {
	case Black:
		return t.cells[int(l)*2]
	case White:
		return t.cells[int(l)*2+1]
	}
	return 0
}

// SideHash is the zobrist contribution of white being to move.
func SideHash(xSize, ySize int) uint64 {
	return getZobrist(xSize, ySize).side
}
