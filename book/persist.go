package book

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/kennyfs/KataCoffee/game"
)

// On-disk snapshot layout. Slices are sorted so that identical books encode
// to identical bytes; maps never hit the encoder.

type fileHeader struct {
	Magic       string
	BookVersion int
	XSize       int
	YSize       int
	InitialPla  game.Player
	// Initial setup stones in location order.
	SetupStones []fileStone
	Rules       game.Rules
	RepBound    int
	Params      Params
	RootHash    Hash
	RootSym     game.Symmetry
	NumNodes    int
	NumEdges    int
}

type fileStone struct {
	Loc game.Loc
	Pla game.Player
}

type fileNode struct {
	Hash            Hash
	Pla             game.Player
	CanExpand       bool
	CanReExpand     bool
	ValidSymmetries []game.Symmetry
	TV              BookValues
	RV              RecursiveValues
}

type fileEdge struct {
	Parent    Hash
	Move      game.Loc
	Child     Hash
	Symmetry  game.Symmetry
	RawPolicy float64
}

const fileMagic = "katacoffee-book"

// SaveToFile writes a zstd-compressed snapshot of the whole book.
func (b *Book) SaveToFile(path string) error {
	b.mu.Lock()
	header, nodes, edges := b.snapshotLocked()
	b.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating book file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	zw, err := zstd.NewWriter(bw, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("initializing compressor: %w", err)
	}
	enc := gob.NewEncoder(zw)
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("encoding book header: %w", err)
	}
	for _, n := range nodes {
		if err := enc.Encode(n); err != nil {
			return fmt.Errorf("encoding node %s: %w", n.Hash, err)
		}
	}
	for _, e := range edges {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding edge %s: %w", e.Parent, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing compression: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing book file: %w", err)
	}
	return f.Sync()
}

func (b *Book) snapshotLocked() (fileHeader, []fileNode, []fileEdge) {
	var setup []fileStone
	for i := 0; i < b.initialBoard.NumLocs(); i++ {
		if p := b.initialBoard.At(game.Loc(i)); p != game.Empty {
			setup = append(setup, fileStone{Loc: game.Loc(i), Pla: p})
		}
	}

	nodes := make([]fileNode, 0, len(b.nodes))
	var edges []fileEdge
	for _, n := range b.nodes {
		nodes = append(nodes, fileNode{
			Hash:            n.hash,
			Pla:             n.pla,
			CanExpand:       n.canExpand,
			CanReExpand:     n.canReExpand,
			ValidSymmetries: n.validSymmetries,
			TV:              n.tv,
			RV:              n.rv,
		})
		for _, move := range n.moveOrder {
			e := n.childrenInBook[move]
			edges = append(edges, fileEdge{
				Parent:    n.hash,
				Move:      move,
				Child:     e.child,
				Symmetry:  e.symmetry,
				RawPolicy: e.rawPolicy,
			})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Hash.Less(nodes[j].Hash) })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Parent != edges[j].Parent {
			return edges[i].Parent.Less(edges[j].Parent)
		}
		return edges[i].Move < edges[j].Move
	})

	header := fileHeader{
		Magic:       fileMagic,
		BookVersion: b.BookVersion,
		XSize:       b.initialBoard.XSize,
		YSize:       b.initialBoard.YSize,
		InitialPla:  b.initialPla,
		SetupStones: setup,
		Rules:       b.rules,
		RepBound:    b.repBound,
		Params:      b.params,
		RootHash:    b.rootHash,
		RootSym:     b.rootSymmetry,
		NumNodes:    len(nodes),
		NumEdges:    len(edges),
	}
	return header, nodes, edges
}

// LoadFromFile reads a snapshot back into a Book. Sharp score means further
// than sharpScoreOutlierCap from the plain score mean are clamped on the way
// in. The caller is responsible for applying bonuses and recomputing.
func LoadFromFile(path string, sharpScoreOutlierCap float64) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening book file: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("initializing decompressor: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var header fileHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("decoding book header: %w", err)
	}
	if header.Magic != fileMagic {
		return nil, fmt.Errorf("not a book file: bad magic %q", header.Magic)
	}
	if header.BookVersion < 1 || header.BookVersion > LatestBookVersion {
		return nil, fmt.Errorf("unsupported book version %d", header.BookVersion)
	}

	initialBoard := game.NewBoard(header.XSize, header.YSize)
	for _, st := range header.SetupStones {
		if err := initialBoard.SetStone(st.Loc, st.Pla); err != nil {
			return nil, fmt.Errorf("replaying setup stones: %w", err)
		}
	}

	b := &Book{
		BookVersion:          header.BookVersion,
		initialBoard:         initialBoard,
		initialPla:           header.InitialPla,
		rules:                header.Rules,
		repBound:             header.RepBound,
		params:               header.Params,
		sharpScoreOutlierCap: sharpScoreOutlierCap,
		nodes:                make(map[Hash]*bookNode, header.NumNodes),
		rootHash:             header.RootHash,
		rootSymmetry:         header.RootSym,
		bonusByHash:          make(map[Hash]float64),
	}

	for i := 0; i < header.NumNodes; i++ {
		var fn fileNode
		if err := dec.Decode(&fn); err != nil {
			return nil, fmt.Errorf("decoding node %d: %w", i, err)
		}
		n := newBookNode(fn.Hash, fn.Pla, fn.ValidSymmetries, fn.CanReExpand)
		n.canExpand = fn.CanExpand
		n.tv = clampSharpScore(fn.TV, sharpScoreOutlierCap)
		n.rv = fn.RV
		b.nodes[fn.Hash] = n
	}
	for i := 0; i < header.NumEdges; i++ {
		var fe fileEdge
		if err := dec.Decode(&fe); err != nil {
			return nil, fmt.Errorf("decoding edge %d: %w", i, err)
		}
		parent, ok := b.nodes[fe.Parent]
		if !ok {
			return nil, fmt.Errorf("edge references unknown parent %s", fe.Parent)
		}
		child, ok := b.nodes[fe.Child]
		if !ok {
			return nil, fmt.Errorf("edge references unknown child %s", fe.Child)
		}
		parent.addChild(fe.Move, &bookEdge{child: fe.Child, symmetry: fe.Symmetry, rawPolicy: fe.RawPolicy})
		child.parents = append(child.parents, parentRef{hash: fe.Parent, move: fe.Move})
	}
	if _, ok := b.nodes[b.rootHash]; !ok {
		return nil, fmt.Errorf("book file has no root node")
	}
	return b, nil
}

func clampSharpScore(tv BookValues, limit float64) BookValues {
	if limit <= 0 {
		return tv
	}
	if tv.SharpScoreMean > tv.ScoreMean+limit {
		tv.SharpScoreMean = tv.ScoreMean + limit
	} else if tv.SharpScoreMean < tv.ScoreMean-limit {
		tv.SharpScoreMean = tv.ScoreMean - limit
	}
	return tv
}

// CheckParams compares the caller's intended params against the loaded
// book's. With allowChanging false any difference is ErrConfigMismatch; with
// it true each differing field is overwritten and reported through onChange.
func (b *Book) CheckParams(intended Params, allowChanging bool, onChange func(name string, from, to float64)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	diffs := paramDiffs(b.params, intended)
	if len(diffs) == 0 {
		return nil
	}
	if !allowChanging {
		return fmt.Errorf("%w: %s differs", ErrConfigMismatch, diffs[0].name)
	}
	for _, d := range diffs {
		if onChange != nil {
			onChange(d.name, d.from, d.to)
		}
	}
	b.params = intended
	return nil
}

type paramDiff struct {
	name     string
	from, to float64
}

func paramDiffs(old, next Params) []paramDiff {
	fields := []struct {
		name     string
		from, to float64
	}{
		{"errorFactor", old.ErrorFactor, next.ErrorFactor},
		{"costPerMove", old.CostPerMove, next.CostPerMove},
		{"costPerUCBWinLossLoss", old.CostPerUCBWinLossLoss, next.CostPerUCBWinLossLoss},
		{"costPerUCBWinLossLossPow3", old.CostPerUCBWinLossLossPow3, next.CostPerUCBWinLossLossPow3},
		{"costPerUCBWinLossLossPow7", old.CostPerUCBWinLossLossPow7, next.CostPerUCBWinLossLossPow7},
		{"costPerUCBScoreLoss", old.CostPerUCBScoreLoss, next.CostPerUCBScoreLoss},
		{"costPerLogPolicy", old.CostPerLogPolicy, next.CostPerLogPolicy},
		{"costPerMovesExpanded", old.CostPerMovesExpanded, next.CostPerMovesExpanded},
		{"costPerSquaredMovesExpanded", old.CostPerSquaredMovesExpanded, next.CostPerSquaredMovesExpanded},
		{"costWhenPassFavored", old.CostWhenPassFavored, next.CostWhenPassFavored},
		{"bonusPerWinLossError", old.BonusPerWinLossError, next.BonusPerWinLossError},
		{"bonusPerScoreError", old.BonusPerScoreError, next.BonusPerScoreError},
		{"bonusPerSharpScoreDiscrepancy", old.BonusPerSharpScoreDiscrepancy, next.BonusPerSharpScoreDiscrepancy},
		{"bonusPerExcessUnexpandedPolicy", old.BonusPerExcessUnexpandedPolicy, next.BonusPerExcessUnexpandedPolicy},
		{"bonusForWLPV1", old.BonusForWLPV1, next.BonusForWLPV1},
		{"bonusForWLPV2", old.BonusForWLPV2, next.BonusForWLPV2},
		{"bonusForBiggestWLCost", old.BonusForBiggestWLCost, next.BonusForBiggestWLCost},
		{"scoreLossCap", old.ScoreLossCap, next.ScoreLossCap},
		{"utilityPerScore", old.UtilityPerScore, next.UtilityPerScore},
		{"policyBoostSoftUtilityScale", old.PolicyBoostSoftUtilityScale, next.PolicyBoostSoftUtilityScale},
		{"utilityPerPolicyForSorting", old.UtilityPerPolicyForSorting, next.UtilityPerPolicyForSorting},
		{"maxVisitsForReExpansion", old.MaxVisitsForReExpansion, next.MaxVisitsForReExpansion},
	}
	var diffs []paramDiff
	for _, f := range fields {
		if f.from != f.to {
			diffs = append(diffs, paramDiff{name: f.name, from: f.from, to: f.to})
		}
	}
	return diffs
}
