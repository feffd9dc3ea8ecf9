package book

import (
	"github.com/kennyfs/KataCoffee/game"
)

// BookValues summarizes the hypothetical best move outside the current child
// set of a node ("thisValuesNotInBook"). Win/loss and scores are
// white-positive.
type BookValues struct {
	WinLossValue   float64
	ScoreMean      float64
	SharpScoreMean float64
	WinLossError   float64
	ScoreError     float64
	ScoreStdev     float64
	MaxPolicy      float64
	Weight         float64
	Visits         float64
}

// RecursiveValues aggregates a node's subtree for the selector
// ("recursiveValues"). Derived entirely from childrenInBook, the children's
// RecursiveValues, the node's own BookValues, and its bonus; recomputable at
// any time.
type RecursiveValues struct {
	Visits         float64
	WinLossValue   float64
	ScoreMean      float64
	SharpScoreMean float64
	WinLossError   float64
	ScoreError     float64
	// BestMoveInBook is the canonical move of the child realizing
	// WinLossValue, or NullLoc when the best option is the hypothetical move
	// outside the book.
	BestMoveInBook game.Loc

	// Selector state, refreshed by the cost pass.
	MinCostFromRoot    float64
	TotalExpansionCost float64
	WLCostFromRoot     float64
	IsWLPV1            bool
	IsWLPV2            bool
	IsBiggestWLCost    bool
}

// bookEdge records one parent -> child relation: the canonical move in the
// parent's frame, the symmetry composing the parent's canonical frame into
// the child's, and the raw (full-symmetry) policy of the move.
type bookEdge struct {
	child     Hash
	symmetry  game.Symmetry
	rawPolicy float64
}

type parentRef struct {
	hash Hash
	move game.Loc
}

// bookNode is the arena-owned record of one canonical position. All fields
// are guarded by the book's mutex.
type bookNode struct {
	hash           Hash
	pla            game.Player
	childrenInBook map[game.Loc]*bookEdge
	// moveOrder remembers insertion order of childrenInBook for deterministic
	// persistence and iteration.
	moveOrder []game.Loc
	parents   []parentRef

	validSymmetries []game.Symmetry

	tv          BookValues
	rv          RecursiveValues
	canExpand   bool
	canReExpand bool
}

func newBookNode(hash Hash, pla game.Player, validSymmetries []game.Symmetry, canReExpand bool) *bookNode {
	return &bookNode{
		hash:            hash,
		pla:             pla,
		childrenInBook:  make(map[game.Loc]*bookEdge),
		validSymmetries: validSymmetries,
		canExpand:       true,
		canReExpand:     canReExpand,
	}
}

func (n *bookNode) addChild(move game.Loc, e *bookEdge) {
	if _, ok := n.childrenInBook[move]; ok {
		return
	}
	n.childrenInBook[move] = e
	n.moveOrder = append(n.moveOrder, move)
}

// Node is a handle to a book node viewed through a symmetry: symmetry maps
// the node's canonical frame into the frame the caller is walking in. Handles
// are cheap and may be copied; they must be re-resolved under the book lock
// before mutation, which the Book's methods do internally.
type Node struct {
	book     *Book
	node     *bookNode
	symmetry game.Symmetry
}

func (n Node) IsNil() bool { return n.node == nil }

func (n Node) Hash() Hash { return n.node.hash }

func (n Node) Pla() game.Player { return n.node.pla }

// CanonicalMove maps a move in the handle's frame to the node's canonical
// frame, reduced modulo the node's self-symmetries so that symmetric sibling
// moves share one edge.
func (n Node) CanonicalMove(l game.Loc) game.Loc {
	move, _ := n.canonicalMoveAndSym(l)
	return move
}

// canonicalMoveAndSym maps a frame move to its stored edge key: the smallest
// image of the canonical move under the node's self-symmetries. The returned
// symmetry is the self-symmetry performing that reduction; walkers compose
// its inverse into the child frame.
func (n Node) canonicalMoveAndSym(l game.Loc) (game.Loc, game.Symmetry) {
	// Transposing symmetries only arise on square boards, so every frame
	// shares the initial board's geometry.
	b := n.book.initialBoard
	move := game.SymLoc(n.symmetry.Inverse(), l, b.XSize, b.YSize)
	best := move
	bestSym := game.IdentitySymmetry
	for _, g := range n.node.validSymmetries {
		if img := game.SymLoc(g, move, b.XSize, b.YSize); img < best {
			best = img
			bestSym = g
		}
	}
	return best, bestSym
}

// FrameMove maps a canonical move of the node into the handle's frame.
func (n Node) FrameMove(l game.Loc) game.Loc {
	b := n.book.initialBoard
	return game.SymLoc(n.symmetry, l, b.XSize, b.YSize)
}
