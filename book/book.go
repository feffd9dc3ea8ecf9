package book

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kennyfs/KataCoffee/game"
)

// Params holds every cost/bonus scalar of the selection model. A book refuses
// to load under differing params unless the caller explicitly allows
// overwriting them.
type Params struct {
	ErrorFactor                    float64 `yaml:"errorFactor"`
	CostPerMove                    float64 `yaml:"costPerMove"`
	CostPerUCBWinLossLoss          float64 `yaml:"costPerUCBWinLossLoss"`
	CostPerUCBWinLossLossPow3      float64 `yaml:"costPerUCBWinLossLossPow3"`
	CostPerUCBWinLossLossPow7      float64 `yaml:"costPerUCBWinLossLossPow7"`
	CostPerUCBScoreLoss            float64 `yaml:"costPerUCBScoreLoss"`
	CostPerLogPolicy               float64 `yaml:"costPerLogPolicy"`
	CostPerMovesExpanded           float64 `yaml:"costPerMovesExpanded"`
	CostPerSquaredMovesExpanded    float64 `yaml:"costPerSquaredMovesExpanded"`
	CostWhenPassFavored            float64 `yaml:"costWhenPassFavored"`
	BonusPerWinLossError           float64 `yaml:"bonusPerWinLossError"`
	BonusPerScoreError             float64 `yaml:"bonusPerScoreError"`
	BonusPerSharpScoreDiscrepancy  float64 `yaml:"bonusPerSharpScoreDiscrepancy"`
	BonusPerExcessUnexpandedPolicy float64 `yaml:"bonusPerExcessUnexpandedPolicy"`
	BonusForWLPV1                  float64 `yaml:"bonusForWLPV1"`
	BonusForWLPV2                  float64 `yaml:"bonusForWLPV2"`
	BonusForBiggestWLCost          float64 `yaml:"bonusForBiggestWLCost"`
	ScoreLossCap                   float64 `yaml:"scoreLossCap"`
	UtilityPerScore                float64 `yaml:"utilityPerScore"`
	PolicyBoostSoftUtilityScale    float64 `yaml:"policyBoostSoftUtilityScale"`
	UtilityPerPolicyForSorting     float64 `yaml:"utilityPerPolicyForSorting"`
	MaxVisitsForReExpansion        float64 `yaml:"maxVisitsForReExpansion"`
}

var (
	ErrConfigMismatch = errors.New("book parameters do not match")
	ErrIntegrity      = errors.New("book integrity check failed")
)

// Book is the symmetry-aware transposition graph of positions. It uniquely
// owns every node; edges refer to nodes by canonical hash, never by pointer
// handed outside. One mutex serializes all structural reads and writes;
// critical sections stay O(edges of one node).
type Book struct {
	mu sync.Mutex

	BookVersion int

	initialBoard *game.Board
	initialPla   game.Player
	rules        game.Rules
	repBound     int

	params               Params
	sharpScoreOutlierCap float64

	nodes        map[Hash]*bookNode
	rootHash     Hash
	rootSymmetry game.Symmetry

	bonusByHash map[Hash]float64
}

// New creates a fresh book containing only the root position.
func New(
	bookVersion int,
	initialBoard *game.Board,
	rules game.Rules,
	initialPla game.Player,
	repBound int,
	params Params,
	sharpScoreOutlierCap float64,
) *Book {
	b := &Book{
		BookVersion:          bookVersion,
		initialBoard:         initialBoard.Copy(),
		initialPla:           initialPla,
		rules:                rules,
		repBound:             repBound,
		params:               params,
		sharpScoreOutlierCap: sharpScoreOutlierCap,
		nodes:                make(map[Hash]*bookNode),
		bonusByHash:          make(map[Hash]float64),
	}
	hist := b.InitialHist()
	hash, align, selfSyms := GetHashAndSymmetry(hist, repBound, bookVersion)
	b.rootHash = hash
	b.rootSymmetry = align.Inverse()
	root := newBookNode(hash, initialPla, selfSyms, false)
	b.nodes[hash] = root
	return b
}

// InitialHist returns a fresh history at the book's starting position, in the
// real (configured) frame.
func (b *Book) InitialHist() *game.BoardHistory {
	return game.NewBoardHistory(b.initialBoard, b.initialPla, b.rules)
}

func (b *Book) InitialBoard() *game.Board { return b.initialBoard.Copy() }

func (b *Book) InitialPla() game.Player { return b.initialPla }

func (b *Book) Rules() game.Rules { return b.rules }

func (b *Book) RepBound() int { return b.repBound }

func (b *Book) Params() Params {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.params
}

func (b *Book) SetParams(p Params) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params = p
}

func (b *Book) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nodes)
}

// SetBonusByHash replaces the user bonus annotation map.
func (b *Book) SetBonusByHash(bonus map[Hash]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bonusByHash = make(map[Hash]float64, len(bonus))
	for k, v := range bonus {
		b.bonusByHash[k] = v
	}
}

// Root returns a handle to the root node in the real frame.
func (b *Book) Root() Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Node{book: b, node: b.nodes[b.rootHash], symmetry: b.rootSymmetry}
}

// ByHash looks a node up by canonical hash. The handle is in the node's
// canonical frame.
func (b *Book) ByHash(h Hash) Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[h]
	if !ok {
		return Node{}
	}
	return Node{book: b, node: n, symmetry: game.IdentitySymmetry}
}

// IsMoveInBook reports whether the move (in the handle's frame) has an edge.
func (b *Book) IsMoveInBook(n Node, move game.Loc) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := n.node.childrenInBook[n.CanonicalMove(move)]
	return ok
}

// MovesInBook lists the node's booked moves in the handle's frame, in
// insertion order.
func (b *Book) MovesInBook(n Node) []game.Loc {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]game.Loc, 0, len(n.node.moveOrder))
	for _, m := range n.node.moveOrder {
		out = append(out, n.FrameMove(m))
	}
	return out
}

func (b *Book) NumUniqueMovesInBook(n Node) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(n.node.childrenInBook)
}

// Follow walks the edge for the move given in the handle's frame.
func (b *Book) Follow(n Node, move game.Loc) Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.followLocked(n, move)
}

func (b *Book) followLocked(n Node, move game.Loc) Node {
	key, reduceSym := n.canonicalMoveAndSym(move)
	e, ok := n.node.childrenInBook[key]
	if !ok {
		return Node{}
	}
	child := b.nodes[e.child]
	// childCanonical -> frame: undo the edge symmetry, undo the self-symmetry
	// reduction, then apply the handle's own frame symmetry.
	sym := e.symmetry.Inverse().Compose(reduceSym.Inverse()).Compose(n.symmetry)
	return Node{book: b, node: child, symmetry: sym}
}

// PlayAndAddMove applies move (in the handle's frame) to hist, canonicalizes
// the resulting position, inserts the child node if new, and records the
// parent edge. Idempotent per (parent, canonical move): an existing edge is
// returned as-is. Reports whether the child already existed anywhere in the
// graph (a transposition).
func (b *Book) PlayAndAddMove(n Node, hist *game.BoardHistory, move game.Loc, rawPolicy float64) (child Node, isTransposition bool, err error) {
	if !hist.IsLegal(move, n.Pla()) {
		return Node{}, false, fmt.Errorf("illegal move %s in book frame", game.LocString(move, b.initialBoard.XSize, b.initialBoard.YSize))
	}
	if err := hist.MakeMove(move, n.Pla()); err != nil {
		return Node{}, false, err
	}
	// Canonicalization runs without the lock; it is the expensive part.
	childHash, childAlign, selfSyms := GetHashAndSymmetry(hist, b.repBound, b.BookVersion)

	b.mu.Lock()
	defer b.mu.Unlock()

	canonMove, reduceSym := n.canonicalMoveAndSym(move)
	if e, ok := n.node.childrenInBook[canonMove]; ok {
		existing := b.nodes[e.child]
		sym := e.symmetry.Inverse().Compose(reduceSym.Inverse()).Compose(n.symmetry)
		return Node{book: b, node: existing, symmetry: sym}, true, nil
	}

	childNode, existed := b.nodes[childHash]
	if !existed {
		childNode = newBookNode(childHash, n.Pla().Opponent(), selfSyms, true)
		b.nodes[childHash] = childNode
	}
	// The stored edge follows the reduced representative move, so fold the
	// inverse reduction in front of the played path's alignment.
	edgeSym := reduceSym.Inverse().Compose(n.symmetry).Compose(childAlign)
	n.node.addChild(canonMove, &bookEdge{child: childHash, symmetry: edgeSym, rawPolicy: rawPolicy})
	childNode.parents = append(childNode.parents, parentRef{hash: n.node.hash, move: canonMove})

	return Node{book: b, node: childNode, symmetry: childAlign.Inverse()}, existed, nil
}

// HistoryReachingHere reconstructs a move history from the book root to n, in
// the real frame, by walking the node's first-parent chain. The returned
// handle refers to the same node but viewed in the reconstructed history's
// frame; callers must use it for any further move mapping against that
// history. Returns false if the walk fails (graph corruption).
func (b *Book) HistoryReachingHere(n Node) (*game.BoardHistory, []game.Loc, Node, bool) {
	b.mu.Lock()
	// Collect the (node, canonical move in parent) chain up to the root.
	type step struct {
		parent *bookNode
		move   game.Loc
	}
	var chain []step
	cur := n.node
	seen := make(map[Hash]bool)
	for cur.hash != b.rootHash {
		if seen[cur.hash] || len(cur.parents) == 0 {
			b.mu.Unlock()
			return nil, nil, Node{}, false
		}
		seen[cur.hash] = true
		ref := cur.parents[0]
		parent, ok := b.nodes[ref.hash]
		if !ok {
			b.mu.Unlock()
			return nil, nil, Node{}, false
		}
		chain = append(chain, step{parent: parent, move: ref.move})
		cur = parent
	}
	b.mu.Unlock()

	// Replay top-down, tracking the frame symmetry of each node.
	hist := b.InitialHist()
	handle := b.Root()
	var moves []game.Loc
	for i := len(chain) - 1; i >= 0; i-- {
		frameMove := handle.FrameMove(chain[i].move)
		if !hist.MakeMoveTolerant(frameMove, handle.Pla()) {
			return nil, nil, Node{}, false
		}
		moves = append(moves, frameMove)
		handle = b.Follow(handle, frameMove)
		if handle.IsNil() {
			return nil, nil, Node{}, false
		}
	}
	if handle.Hash() != n.Hash() {
		return nil, nil, Node{}, false
	}
	return hist, moves, handle, true
}

// Accessors for flags and values. Each is one short critical section.

func (b *Book) CanExpand(n Node) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return n.node.canExpand
}

// MarkCannotExpand permanently disables expansion of n. Never re-enabled.
func (b *Book) MarkCannotExpand(n Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n.node.canExpand = false
}

func (b *Book) CanReExpand(n Node) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return n.node.canReExpand
}

func (b *Book) MarkReExpanded(n Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n.node.canReExpand = false
}

func (b *Book) ThisValuesNotInBook(n Node) BookValues {
	b.mu.Lock()
	defer b.mu.Unlock()
	return n.node.tv
}

func (b *Book) SetThisValuesNotInBook(n Node, tv BookValues) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n.node.tv = tv
}

func (b *Book) RecursiveValues(n Node) RecursiveValues {
	b.mu.Lock()
	defer b.mu.Unlock()
	return n.node.rv
}

func (b *Book) ValidSymmetries(n Node) []game.Symmetry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]game.Symmetry, len(n.node.validSymmetries))
	copy(out, n.node.validSymmetries)
	return out
}

func (b *Book) Bonus(n Node) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bonusByHash[n.node.hash]
}

// AllNodes returns handles to every node, in deterministic hash order.
func (b *Book) AllNodes() []Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allNodesLocked()
}

func (b *Book) allNodesLocked() []Node {
	out := make([]Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, Node{book: b, node: n, symmetry: game.IdentitySymmetry})
	}
	sortNodesByHash(out)
	return out
}

func sortNodesByHash(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].node.hash.Less(nodes[j].node.hash)
	})
}

// AllLeaves returns every node with no booked children and at least minVisits
// recursive visits, the seed set for trace-mode copying.
func (b *Book) AllLeaves(minVisits float64) []Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Node
	for _, n := range b.nodes {
		if len(n.childrenInBook) == 0 && n.rv.Visits >= minVisits {
			out = append(out, Node{book: b, node: n, symmetry: game.IdentitySymmetry})
		}
	}
	sortNodesByHash(out)
	return out
}

// IntegrityCheck walks every node's recorded move chain from the root and
// verifies the canonical hash matches. Returns the hashes that fail.
func (b *Book) IntegrityCheck() []Hash {
	var bad []Hash
	for _, n := range b.AllNodes() {
		hist, _, _, ok := b.HistoryReachingHere(n)
		if !ok {
			bad = append(bad, n.Hash())
			continue
		}
		hash, _, _ := GetHashAndSymmetry(hist, b.repBound, b.BookVersion)
		if hash != n.Hash() {
			bad = append(bad, n.Hash())
		}
	}
	return bad
}
