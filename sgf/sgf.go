// Package sgf reads the subset of SGF the book generator needs: board size,
// setup placements, first player, and every unique position of a game tree
// together with its node comments.
package sgf

import (
	"fmt"
	"strings"

	"github.com/kennyfs/KataCoffee/game"
)

// Node is one SGF node: its properties and child variations.
type Node struct {
	Props    map[string][]string
	Children []*Node
}

func (n *Node) prop(name string) (string, bool) {
	vals, ok := n.Props[name]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Sgf is one parsed game record.
type Sgf struct {
	Root *Node
}

// Parse reads an SGF game tree from text.
func Parse(text string) (*Sgf, error) {
	p := &parser{input: text}
	p.skipSpace()
	root, err := p.parseGameTree()
	if err != nil {
		return nil, err
	}
	return &Sgf{Root: root}, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != c {
		return fmt.Errorf("sgf: expected %q at offset %d", string(c), p.pos)
	}
	p.pos++
	return nil
}

// parseGameTree parses "(" sequence { gameTree } ")" and hangs subtrees off
// the last node of the sequence.
func (p *parser) parseGameTree() (*Node, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var first, last *Node
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("sgf: unexpected end of input")
		}
		switch p.input[p.pos] {
		case ';':
			node, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			if first == nil {
				first = node
			} else {
				last.Children = append(last.Children, node)
			}
			last = node
		case '(':
			child, err := p.parseGameTree()
			if err != nil {
				return nil, err
			}
			if last == nil {
				return nil, fmt.Errorf("sgf: variation before any node at offset %d", p.pos)
			}
			last.Children = append(last.Children, child)
		case ')':
			p.pos++
			if first == nil {
				return nil, fmt.Errorf("sgf: empty game tree at offset %d", p.pos)
			}
			return first, nil
		default:
			return nil, fmt.Errorf("sgf: unexpected %q at offset %d", string(p.input[p.pos]), p.pos)
		}
	}
}

func (p *parser) parseNode() (*Node, error) {
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	node := &Node{Props: make(map[string][]string)}
	for {
		p.skipSpace()
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] >= 'A' && p.input[p.pos] <= 'Z' {
			p.pos++
		}
		if p.pos == start {
			return node, nil
		}
		name := p.input[start:p.pos]
		for {
			p.skipSpace()
			if p.pos >= len(p.input) || p.input[p.pos] != '[' {
				break
			}
			p.pos++
			var sb strings.Builder
			for p.pos < len(p.input) && p.input[p.pos] != ']' {
				if p.input[p.pos] == '\\' && p.pos+1 < len(p.input) {
					p.pos++
				}
				sb.WriteByte(p.input[p.pos])
				p.pos++
			}
			if err := p.expect(']'); err != nil {
				return nil, err
			}
			node.Props[name] = append(node.Props[name], sb.String())
		}
	}
}

// XYSize reads the SZ property; "9" means square, "9:13" rectangular.
func (s *Sgf) XYSize() (x, y int, err error) {
	sz, ok := s.Root.prop("SZ")
	if !ok {
		return 19, 19, nil
	}
	if i := strings.IndexByte(sz, ':'); i >= 0 {
		if _, err := fmt.Sscanf(sz, "%d:%d", &x, &y); err != nil {
			return 0, 0, fmt.Errorf("sgf: bad SZ %q", sz)
		}
		return x, y, nil
	}
	if _, err := fmt.Sscanf(sz, "%d", &x); err != nil {
		return 0, 0, fmt.Errorf("sgf: bad SZ %q", sz)
	}
	return x, x, nil
}

func parseCoord(v string, xSize, ySize int) (game.Loc, error) {
	if v == "" || (v == "tt" && xSize <= 19 && ySize <= 19) {
		return game.PassLoc, nil
	}
	if len(v) != 2 {
		return game.NullLoc, fmt.Errorf("sgf: bad coordinate %q", v)
	}
	x := int(v[0] - 'a')
	y := int(v[1] - 'a')
	if x < 0 || x >= xSize || y < 0 || y >= ySize {
		return game.NullLoc, fmt.Errorf("sgf: coordinate %q off board", v)
	}
	return game.MakeLoc(x, y, xSize), nil
}

// Placements returns the AB/AW setup stones of the root.
func (s *Sgf) Placements() ([]game.Move, error) {
	x, y, err := s.XYSize()
	if err != nil {
		return nil, err
	}
	var out []game.Move
	for _, group := range []struct {
		prop string
		pla  game.Player
	}{{"AB", game.Black}, {"AW", game.White}} {
		for _, v := range s.Root.Props[group.prop] {
			loc, err := parseCoord(v, x, y)
			if err != nil {
				return nil, err
			}
			if loc == game.PassLoc {
				continue
			}
			out = append(out, game.Move{Loc: loc, Pla: group.pla})
		}
	}
	return out, nil
}

// FirstPlayerColor is the PL property if present, otherwise the color of the
// first move in the main line, defaulting to black.
func (s *Sgf) FirstPlayerColor() game.Player {
	if pl, ok := s.Root.prop("PL"); ok {
		if strings.EqualFold(pl, "W") {
			return game.White
		}
		return game.Black
	}
	node := s.Root
	for node != nil {
		if _, ok := node.prop("B"); ok {
			return game.Black
		}
		if _, ok := node.prop("W"); ok {
			return game.White
		}
		if len(node.Children) == 0 {
			break
		}
		node = node.Children[0]
	}
	return game.Black
}

// IterUniquePositions walks every variation, replaying moves from the given
// rules, and calls fn once per distinct position reached, with the node's
// comment. Lines containing illegal moves are truncated at the first one.
func (s *Sgf) IterUniquePositions(rules game.Rules, fn func(hist *game.BoardHistory, comment string)) error {
	xSize, ySize, err := s.XYSize()
	if err != nil {
		return err
	}
	board := game.NewBoard(xSize, ySize)
	placements, err := s.Placements()
	if err != nil {
		return err
	}
	for _, m := range placements {
		if err := board.SetStone(m.Loc, m.Pla); err != nil {
			return err
		}
	}
	hist := game.NewBoardHistory(board, s.FirstPlayerColor(), rules)

	type situation struct {
		posHash uint64
		nextPla game.Player
		moves   int
	}
	seen := make(map[situation]bool)

	var walk func(node *Node, hist *game.BoardHistory)
	walk = func(node *Node, hist *game.BoardHistory) {
		for _, group := range []struct {
			prop string
			pla  game.Player
		}{{"B", game.Black}, {"W", game.White}} {
			v, ok := node.prop(group.prop)
			if !ok {
				continue
			}
			loc, err := parseCoord(v, xSize, ySize)
			if err != nil {
				return
			}
			if !hist.MakeMoveTolerant(loc, group.pla) {
				return
			}
		}
		key := situation{
			posHash: hist.RecentBoard().PosHash(),
			nextPla: hist.PresumedNextPla,
			moves:   len(hist.Moves),
		}
		if !seen[key] {
			seen[key] = true
			comment, _ := node.prop("C")
			fn(hist, comment)
		}
		for _, child := range node.Children {
			walk(child, hist.Copy())
		}
	}
	walk(s.Root, hist)
	return nil
}
