package tree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/phylomc/internal/taxa"
)

// Parse reads a Newick string. Tip names are registered in registry (if
// non-nil) and the node array is derived with SetRoot(root, true). Missing
// branch lengths are zero; ages are computed from branch lengths with the
// deepest tip at age zero.
func Parse(s string, registry *taxa.Registry) (*Tree, error) {
	p := &newickParser{src: strings.TrimSpace(s)}
	root, err := p.subtree()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ';' {
		p.pos++
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing input")
	}
	if root.IsTip() {
		return nil, fmt.Errorf("%w: need at least two taxa", ErrTooFewTaxa)
	}
	return FromRoot(root, registry)
}

type newickParser struct {
	src string
	pos int
}

func (p *newickParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: at offset %d: %s", ErrNewick, p.pos, fmt.Sprintf(format, args...))
}

func (p *newickParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		case '[':
			end := strings.IndexByte(p.src[p.pos:], ']')
			if end < 0 {
				p.pos = len(p.src)
				return
			}
			p.pos += end + 1
		default:
			return
		}
	}
}

func (p *newickParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *newickParser) subtree() (*TopologyNode, error) {
	n := NewNode("", 0)
	if p.peek() == '(' {
		p.pos++
		for {
			c, err := p.subtree()
			if err != nil {
				return nil, err
			}
			n.AddChild(c)
			switch p.peek() {
			case ',':
				p.pos++
				continue
			case ')':
				p.pos++
			default:
				return nil, p.errorf("expected ',' or ')'")
			}
			break
		}
	}

	name, err := p.label()
	if err != nil {
		return nil, err
	}
	n.name = name
	if n.IsTip() && name == "" {
		return nil, p.errorf("unnamed tip")
	}

	if p.peek() == ':' {
		p.pos++
		p.skipSpace()
		start := p.pos
		for p.pos < len(p.src) && strings.IndexByte("0123456789.eE+-", p.src[p.pos]) >= 0 {
			p.pos++
		}
		bl, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			return nil, p.errorf("bad branch length %q", p.src[start:p.pos])
		}
		n.branchLength = bl
	}
	return n, nil
}

func (p *newickParser) label() (string, error) {
	c := p.peek()
	if c == '\'' || c == '"' {
		p.pos++
		end := strings.IndexByte(p.src[p.pos:], c)
		if end < 0 {
			return "", p.errorf("unterminated quoted label")
		}
		s := p.src[p.pos : p.pos+end]
		p.pos += end + 1
		return s, nil
	}
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("(),:;[ \t\n\r", p.src[p.pos]) < 0 {
		p.pos++
	}
	return p.src[start:p.pos], nil
}

// Newick writes the tree with branch lengths. Internal node names are written
// when set.
func (t *Tree) Newick() string {
	if t.root == nil {
		return ";"
	}
	var b strings.Builder
	writeNewick(&b, t.root)
	b.WriteByte(';')
	return b.String()
}

func writeNewick(b *strings.Builder, n *TopologyNode) {
	if n.IsInternal() {
		b.WriteByte('(')
		for i, c := range n.children {
			if i > 0 {
				b.WriteByte(',')
			}
			writeNewick(b, c)
		}
		b.WriteByte(')')
	}
	b.WriteString(quoteLabel(n.name))
	if n.parent != nil {
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(n.branchLength, 'g', -1, 64))
	}
}

func quoteLabel(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "(),:;[] \t'") {
		return "'" + strings.ReplaceAll(s, "'", "") + "'"
	}
	return s
}
