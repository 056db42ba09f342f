package css

import (
	"strings"
)

// Mode selects how a stylesheet is printed.
type Mode int

const (
	// Pretty prints one declaration per line with two-space indentation.
	Pretty Mode = iota
	// Compact prints without insignificant whitespace and keeps only
	// /*! comments.
	Compact
)

// Bytes prints the stylesheet.
func (s *Stylesheet) Bytes(mode Mode) []byte {
	p := printer{compact: mode == Compact}
	p.nodes(s.Nodes, 0)
	out := p.b.String()
	if !p.compact && out != "" {
		out = strings.TrimRight(out, "\n") + "\n"
	}
	return []byte(out)
}

type printer struct {
	b       strings.Builder
	compact bool
}

func (p *printer) nodes(nodes []*Node, depth int) {
	for i, n := range nodes {
		if !p.compact && i > 0 && depth == 0 && nodes[i-1].Kind != CommentNode {
			p.b.WriteByte('\n')
		}
		switch n.Kind {
		case CommentNode:
			if p.compact && !strings.HasPrefix(n.Name, "/*!") {
				continue
			}
			p.indent(depth)
			p.b.WriteString(n.Name)
			p.newline()
		case AtRuleNode:
			p.atRule(n, depth)
		case RuleNode:
			p.indent(depth)
			sep := ",\n" + strings.Repeat("  ", depth)
			if p.compact {
				sep = ","
			}
			p.b.WriteString(strings.Join(n.Selectors, sep))
			p.block(n, depth)
		}
	}
}

func (p *printer) atRule(n *Node, depth int) {
	p.indent(depth)
	p.b.WriteString("@" + n.Name)
	if n.Prelude != "" {
		p.b.WriteString(" " + n.Prelude)
	}
	if !n.Block {
		p.b.WriteByte(';')
		p.newline()
		return
	}
	if n.Raw != "" {
		if !p.compact {
			p.b.WriteByte(' ')
		}
		p.b.WriteString("{" + strings.TrimSpace(n.Raw) + "}")
		p.newline()
		return
	}
	p.block(n, depth)
}

func (p *printer) block(n *Node, depth int) {
	if p.compact {
		p.b.WriteByte('{')
	} else {
		p.b.WriteString(" {\n")
	}

	for i, d := range n.Declarations {
		if p.compact {
			if i > 0 {
				p.b.WriteByte(';')
			}
			p.b.WriteString(d.Property + ":" + d.Value)
			if d.Important {
				p.b.WriteString("!important")
			}
			continue
		}
		p.indent(depth + 1)
		p.b.WriteString(d.Property + ": " + d.Value)
		if d.Important {
			p.b.WriteString(" !important")
		}
		p.b.WriteString(";\n")
	}
	if p.compact && len(n.Declarations) > 0 && len(n.Children) > 0 {
		p.b.WriteByte(';')
	}

	p.nodes(n.Children, depth+1)

	p.indent(depth)
	p.b.WriteByte('}')
	p.newline()
}

func (p *printer) indent(depth int) {
	if !p.compact {
		p.b.WriteString(strings.Repeat("  ", depth))
	}
}

func (p *printer) newline() {
	if !p.compact {
		p.b.WriteByte('\n')
	}
}
