// Package css holds a small rule tree for compiled stylesheets and the
// post-processing steps applied to it: companion classes for interactive
// pseudo-classes and the fallbacks the legacy variant needs.
//
// Parsing is done by tdewolff/parse; the tree keeps only what the
// post-processors inspect and prints everything else back verbatim.
package css

import (
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	tdcss "github.com/tdewolff/parse/v2/css"
)

// NodeKind identifies a node of the rule tree.
type NodeKind int

const (
	CommentNode NodeKind = iota
	AtRuleNode
	RuleNode
)

// Declaration is one property: value pair.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

// Node is a comment, an at-rule or a style rule.
type Node struct {
	Kind NodeKind

	// Name is the at-rule name without the leading @, or the full comment.
	Name    string
	Prelude string
	// Block is set for at-rules followed by a block rather than a semicolon.
	Block bool
	// Raw is the verbatim body of a block at-rule the parser does not know.
	Raw string

	Selectors    []string
	Declarations []Declaration
	Children     []*Node
}

// Stylesheet is a parsed stylesheet.
type Stylesheet struct {
	Nodes []*Node
}

// Parse builds the rule tree of src. Any syntax error the parser reports
// fails the parse.
func Parse(src []byte) (*Stylesheet, error) {
	p := tdcss.NewParser(parse.NewInputBytes(src), false)
	root := &Node{}
	stack := []*Node{root}

	for {
		gt, _, data := p.Next()
		top := stack[len(stack)-1]

		switch gt {
		case tdcss.ErrorGrammar:
			if p.HasParseError() {
				return nil, p.Err()
			}
			if err := p.Err(); err != io.EOF {
				return nil, err
			}
			return &Stylesheet{Nodes: root.Children}, nil

		case tdcss.CommentGrammar:
			top.Children = append(top.Children, &Node{Kind: CommentNode, Name: string(data)})

		case tdcss.AtRuleGrammar, tdcss.BeginAtRuleGrammar:
			n := &Node{
				Kind:    AtRuleNode,
				Name:    strings.TrimPrefix(string(data), "@"),
				Prelude: strings.TrimSpace(joinTokens(p.Values())),
				Block:   gt == tdcss.BeginAtRuleGrammar,
			}
			top.Children = append(top.Children, n)
			if n.Block {
				stack = append(stack, n)
			}

		case tdcss.BeginRulesetGrammar:
			n := &Node{Kind: RuleNode, Selectors: splitSelectors(p.Values())}
			top.Children = append(top.Children, n)
			stack = append(stack, n)

		case tdcss.EndAtRuleGrammar, tdcss.EndRulesetGrammar:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}

		case tdcss.DeclarationGrammar:
			top.Declarations = append(top.Declarations, declaration(string(data), p.Values()))

		case tdcss.CustomPropertyGrammar:
			d := Declaration{Property: string(data)}
			if values := p.Values(); len(values) > 0 {
				d.Value = strings.TrimSpace(string(values[0].Data))
			}
			top.Declarations = append(top.Declarations, d)

		case tdcss.TokenGrammar:
			if top.Kind == AtRuleNode && top.Block {
				top.Raw += string(data)
			}
		}
	}
}

// Validate reports whether src is syntactically valid CSS.
func Validate(src []byte) error {
	_, err := Parse(src)
	return err
}

func joinTokens(tokens []tdcss.Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.Write(t.Data)
	}
	return b.String()
}

func splitSelectors(tokens []tdcss.Token) []string {
	var selectors []string
	var b strings.Builder
	for _, t := range tokens {
		if t.TokenType == tdcss.CommaToken {
			selectors = append(selectors, strings.TrimSpace(b.String()))
			b.Reset()
			continue
		}
		b.Write(t.Data)
	}
	return append(selectors, strings.TrimSpace(b.String()))
}

func declaration(property string, values []tdcss.Token) Declaration {
	d := Declaration{Property: property}
	n := len(values)
	if n >= 2 &&
		values[n-2].TokenType == tdcss.DelimToken && string(values[n-2].Data) == "!" &&
		values[n-1].TokenType == tdcss.IdentToken && strings.EqualFold(string(values[n-1].Data), "important") {
		d.Important = true
		values = values[:n-2]
	}
	d.Value = strings.TrimSpace(joinTokens(values))
	return d
}

// walk visits every node depth-first.
func walk(nodes []*Node, fn func(*Node)) {
	for _, n := range nodes {
		fn(n)
		walk(n.Children, fn)
	}
}
