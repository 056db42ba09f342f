package css

import "strings"

// PseudoClasses are the interactive states given a companion class.
var PseudoClasses = []string{"link", "visited", "hover", "active", "focus"}

// ExpandPseudoClasses gives every selector using an interactive
// pseudo-class a companion selector in which each such pseudo-class is
// replaced by a class of the same name, so a:hover also matches
// a.\:hover. Review pages use the classes to show states statically.
func ExpandPseudoClasses(s *Stylesheet) {
	walk(s.Nodes, func(n *Node) {
		if n.Kind != RuleNode {
			return
		}
		expanded := make([]string, 0, len(n.Selectors))
		for _, sel := range n.Selectors {
			expanded = append(expanded, sel)
			if companion, ok := companionSelector(sel); ok {
				expanded = append(expanded, companion)
			}
		}
		n.Selectors = expanded
	})
}

func companionSelector(sel string) (string, bool) {
	var b strings.Builder
	replaced := false

	for i := 0; i < len(sel); i++ {
		c := sel[i]
		switch {
		case c == '\\' && i+1 < len(sel):
			b.WriteByte(c)
			b.WriteByte(sel[i+1])
			i++
			continue
		case c == ':' && i+1 < len(sel) && sel[i+1] == ':':
			b.WriteString("::")
			i++
			continue
		case c == ':':
			end := i + 1
			for end < len(sel) && isIdentByte(sel[end]) {
				end++
			}
			name := strings.ToLower(sel[i+1 : end])
			if isPseudoClass(name) && (end == len(sel) || sel[end] != '(') {
				b.WriteString(`.\:` + name)
				replaced = true
				i = end - 1
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String(), replaced
}

func isPseudoClass(name string) bool {
	for _, p := range PseudoClasses {
		if p == name {
			return true
		}
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' ||
		c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
