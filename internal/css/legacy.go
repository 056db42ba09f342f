package css

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MediaEnvironment is the fixed device media queries are evaluated against
// when flattening them for browsers without media query support.
type MediaEnvironment struct {
	Type     string
	Width    float64
	Height   float64
	FontSize float64
}

// DesktopEnvironment is a 1024x768 screen with a 16px root font size.
var DesktopEnvironment = MediaEnvironment{Type: "screen", Width: 1024, Height: 768, FontSize: 16}

// Legacy applies every legacy-variant transform in order: media query
// flattening, opacity fallbacks and color fallbacks.
func Legacy(s *Stylesheet) {
	UnwrapMediaQueries(s, DesktopEnvironment)
	AddOpacityFallbacks(s)
	AddColorFallbacks(s)
}

// UnwrapMediaQueries replaces each @media block by its contents when env
// matches the query list and removes it otherwise. Queries using features
// that cannot be evaluated never match.
func UnwrapMediaQueries(s *Stylesheet, env MediaEnvironment) {
	s.Nodes = unwrapMedia(s.Nodes, env)
}

func unwrapMedia(nodes []*Node, env MediaEnvironment) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind == AtRuleNode && n.Block && strings.EqualFold(n.Name, "media") {
			if env.Matches(n.Prelude) {
				out = append(out, unwrapMedia(n.Children, env)...)
			}
			continue
		}
		if n.Kind == AtRuleNode && n.Block {
			n.Children = unwrapMedia(n.Children, env)
		}
		out = append(out, n)
	}
	return out
}

var andSeparator = regexp.MustCompile(`(?i)\s*\band\b\s*`)

// Matches reports whether any query of a comma-separated media query list
// matches env.
func (env MediaEnvironment) Matches(list string) bool {
	if strings.TrimSpace(list) == "" {
		return true
	}
	for _, query := range strings.Split(list, ",") {
		if match, ok := env.matchQuery(query); ok && match {
			return true
		}
	}
	return false
}

func (env MediaEnvironment) matchQuery(query string) (bool, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	negate := false
	if rest, ok := strings.CutPrefix(query, "not "); ok {
		negate, query = true, rest
	} else if rest, ok := strings.CutPrefix(query, "only "); ok {
		query = rest
	}

	match := true
	for _, part := range andSeparator.Split(query, -1) {
		part = strings.TrimSpace(part)
		var m, ok bool
		if strings.HasPrefix(part, "(") && strings.HasSuffix(part, ")") {
			m, ok = env.matchFeature(part[1 : len(part)-1])
		} else {
			m, ok = part == "all" || part == env.Type, part != ""
		}
		if !ok {
			return false, false
		}
		match = match && m
	}
	if negate {
		match = !match
	}
	return match, true
}

func (env MediaEnvironment) matchFeature(feature string) (bool, bool) {
	name, value, hasValue := strings.Cut(feature, ":")
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)

	if name == "orientation" {
		orientation := "landscape"
		if env.Height > env.Width {
			orientation = "portrait"
		}
		return value == orientation, hasValue
	}

	cmp := 0
	if rest, ok := strings.CutPrefix(name, "min-"); ok {
		cmp, name = 1, rest
	} else if rest, ok := strings.CutPrefix(name, "max-"); ok {
		cmp, name = -1, rest
	}

	var actual float64
	switch name {
	case "width", "device-width":
		actual = env.Width
	case "height", "device-height":
		actual = env.Height
	case "color":
		return !hasValue && cmp == 0, !hasValue
	default:
		return false, false
	}
	if !hasValue {
		return cmp == 0, cmp == 0
	}

	length, ok := env.pixels(value)
	if !ok {
		return false, false
	}
	switch cmp {
	case 1:
		return actual >= length, true
	case -1:
		return actual <= length, true
	}
	return actual == length, true
}

func (env MediaEnvironment) pixels(value string) (float64, bool) {
	unit := strings.TrimLeft(value, "+-.0123456789")
	number, err := strconv.ParseFloat(strings.TrimSuffix(value, unit), 64)
	if err != nil {
		return 0, false
	}
	switch unit {
	case "px":
		return number, true
	case "em", "rem":
		return number * env.FontSize, true
	case "":
		return number, number == 0
	}
	return 0, false
}

// AddOpacityFallbacks follows every opacity declaration with the
// equivalent alpha filter, unless the block already sets a filter.
func AddOpacityFallbacks(s *Stylesheet) {
	walk(s.Nodes, func(n *Node) {
		if len(n.Declarations) == 0 || hasProperty(n.Declarations, "filter", "-ms-filter") {
			return
		}
		out := make([]Declaration, 0, len(n.Declarations)+1)
		for _, d := range n.Declarations {
			out = append(out, d)
			if d.Property != "opacity" {
				continue
			}
			if alpha, ok := parseAlpha(d.Value); ok {
				out = append(out, Declaration{
					Property:  "filter",
					Value:     fmt.Sprintf("alpha(opacity=%d)", int(math.Round(alpha*100))),
					Important: d.Important,
				})
			}
		}
		n.Declarations = out
	})
}

func hasProperty(decls []Declaration, names ...string) bool {
	for _, d := range decls {
		for _, name := range names {
			if d.Property == name {
				return true
			}
		}
	}
	return false
}

var colorFunction = regexp.MustCompile(`(?i)\b(rgba?|hsla?)\(([^()]*)\)`)

// AddColorFallbacks precedes every declaration using rgba() or hsla() with
// a copy in which those colors are replaced by their opaque hex value, or
// by transparent when fully transparent. Declarations whose colors cannot
// be resolved, such as those using var(), are left alone.
func AddColorFallbacks(s *Stylesheet) {
	walk(s.Nodes, func(n *Node) {
		if len(n.Declarations) == 0 {
			return
		}
		out := make([]Declaration, 0, len(n.Declarations))
		for i, d := range n.Declarations {
			if fallback, ok := colorFallback(d.Value); ok && !strings.HasPrefix(d.Property, "--") &&
				(i == 0 || n.Declarations[i-1].Property != d.Property) {
				out = append(out, Declaration{Property: d.Property, Value: fallback, Important: d.Important})
			}
			out = append(out, d)
		}
		n.Declarations = out
	})
}

func colorFallback(value string) (string, bool) {
	lower := strings.ToLower(value)
	if !strings.Contains(lower, "rgba(") && !strings.Contains(lower, "hsla(") {
		return "", false
	}

	ok := true
	fallback := colorFunction.ReplaceAllStringFunc(value, func(fn string) string {
		m := colorFunction.FindStringSubmatch(fn)
		hex, resolved := resolveColor(strings.ToLower(m[1]), m[2])
		if !resolved {
			ok = false
			return fn
		}
		return hex
	})
	return fallback, ok && fallback != value
}

func resolveColor(fn, args string) (string, bool) {
	parts := strings.FieldsFunc(args, func(r rune) bool {
		return r == ',' || r == ' ' || r == '/'
	})
	if len(parts) != 3 && len(parts) != 4 {
		return "", false
	}

	alpha := 1.0
	if len(parts) == 4 {
		a, ok := parseAlpha(parts[3])
		if !ok {
			return "", false
		}
		alpha = a
	}
	if alpha == 0 {
		return "transparent", true
	}

	var r, g, b float64
	if strings.HasPrefix(fn, "rgb") {
		var ok [3]bool
		r, ok[0] = parseChannel(parts[0])
		g, ok[1] = parseChannel(parts[1])
		b, ok[2] = parseChannel(parts[2])
		if !ok[0] || !ok[1] || !ok[2] {
			return "", false
		}
	} else {
		h, errH := strconv.ParseFloat(strings.TrimSuffix(parts[0], "deg"), 64)
		sat, okS := parsePercent(parts[1])
		light, okL := parsePercent(parts[2])
		if errH != nil || !okS || !okL {
			return "", false
		}
		r, g, b = hslToRGB(h, sat, light)
	}
	return fmt.Sprintf("#%02x%02x%02x", clampByte(r), clampByte(g), clampByte(b)), true
}

func parseAlpha(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "%") {
		return parsePercent(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return math.Max(0, math.Min(1, v)), true
}

func parseChannel(s string) (float64, bool) {
	if strings.HasSuffix(s, "%") {
		p, ok := parsePercent(s)
		return p * 255, ok
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func parsePercent(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || !strings.HasSuffix(s, "%") {
		return 0, false
	}
	return math.Max(0, math.Min(1, v/100)), true
}

func hslToRGB(h, s, l float64) (float64, float64, float64) {
	h = math.Mod(math.Mod(h, 360)+360, 360) / 360
	if s == 0 {
		return l * 255, l * 255, l * 255
	}
	q := l * (1 + s)
	if l >= 0.5 {
		q = l + s - l*s
	}
	p := 2*l - q
	return hue(p, q, h+1.0/3) * 255, hue(p, q, h) * 255, hue(p, q, h-1.0/3) * 255
}

func hue(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}

func clampByte(v float64) int {
	return int(math.Max(0, math.Min(255, math.Round(v))))
}
