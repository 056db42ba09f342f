package css

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `@charset "UTF-8";
/* banner */
a:hover, .link:focus::before { color: red; }
@media (min-width: 40.0625em) { .b { margin: 0 auto !important; } }
`

func mustParse(t *testing.T, src string) *Stylesheet {
	t.Helper()
	sheet, err := Parse([]byte(src))
	require.NoError(t, err)
	return sheet
}

func TestParseTree(t *testing.T) {
	sheet := mustParse(t, sample)
	require.Len(t, sheet.Nodes, 4)

	assert.Equal(t, AtRuleNode, sheet.Nodes[0].Kind)
	assert.Equal(t, "charset", sheet.Nodes[0].Name)
	assert.Equal(t, `"UTF-8"`, sheet.Nodes[0].Prelude)
	assert.False(t, sheet.Nodes[0].Block)

	assert.Equal(t, CommentNode, sheet.Nodes[1].Kind)

	rule := sheet.Nodes[2]
	assert.Equal(t, []string{"a:hover", ".link:focus::before"}, rule.Selectors)
	assert.Equal(t, []Declaration{{Property: "color", Value: "red"}}, rule.Declarations)

	media := sheet.Nodes[3]
	assert.Equal(t, "media", media.Name)
	assert.Equal(t, "(min-width:40.0625em)", media.Prelude)
	require.Len(t, media.Children, 1)
	assert.Equal(t, []Declaration{{Property: "margin", Value: "0 auto", Important: true}}, media.Children[0].Declarations)
}

func TestPrint(t *testing.T) {
	sheet := mustParse(t, sample)

	assert.Equal(t, `@charset "UTF-8";

/* banner */
a:hover,
.link:focus::before {
  color: red;
}

@media (min-width:40.0625em) {
  .b {
    margin: 0 auto !important;
  }
}
`, string(sheet.Bytes(Pretty)))

	assert.Equal(t,
		`@charset "UTF-8";a:hover,.link:focus::before{color:red}@media (min-width:40.0625em){.b{margin:0 auto!important}}`,
		string(sheet.Bytes(Compact)))
}

func TestPrintRoundTripIsStable(t *testing.T) {
	first := mustParse(t, sample).Bytes(Pretty)
	second := mustParse(t, string(first)).Bytes(Pretty)
	assert.Equal(t, string(first), string(second))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		valid bool
	}{
		{"empty", "", true},
		{"rule", "a{color:red}", true},
		{"custom property", ":root{--gap: 4px}", true},
		{"font-face", "@font-face{font-family:x;src:url(x.woff2)}", true},
		{"missing colon", "a { color }", false},
		{"stray brace", "a{color:red}}", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.src))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestExpandPseudoClasses(t *testing.T) {
	sheet := mustParse(t, `a:hover, .x:focus::before, p::first-line, b:not(:focus) {color:red}
@media print { a:visited:active { color: blue } }
li:nth-child(2) { color: green }`)

	ExpandPseudoClasses(sheet)

	assert.Equal(t, []string{
		"a:hover", `a.\:hover`,
		".x:focus::before", `.x.\:focus::before`,
		"p::first-line",
		"b:not(:focus)", `b:not(.\:focus)`,
	}, sheet.Nodes[0].Selectors)
	assert.Equal(t, []string{"a:visited:active", `a.\:visited.\:active`}, sheet.Nodes[1].Children[0].Selectors)
	assert.Equal(t, []string{"li:nth-child(2)"}, sheet.Nodes[2].Selectors)
}

func TestMediaEnvironmentMatches(t *testing.T) {
	env := DesktopEnvironment
	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"all", true},
		{"screen", true},
		{"print", false},
		{"(min-width:40.0625em)", true},
		{"(min-width:1025px)", false},
		{"(max-width:40.0525em)", false},
		{"screen and (min-width:641px) and (max-width:1024px)", true},
		{"only screen and (orientation:landscape)", true},
		{"not print", true},
		{"print,(min-width:20em)", true},
		{"(min-resolution:2dppx)", false},
		{"not (min-resolution:2dppx)", false},
		{"(min-width:50vw)", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, env.Matches(tt.query))
		})
	}
}

func TestUnwrapMediaQueries(t *testing.T) {
	sheet := mustParse(t, `.a{color:red}
@media (min-width: 40.0625em) { .b { color: blue } }
@media (max-width: 40.0525em) { .c { color: green } }
@media print { .d { display: none } }
@supports (display:grid) { @media (min-width: 48em) { .e { display: grid } } }`)

	UnwrapMediaQueries(sheet, DesktopEnvironment)

	assert.Equal(t,
		".a{color:red}.b{color:blue}@supports (display:grid){.e{display:grid}}",
		string(sheet.Bytes(Compact)))
}

func TestAddOpacityFallbacks(t *testing.T) {
	sheet := mustParse(t, `.a{opacity:.5}.b{opacity:25%}.c{opacity:.3;filter:none}.d{opacity:var(--o)}`)

	AddOpacityFallbacks(sheet)

	assert.Equal(t,
		".a{opacity:.5;filter:alpha(opacity=50)}.b{opacity:25%;filter:alpha(opacity=25)}.c{opacity:.3;filter:none}.d{opacity:var(--o)}",
		string(sheet.Bytes(Compact)))
}

func TestAddColorFallbacks(t *testing.T) {
	sheet := mustParse(t, `.a{color:rgba(255, 0, 0, .5)}
.b{border:1px solid hsla(120, 100%, 25%, .8)}
.c{background:rgba(0,0,0,0)}
.d{color:#fff;color:rgba(0,0,0,.5)}
.e{color:rgba(var(--c), .5)}
.f{--shadow: rgba(0,0,0,.5)}`)

	AddColorFallbacks(sheet)

	assert.Equal(t, []Declaration{
		{Property: "color", Value: "#ff0000"},
		{Property: "color", Value: "rgba(255,0,0,.5)"},
	}, sheet.Nodes[0].Declarations)
	assert.Equal(t, "1px solid #008000", sheet.Nodes[1].Declarations[0].Value)
	assert.Equal(t, "transparent", sheet.Nodes[2].Declarations[0].Value)
	assert.Len(t, sheet.Nodes[3].Declarations, 2)
	assert.Len(t, sheet.Nodes[4].Declarations, 1)
	assert.Len(t, sheet.Nodes[5].Declarations, 1)
}

func TestLegacyIsIdempotentOnOutput(t *testing.T) {
	sheet := mustParse(t, `.a{opacity:.5;color:rgba(0,0,0,.5)}@media (min-width:1px){.b{color:red}}`)
	Legacy(sheet)
	once := sheet.Bytes(Compact)

	again := mustParse(t, string(once))
	Legacy(again)
	assert.Equal(t, string(once), string(again.Bytes(Compact)))
}
