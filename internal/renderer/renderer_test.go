package renderer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
)

const componentsDir = "/src/toolkit/components"

func newTestRenderer(t *testing.T, templates map[string]string) *ComponentRenderer {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, src := range templates {
		require.NoError(t, afero.WriteFile(fsys, componentsDir+"/"+name+"/"+TemplateFile, []byte(src), 0o644))
	}
	return NewComponentRenderer(fsys, componentsDir, nil)
}

func render(t *testing.T, tmpl *Template, data map[string]interface{}) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := tmpl.Component(data).Render(context.Background(), &buf)
	return buf.String(), err
}

func TestLoadTemplateUsesMacroBlock(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"character-count": `{{define "govukCharacterCount"}}<div class="govuk-character-count" data-maxlength="{{.maxlength}}">{{.label.text}}</div>{{end}}`,
	})

	tmpl, err := r.LoadTemplate("character-count")
	require.NoError(t, err)
	assert.Equal(t, "govukCharacterCount", tmpl.Block())

	out, err := render(t, tmpl, map[string]interface{}{
		"maxlength": 10,
		"label":     map[string]interface{}{"text": "Can you <b>help</b>?"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`<div class="govuk-character-count" data-maxlength="10">Can you &lt;b&gt;help&lt;/b&gt;?</div>`,
		out)
}

func TestLoadTemplateFallsBackToRoot(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"tag": `<strong class="govuk-tag">{{default "Tag" .text}}</strong>`,
	})

	tmpl, err := r.LoadTemplate("tag")
	require.NoError(t, err)
	assert.Equal(t, "tag", tmpl.Block())

	out, err := render(t, tmpl, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, `<strong class="govuk-tag">Tag</strong>`, out)
}

func TestSafeFunc(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"hint": `<div class="govuk-hint">{{safe .html}}</div>`,
	})

	tmpl, err := r.LoadTemplate("hint")
	require.NoError(t, err)

	out, err := render(t, tmpl, map[string]interface{}{"html": "Use <em>both</em>"})
	require.NoError(t, err)
	assert.Equal(t, `<div class="govuk-hint">Use <em>both</em></div>`, out)
}

func TestLoadTemplateErrors(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"broken": `{{if .x}}unterminated`,
	})

	_, err := r.LoadTemplate("missing")
	assert.True(t, errors.Is(err, tkerrors.ErrNotFound))

	_, err = r.LoadTemplate("broken")
	assert.True(t, errors.Is(err, tkerrors.ErrCompile))

	for _, name := range []string{"../etc", "a/b", "", "."} {
		_, err = r.LoadTemplate(name)
		assert.True(t, errors.Is(err, tkerrors.ErrConfig), "name %q", name)
	}
}

func TestRenderRejectsBrokenMarkup(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"panel": `<div class="govuk-panel"></span></div>`,
	})

	tmpl, err := r.LoadTemplate("panel")
	require.NoError(t, err)

	_, err = render(t, tmpl, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "</span>")
}

func TestRenderExecutionError(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"list": `{{range .items}}<li>{{.}}</li>{{end}}{{index .items 5}}`,
	})

	tmpl, err := r.LoadTemplate("list")
	require.NoError(t, err)

	_, err = render(t, tmpl, map[string]interface{}{"items": []interface{}{"a"}})
	assert.Error(t, err)
}

func TestCheckMarkup(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		valid  bool
	}{
		{"balanced", `<div><p>One</p><br><input type="text"></div>`, true},
		{"omitted end tags", `<ul><li>One<li>Two</ul>`, true},
		{"text only", `Hello`, true},
		{"stray end tag", `<div></p>`, false},
		{"end tag only", `</div>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMarkup(tt.markup)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
