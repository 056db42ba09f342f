// Package renderer renders component templates for fixture generation.
//
// Each component keeps an html/template file next to its definition. The
// template may define a block named after the component's template macro
// (govukButton for button); that block is rendered when present, the whole
// file otherwise. Rendered templates are exposed as templ components so
// callers render them through the same interface as any other component.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"
	"github.com/spf13/afero"
	"golang.org/x/net/html"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/naming"
)

// TemplateFile is the template file name inside a component directory.
const TemplateFile = "template.html"

// ComponentRenderer loads component templates from a components directory.
type ComponentRenderer struct {
	fs            afero.Fs
	componentsDir string
	names         *naming.Cache
}

// NewComponentRenderer creates a new component renderer
func NewComponentRenderer(fsys afero.Fs, componentsDir string, names *naming.Cache) *ComponentRenderer {
	if names == nil {
		names = naming.NewCache()
	}
	return &ComponentRenderer{fs: fsys, componentsDir: componentsDir, names: names}
}

// TemplatePath returns the template file of a component.
func (r *ComponentRenderer) TemplatePath(component string) string {
	return filepath.Join(r.componentsDir, component, TemplateFile)
}

// LoadTemplate parses the template of a component.
func (r *ComponentRenderer) LoadTemplate(component string) (*Template, error) {
	if err := r.validateComponentName(component); err != nil {
		return nil, tkerrors.ErrPathTraversal(component).WithContext("reason", err.Error())
	}

	file := r.TemplatePath(component)
	src, err := afero.ReadFile(r.fs, file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, tkerrors.NotFound(file, err)
	}
	if err != nil {
		return nil, tkerrors.FileSystemError(tkerrors.ErrCodeRead, file, err)
	}

	macro := r.names.Get(component).TemplateMacro
	tmpl, err := template.New(component).Funcs(funcs).Parse(string(src))
	if err != nil {
		return nil, tkerrors.CompileError(file, tkerrors.ErrCodeTemplate, err.Error(), err).WithComponent(component)
	}

	block := component
	if tmpl.Lookup(macro) != nil {
		block = macro
	}
	return &Template{component: component, block: block, tmpl: tmpl}, nil
}

var funcs = template.FuncMap{
	// safe marks trusted markup passed in example data, such as html
	// options, as not needing escaping.
	"safe": func(s string) template.HTML { return template.HTML(s) },
	"default": func(fallback, value interface{}) interface{} {
		if value == nil || value == "" || value == false {
			return fallback
		}
		return value
	},
	"lower": strings.ToLower,
}

// Template is a parsed component template.
type Template struct {
	component string
	block     string
	tmpl      *template.Template
}

// Block returns the name of the template that is executed.
func (t *Template) Block() string { return t.block }

// Component binds data to the template.
func (t *Template) Component(data map[string]interface{}) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := t.tmpl.ExecuteTemplate(&buf, t.block, data); err != nil {
			return err
		}
		if err := CheckMarkup(buf.String()); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	})
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// CheckMarkup reports end tags that close no open element. Elements whose
// end tag HTML lets authors omit may stay open.
func CheckMarkup(markup string) error {
	z := html.NewTokenizer(strings.NewReader(markup))
	var open []string

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return err
			}
			return nil
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				open = append(open, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			i := len(open) - 1
			for i >= 0 && open[i] != string(name) {
				i--
			}
			if i < 0 {
				return fmt.Errorf("unexpected end tag </%s>", name)
			}
			open = open[:i]
		}
	}
}

// validateComponentName validates component name to prevent path traversal
func (r *ComponentRenderer) validateComponentName(name string) error {
	cleanName := filepath.Clean(name)

	if strings.Contains(cleanName, "..") {
		return fmt.Errorf("path traversal attempt detected: %s", name)
	}

	if filepath.IsAbs(cleanName) {
		return fmt.Errorf("absolute path not allowed: %s", name)
	}

	if strings.ContainsRune(cleanName, os.PathSeparator) || strings.ContainsRune(cleanName, '/') {
		return fmt.Errorf("path separators not allowed in component name: %s", name)
	}

	if cleanName == "" || cleanName == "." {
		return fmt.Errorf("empty or invalid component name: %s", name)
	}

	return nil
}
