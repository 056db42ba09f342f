// Package fixtures generates the fixtures and options documents published
// for each component: one rendered-HTML fixture per example, and the
// component's declared parameter schema.
package fixtures

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/a-h/templ"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/types"
)

// Template renders a component for one set of example data.
type Template interface {
	Component(data map[string]interface{}) templ.Component
}

// Fixture is one rendered example.
type Fixture struct {
	Name    string                 `json:"name"`
	Options map[string]interface{} `json:"options"`
	HTML    string                 `json:"html"`
	Hidden  bool                   `json:"hidden"`
}

// FixturesDoc is the fixtures document of one component.
type FixturesDoc struct {
	Component string    `json:"component"`
	Fixtures  []Fixture `json:"fixtures"`
}

// OptionsDoc is the declared parameter schema of one component.
type OptionsDoc []types.Param

// GenerateFixtures renders every example of def. Any failing example fails
// the whole document.
func GenerateFixtures(ctx context.Context, def *types.ComponentDefinition, tmpl Template) (*FixturesDoc, error) {
	doc := &FixturesDoc{
		Component: def.Name,
		Fixtures:  make([]Fixture, 0, len(def.Examples)),
	}

	for _, ex := range def.Examples {
		var buf bytes.Buffer
		if err := tmpl.Component(ex.Data).Render(ctx, &buf); err != nil {
			return nil, tkerrors.RenderError(def.Name, ex.Name, err)
		}

		options := ex.Data
		if options == nil {
			options = map[string]interface{}{}
		}
		doc.Fixtures = append(doc.Fixtures, Fixture{
			Name:    ex.Name,
			Options: options,
			HTML:    strings.TrimSpace(buf.String()),
			Hidden:  ex.Hidden,
		})
	}

	return doc, nil
}

// GenerateOptions returns the declared parameters of def unchanged.
func GenerateOptions(def *types.ComponentDefinition) OptionsDoc {
	if def.Params == nil {
		return OptionsDoc{}
	}
	return OptionsDoc(def.Params)
}

// Marshal serializes a document with four-space indentation, sorted map
// keys and a trailing newline. Markup is not escaped.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
