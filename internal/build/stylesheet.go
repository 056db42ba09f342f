package build

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/Masterminds/semver"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"

	"github.com/conneroisu/toolkit/internal/css"
	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/scanner"
	"github.com/conneroisu/toolkit/internal/types"
)

// CSSOutput holds both variants of a compiled stylesheet.
type CSSOutput struct {
	Modern []byte
	Legacy []byte
}

// Variant returns the output of one variant.
func (o CSSOutput) Variant(v types.Variant) []byte {
	if v == types.VariantLegacy {
		return o.Legacy
	}
	return o.Modern
}

// assetExternals are left untouched when a plain CSS entry is bundled.
var assetExternals = []string{
	"*.woff", "*.woff2", "*.eot", "*.ttf", "*.otf",
	"*.svg", "*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.webp",
}

// StylesheetCompiler compiles top-level stylesheets into their modern and
// legacy variants.
type StylesheetCompiler struct {
	fs            afero.Fs
	sass          Preprocessor
	engines       []api.Engine
	legacyEngines []api.Engine
}

// NewStylesheetCompiler creates a compiler. browsers and legacyBrowsers are
// engine targets such as chrome58 or ie8; the legacy variant is prefixed for
// both lists.
func NewStylesheetCompiler(fsys afero.Fs, sass Preprocessor, browsers, legacyBrowsers []string) (*StylesheetCompiler, error) {
	engines, err := ParseEngines(browsers)
	if err != nil {
		return nil, err
	}
	legacy, err := ParseEngines(legacyBrowsers)
	if err != nil {
		return nil, err
	}
	return &StylesheetCompiler{
		fs:            fsys,
		sass:          sass,
		engines:       engines,
		legacyEngines: append(append([]api.Engine{}, engines...), legacy...),
	}, nil
}

// CompileStylesheet produces the modern and the legacy variant of src.
//
// Each variant is preprocessed, prefixed for its engine targets and, for
// release builds, minified. Stylesheets declaring pseudo-classes then get
// companion selectors, and the legacy variant has its media queries
// flattened and opacity and color fallbacks added.
func (c *StylesheetCompiler) CompileStylesheet(ctx context.Context, src scanner.StylesheetSource, layout Layout) (CSSOutput, error) {
	var out CSSOutput
	for _, v := range src.Variants() {
		compiled, err := c.compileVariant(ctx, src, v, layout)
		if err != nil {
			return CSSOutput{}, err
		}
		if v.Variant == types.VariantLegacy {
			out.Legacy = compiled
		} else {
			out.Modern = compiled
		}
	}
	return out, nil
}

func (c *StylesheetCompiler) compileVariant(ctx context.Context, src scanner.StylesheetSource, v scanner.VariantSource, layout Layout) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, bundle, err := c.preprocess(ctx, v.Path)
	if err != nil {
		return nil, err
	}

	engines := c.engines
	if v.Variant == types.VariantLegacy {
		engines = c.legacyEngines
	}

	// Bundled import comments are written relative to the working
	// directory, so it is pinned to the stylesheet's own directory.
	abs, err := filepath.Abs(v.Path)
	if err != nil {
		return nil, tkerrors.FileSystemError(tkerrors.ErrCodeRead, v.Path, err)
	}
	opts := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(source),
			ResolveDir: filepath.Dir(abs),
			Sourcefile: filepath.Base(abs),
			Loader:     api.LoaderCSS,
		},
		AbsWorkingDir:    filepath.Dir(abs),
		Engines:          engines,
		MinifyWhitespace: layout.Minify(),
		MinifySyntax:     layout.Minify(),
		LogLevel:         api.LogLevelSilent,
		Write:            false,
	}
	if bundle {
		opts.Bundle = true
		opts.External = assetExternals
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return nil, esbuildError(v.Path, tkerrors.ErrCodeStylesheet, result.Errors)
	}
	if len(result.OutputFiles) == 0 {
		return nil, tkerrors.CompileError(v.Path, tkerrors.ErrCodeStylesheet, "esbuild produced no output", nil)
	}
	compiled := result.OutputFiles[0].Contents

	if src.PseudoClasses || v.Variant == types.VariantLegacy {
		sheet, err := css.Parse(compiled)
		if err != nil {
			return nil, tkerrors.CompileError(v.Path, tkerrors.ErrCodeStylesheet, err.Error(), err)
		}
		if src.PseudoClasses {
			css.ExpandPseudoClasses(sheet)
		}
		if v.Variant == types.VariantLegacy {
			css.Legacy(sheet)
		}
		mode := css.Pretty
		if layout.Minify() {
			mode = css.Compact
		}
		compiled = sheet.Bytes(mode)
	}

	if err := css.Validate(compiled); err != nil {
		return nil, tkerrors.CompileError(v.Path, tkerrors.ErrCodeStylesheet, "output is not valid CSS: "+err.Error(), err)
	}
	return compiled, nil
}

// preprocess returns plain CSS for path and whether its imports still need
// bundling.
func (c *StylesheetCompiler) preprocess(ctx context.Context, path string) ([]byte, bool, error) {
	switch filepath.Ext(path) {
	case ".scss", ".sass":
		if c.sass == nil {
			return nil, false, tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid, "no sass preprocessor configured for "+path)
		}
		out, err := c.sass.Preprocess(ctx, path)
		return out, false, err
	}

	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, false, tkerrors.FileSystemError(tkerrors.ErrCodeRead, path, err)
	}
	return data, true, nil
}

func esbuildError(path, code string, msgs []api.Message) *tkerrors.ToolkitError {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		lines = append(lines, m.Text)
	}

	err := tkerrors.CompileError(path, code, strings.Join(lines, "\n"), nil)
	if loc := msgs[0].Location; loc != nil {
		file := loc.File
		if file == "" || file == "<stdin>" {
			file = path
		}
		err = err.WithLocation(file, loc.Line, loc.Column)
	}
	return err
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseEngines converts targets such as chrome58 or safari11.1 into esbuild
// engines.
func ParseEngines(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, target := range targets {
		t := strings.ToLower(strings.TrimSpace(target))
		i := strings.IndexFunc(t, unicode.IsDigit)
		if i <= 0 {
			return nil, tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("browser target %q must be a name followed by a version", target))
		}
		name, ok := engineNames[t[:i]]
		if !ok {
			return nil, tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("unknown browser %q", t[:i]))
		}
		if _, err := semver.NewVersion(t[i:]); err != nil {
			return nil, tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("browser target %q has an invalid version", target))
		}
		engines = append(engines, api.Engine{Name: name, Version: t[i:]})
	}
	return engines, nil
}
