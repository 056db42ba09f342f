package build

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/naming"
	"github.com/conneroisu/toolkit/internal/scanner"
)

// ScriptResult is a bundled script and, when requested, its source map.
type ScriptResult struct {
	Code      []byte
	SourceMap []byte
}

// ScriptBundler bundles script modules into single-file browser globals.
type ScriptBundler struct {
	names *naming.Cache
}

// NewScriptBundler creates a bundler. A nil cache gets a fresh one.
func NewScriptBundler(names *naming.Cache) *ScriptBundler {
	if names == nil {
		names = naming.NewCache()
	}
	return &ScriptBundler{names: names}
}

// GlobalName is the browser global the bundle of src is exposed under.
func (b *ScriptBundler) GlobalName(src scanner.ScriptSource) string {
	if src.Scope == scanner.ScopeComponent {
		return b.names.Get(src.Component).BundleGlobal
	}
	return naming.SharedGlobal()
}

// BundleScript bundles src with its imports into one ES5 file that
// assigns the module to its global and also registers it with CommonJS or
// AMD loaders when present.
func (b *ScriptBundler) BundleScript(ctx context.Context, src scanner.ScriptSource, layout Layout) (ScriptResult, error) {
	if err := ctx.Err(); err != nil {
		return ScriptResult{}, err
	}

	entry, err := filepath.Abs(src.Path)
	if err != nil {
		return ScriptResult{}, tkerrors.FileSystemError(tkerrors.ErrCodeRead, src.Path, err)
	}
	root, err := filepath.Abs(layout.Root)
	if err != nil {
		return ScriptResult{}, tkerrors.FileSystemError(tkerrors.ErrCodeWrite, layout.Root, err)
	}

	global := b.GlobalName(src)
	opts := api.BuildOptions{
		EntryPoints:       []string{entry},
		AbsWorkingDir:     filepath.Dir(entry),
		Outfile:           filepath.Join(root, filepath.FromSlash(layout.Script(src))),
		Bundle:            true,
		Write:             false,
		Format:            api.FormatIIFE,
		Platform:          api.PlatformBrowser,
		GlobalName:        global,
		Target:            api.ES5,
		Footer:            map[string]string{"js": exportFooter(global, src.Scope == scanner.ScopeComponent)},
		MinifyWhitespace:  layout.Minify(),
		MinifyIdentifiers: layout.Minify(),
		MinifySyntax:      layout.Minify(),
		LogLevel:          api.LogLevelSilent,
	}
	if layout.SourceMaps() {
		opts.Sourcemap = api.SourceMapLinked
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return ScriptResult{}, esbuildError(src.Path, tkerrors.ErrCodeScript, result.Errors)
	}

	var out ScriptResult
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, ".map") {
			out.SourceMap = f.Contents
		} else {
			out.Code = f.Contents
		}
	}
	if out.Code == nil {
		return ScriptResult{}, tkerrors.CompileError(src.Path, tkerrors.ErrCodeScript, "esbuild produced no output", nil)
	}
	return out, nil
}

// exportFooter unwraps a component's default export onto its global and
// hands the global to CommonJS and AMD loaders.
func exportFooter(global string, component bool) string {
	var b strings.Builder
	if component {
		fmt.Fprintf(&b, "%[1]s = %[1]s && %[1]s[\"default\"] || %[1]s;\n", global)
	}
	fmt.Fprintf(&b, "if (typeof module === \"object\" && module.exports) { module.exports = %s; }\n", global)
	fmt.Fprintf(&b, "if (typeof define === \"function\" && define.amd) { define(function () { return %s; }); }", global)
	return b.String()
}
