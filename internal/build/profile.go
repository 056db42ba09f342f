package build

import (
	"fmt"
	"path"
	"strings"

	"github.com/conneroisu/toolkit/internal/config"
	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/scanner"
	"github.com/conneroisu/toolkit/internal/types"
)

// taskProfiles maps the task names accepted on the command line to the
// profile they build.
var taskProfiles = map[string]types.Profile{
	"dev":           types.ProfilePreview,
	"serve":         types.ProfilePreview,
	"compile":       types.ProfilePreview,
	"preview":       types.ProfilePreview,
	"build:package": types.ProfilePackage,
	"package":       types.ProfilePackage,
	"build:dist":    types.ProfileRelease,
	"build:release": types.ProfileRelease,
	"release":       types.ProfileRelease,
	"dist":          types.ProfileRelease,
}

// Request is what an invocation asks for. Profile beats Task, Dest beats
// the profile's configured destination.
type Request struct {
	Task    string
	Profile types.Profile
	Dest    string
}

// Resolve maps a request to the layout of the build.
func Resolve(cfg *config.Config, req Request) (Layout, error) {
	profile := req.Profile
	if profile == "" {
		task := req.Task
		if task == "" {
			task = "compile"
		}
		p, ok := taskProfiles[task]
		if !ok {
			return Layout{}, tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("unknown task %q", req.Task))
		}
		profile = p
	}

	dest := req.Dest
	if dest == "" {
		dest = DefaultDestination(cfg, profile)
	} else if err := config.ValidatePath(dest); err != nil {
		return Layout{}, tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid, "destination: "+err.Error())
	}
	if err := cfg.CheckDestination(dest); err != nil {
		return Layout{}, tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid, err.Error())
	}

	return Layout{
		Profile: profile,
		Root:    cfg.Abs(dest),
		Product: cfg.Product,
		Library: cfg.Source.Library,
	}, nil
}

// DefaultDestination is the configured destination root of profile.
func DefaultDestination(cfg *config.Config, profile types.Profile) string {
	switch profile {
	case types.ProfilePackage:
		return cfg.Destinations.Package
	case types.ProfileRelease:
		return cfg.Destinations.Release
	default:
		return cfg.Destinations.Preview
	}
}

// Layout decides where every artifact of one build lands. All paths it
// returns are slash-separated and relative to Root.
type Layout struct {
	Profile types.Profile
	Root    string
	Product string
	Library string
}

// Minify reports whether outputs are minified.
func (l Layout) Minify() bool { return l.Profile == types.ProfileRelease }

// SourceMaps reports whether scripts get linked source maps.
func (l Layout) SourceMaps() bool { return l.Profile == types.ProfilePreview }

// Fixtures reports whether fixture and options documents are generated.
func (l Layout) Fixtures() bool { return l.Profile != types.ProfileRelease }

// Versioned reports whether the versioning stage runs.
func (l Layout) Versioned() bool { return l.Profile == types.ProfileRelease }

// Stylesheet is the output path of one variant of a top-level stylesheet.
func (l Layout) Stylesheet(src scanner.StylesheetSource, variant types.Variant) string {
	name := src.Name
	if l.Profile == types.ProfileRelease && src.Library {
		name = l.Product
	}
	if variant == types.VariantLegacy {
		name += scanner.LegacySuffix
	}
	if l.Minify() {
		return name + ".min.css"
	}
	return name + ".css"
}

// Script is the output path of a script bundle. The package profile keeps
// the module's place in the library tree.
func (l Layout) Script(src scanner.ScriptSource) string {
	switch l.Profile {
	case types.ProfileRelease:
		return l.Product + ".min.js"
	case types.ProfilePackage:
		rel := strings.TrimSuffix(src.RelPath, path.Ext(src.RelPath)) + ".js"
		return path.Join(l.Library, rel)
	}
	return path.Base(src.RelPath)
}

// FixturesPath is the output path of a component's fixtures document.
func (l Layout) FixturesPath(component string) string {
	return path.Join(l.Library, "components", component, "fixtures.json")
}

// OptionsPath is the output path of a component's options document.
func (l Layout) OptionsPath(component string) string {
	return path.Join(l.Library, "components", component, "macro-options.json")
}

// Static is the output path of a verbatim copy.
func (l Layout) Static(f scanner.StaticFile) string {
	if l.Profile == types.ProfilePackage {
		return path.Join(l.Library, f.RelPath)
	}
	return f.RelPath
}
