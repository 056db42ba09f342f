// Package scanner discovers the inputs of a build: the top-level
// stylesheets with their legacy counterparts, the script entry points with
// their scope, and the static files each profile ships.
//
// The legacy stylesheet variant and the script scope are decided here, once,
// and carried on the returned sources so later stages never inspect paths to
// recover them.
package scanner

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/listing"
	"github.com/conneroisu/toolkit/internal/types"
)

// LegacySuffix marks the legacy variant of a stylesheet, as in all-ie8.scss.
const LegacySuffix = "-ie8"

// LibraryEntry is the basename of the library's top-level stylesheet and
// shared script.
const LibraryEntry = "all"

// Scope tells the script bundler which global a bundle is exposed under.
type Scope string

const (
	ScopeComponent Scope = "component"
	ScopeShared    Scope = "shared"
)

// VariantSource is one variant input of a stylesheet.
type VariantSource struct {
	Variant types.Variant
	Path    string
}

// StylesheetSource is a top-level stylesheet. LegacyPath is the -ie8 sibling
// when one exists and Path otherwise.
type StylesheetSource struct {
	Name          string
	Path          string
	LegacyPath    string
	PseudoClasses bool
	Library       bool
}

// Variants returns the modern and the legacy input, in that order.
func (s StylesheetSource) Variants() []VariantSource {
	return []VariantSource{
		{Variant: types.VariantModern, Path: s.Path},
		{Variant: types.VariantLegacy, Path: s.LegacyPath},
	}
}

// ScriptSource is a script entry point. RelPath is relative to the library
// directory and slash-separated.
type ScriptSource struct {
	Path      string
	RelPath   string
	Scope     Scope
	Component string
}

// StaticFile is a file copied verbatim. RelPath is relative to the library
// directory and slash-separated.
type StaticFile struct {
	Path    string
	RelPath string
}

// ReviewStylesheet declares a review-application stylesheet relative to the
// project root.
type ReviewStylesheet struct {
	Path          string
	PseudoClasses bool
}

// Layout locates the inputs of a build.
type Layout struct {
	// ProjectRoot is the directory review stylesheets are relative to.
	ProjectRoot string
	// LibraryDir holds all.scss, all.js, components/ and assets/.
	LibraryDir string
	// ReviewStylesheets are compiled in the preview profile only.
	ReviewStylesheets []ReviewStylesheet
}

// ComponentsDir is the directory holding one subdirectory per component.
func (l Layout) ComponentsDir() string {
	return filepath.Join(l.LibraryDir, "components")
}

// Scanner discovers build inputs.
type Scanner struct {
	fs      afero.Fs
	listing *listing.Service
	layout  Layout
}

// New creates a scanner over fsys.
func New(fsys afero.Fs, layout Layout) *Scanner {
	return &Scanner{fs: fsys, listing: listing.New(fsys), layout: layout}
}

// Layout returns the scanner's layout.
func (s *Scanner) Layout() Layout { return s.layout }

var (
	scriptFilter = listing.Filter{
		Include: []string{"*.js", "*.mjs"},
		Exclude: []string{"*.test.js", "*.test.mjs", "**/__tests__/**", "vendor/**"},
	}
	assetFilter = listing.Filter{
		Include: []string{"assets/**"},
	}
	packageStaticFilter = listing.Filter{
		Exclude: []string{"*.js", "*.mjs", "*.yaml", "*.yml", "*.test.*", "**/__tests__/**", "**/__snapshots__/**"},
	}
)

// Stylesheets returns the top-level stylesheets compiled under profile,
// sorted by name. The package profile ships style sources and compiles none.
func (s *Scanner) Stylesheets(profile types.Profile) ([]StylesheetSource, error) {
	if profile == types.ProfilePackage {
		return nil, nil
	}

	library, err := s.libraryStylesheet()
	if err != nil {
		return nil, err
	}
	sheets := []StylesheetSource{library}

	if profile == types.ProfilePreview {
		for _, review := range s.layout.ReviewStylesheets {
			sheet, err := s.reviewStylesheet(review)
			if err != nil {
				return nil, err
			}
			sheets = append(sheets, sheet)
		}
	}

	sort.SliceStable(sheets, func(i, j int) bool { return sheets[i].Name < sheets[j].Name })
	for i := 1; i < len(sheets); i++ {
		if sheets[i].Name == sheets[i-1].Name {
			return nil, tkerrors.ConfigError(tkerrors.ErrCodeCollision,
				"two stylesheets compile to the same name: "+sheets[i].Name)
		}
	}
	return sheets, nil
}

func (s *Scanner) libraryStylesheet() (StylesheetSource, error) {
	files, err := s.listing.ListFiles(s.layout.LibraryDir)
	if err != nil {
		return StylesheetSource{}, err
	}
	for _, ext := range []string{".scss", ".css"} {
		if entry, ok := files[LibraryEntry+ext]; ok {
			sheet := StylesheetSource{
				Name:       LibraryEntry,
				Path:       entry.Path,
				LegacyPath: entry.Path,
				Library:    true,
			}
			if legacy, ok := files[LibraryEntry+LegacySuffix+ext]; ok {
				sheet.LegacyPath = legacy.Path
			}
			return sheet, nil
		}
	}
	return StylesheetSource{}, tkerrors.NotFound(filepath.Join(s.layout.LibraryDir, LibraryEntry+".scss"), nil)
}

func (s *Scanner) reviewStylesheet(review ReviewStylesheet) (StylesheetSource, error) {
	full := filepath.Join(s.layout.ProjectRoot, review.Path)
	ext := filepath.Ext(full)
	name := strings.TrimSuffix(filepath.Base(full), ext)
	if strings.HasSuffix(name, LegacySuffix) {
		return StylesheetSource{}, tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid,
			"declare the modern stylesheet, not its legacy variant: "+review.Path)
	}

	files, err := s.listing.ListFiles(filepath.Dir(full))
	if err != nil {
		return StylesheetSource{}, err
	}
	entry, ok := files[name+ext]
	if !ok {
		return StylesheetSource{}, tkerrors.NotFound(full, nil)
	}

	sheet := StylesheetSource{
		Name:          name,
		Path:          entry.Path,
		LegacyPath:    entry.Path,
		PseudoClasses: review.PseudoClasses,
	}
	if legacy, ok := files[name+LegacySuffix+ext]; ok {
		sheet.LegacyPath = legacy.Path
	}
	return sheet, nil
}

// Scripts returns the script entry points bundled under profile. The
// package profile compiles every module individually; the others bundle
// the shared entry only.
func (s *Scanner) Scripts(profile types.Profile) ([]ScriptSource, error) {
	if profile != types.ProfilePackage {
		files, err := s.listing.ListFiles(s.layout.LibraryDir)
		if err != nil {
			return nil, err
		}
		entry, ok := files[LibraryEntry+".js"]
		if !ok {
			return nil, nil
		}
		return []ScriptSource{{Path: entry.Path, RelPath: LibraryEntry + ".js", Scope: ScopeShared}}, nil
	}

	rels, err := listing.Collect(s.listing.ListRecursive(s.layout.LibraryDir, scriptFilter))
	if err != nil {
		return nil, err
	}

	scripts := make([]ScriptSource, 0, len(rels))
	for _, rel := range rels {
		scope, component := classifyScript(rel)
		scripts = append(scripts, ScriptSource{
			Path:      filepath.Join(s.layout.LibraryDir, filepath.FromSlash(rel)),
			RelPath:   rel,
			Scope:     scope,
			Component: component,
		})
	}
	return scripts, nil
}

// classifyScript treats components/<name>/<name>.js as the component's own
// module; everything else is shared code.
func classifyScript(rel string) (Scope, string) {
	parts := strings.Split(rel, "/")
	if len(parts) == 3 && parts[0] == "components" {
		name := parts[1]
		if strings.TrimSuffix(parts[2], path.Ext(parts[2])) == name {
			return ScopeComponent, name
		}
	}
	return ScopeShared, ""
}

// StaticFiles returns the files copied verbatim under profile. Preview and
// release ship the assets directory; package ships every source that is not
// compiled or generated.
func (s *Scanner) StaticFiles(profile types.Profile) ([]StaticFile, error) {
	filter := assetFilter
	if profile == types.ProfilePackage {
		filter = packageStaticFilter
	}

	rels, err := listing.Collect(s.listing.ListRecursive(s.layout.LibraryDir, filter))
	if err != nil {
		if profile != types.ProfilePackage && tkerrors.IsKind(err, tkerrors.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	static := make([]StaticFile, 0, len(rels))
	for _, rel := range rels {
		static = append(static, StaticFile{
			Path:    filepath.Join(s.layout.LibraryDir, filepath.FromSlash(rel)),
			RelPath: rel,
		})
	}
	return static, nil
}

// Classify maps a changed file to the stage it affects in watch mode.
func (s *Scanner) Classify(file string) Change {
	rel, err := filepath.Rel(s.layout.LibraryDir, file)
	inLibrary := err == nil && !strings.HasPrefix(rel, "..")
	rel = filepath.ToSlash(rel)
	base := filepath.Base(file)
	ext := filepath.Ext(file)

	switch {
	case ext == ".scss" || ext == ".css":
		return Change{Stage: ChangeStyles, Path: file}
	case !inLibrary:
		return Change{Stage: ChangeNone, Path: file}
	case strings.HasPrefix(rel, "assets/"):
		return Change{Stage: ChangeStatic, Path: file}
	case ext == ".js" || ext == ".mjs":
		if strings.Contains(base, ".test.") {
			return Change{Stage: ChangeNone, Path: file}
		}
		return Change{Stage: ChangeScripts, Path: file}
	case ext == ".yaml" || base == "template.html":
		parts := strings.Split(rel, "/")
		if len(parts) == 3 && parts[0] == "components" {
			return Change{Stage: ChangeFixtures, Path: file, Component: parts[1]}
		}
	}
	return Change{Stage: ChangeNone, Path: file}
}

// ChangeStage is the pipeline stage a source change re-runs.
type ChangeStage string

const (
	ChangeNone     ChangeStage = ""
	ChangeStyles   ChangeStage = "styles"
	ChangeScripts  ChangeStage = "scripts"
	ChangeFixtures ChangeStage = "fixtures"
	ChangeStatic   ChangeStage = "static"
)

// Change is a classified source change.
type Change struct {
	Stage     ChangeStage
	Path      string
	Component string
}
