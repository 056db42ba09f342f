// Package registry loads and validates component definition files.
//
// Each component lives in its own directory below the components directory
// and declares its template parameters and examples in <name>/<name>.yaml.
// A definition is returned only once it has passed validation; callers never
// see a partially populated definition.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/listing"
	"github.com/conneroisu/toolkit/internal/logging"
	"github.com/conneroisu/toolkit/internal/types"
)

// Loader reads component definitions from one components directory.
type Loader struct {
	fs            afero.Fs
	listing       *listing.Service
	componentsDir string
	cache         *DefinitionCache
	concurrency   int
	logger        logging.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithConcurrency bounds how many definitions LoadAllComponents parses at once.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithLogger sets the loader's logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Loader) { l.logger = logger.WithComponent("registry") }
}

// NewLoader creates a loader. The cache is owned by the caller's build
// context and may be shared with other loaders of the same run.
func NewLoader(fsys afero.Fs, componentsDir string, cache *DefinitionCache, opts ...Option) *Loader {
	if cache == nil {
		cache = NewDefinitionCache()
	}
	l := &Loader{
		fs:            fsys,
		listing:       listing.New(fsys),
		componentsDir: componentsDir,
		cache:         cache,
		concurrency:   4,
		logger:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ComponentsDir returns the directory components are discovered in.
func (l *Loader) ComponentsDir() string { return l.componentsDir }

// DefinitionPath returns the definition file path of a component.
func (l *Loader) DefinitionPath(name string) string {
	return filepath.Join(l.componentsDir, name, name+".yaml")
}

// ComponentNames lists the component directories in sorted order.
func (l *Loader) ComponentNames() ([]string, error) {
	dirs, err := l.listing.ListDirectories(l.componentsDir)
	if err != nil {
		return nil, err
	}
	return dirs.Names(), nil
}

// LoadComponent loads and validates the definition of one component.
func (l *Loader) LoadComponent(ctx context.Context, name string) (*types.ComponentDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file := l.DefinitionPath(name)
	rel := path.Join(name, name+".yaml")

	doc, err := l.cache.Load(rel, func() (*yaml.Node, error) {
		return l.parse(file)
	})
	if err != nil {
		return nil, err
	}

	def, err := decode(file, doc)
	if err != nil {
		return nil, err
	}
	def.Name = name

	l.logger.Debug(ctx, "Loaded component definition",
		"name", name,
		"params", len(def.Params),
		"examples", len(def.Examples))

	return def, nil
}

// LoadAllComponents loads every discovered component in parallel. Any
// single failure fails the whole call. Results are sorted by name.
func (l *Loader) LoadAllComponents(ctx context.Context) ([]*types.ComponentDefinition, error) {
	names, err := l.ComponentNames()
	if err != nil {
		return nil, err
	}

	defs := make([]*types.ComponentDefinition, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for i, name := range names {
		g.Go(func() error {
			def, err := l.LoadComponent(gctx, name)
			if err != nil {
				return err
			}
			defs[i] = def
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

func (l *Loader) parse(file string) (*yaml.Node, error) {
	data, err := afero.ReadFile(l.fs, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, tkerrors.NotFound(file, err)
		}
		return nil, tkerrors.FileSystemError(tkerrors.ErrCodeRead, file, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, tkerrors.SchemaInvalid(file, tkerrors.ErrCodeMalformed, "malformed YAML: "+err.Error())
	}
	return &doc, nil
}

func decode(file string, doc *yaml.Node) (*types.ComponentDefinition, error) {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, tkerrors.SchemaInvalid(file, tkerrors.ErrCodeMalformed, "definition must be a mapping")
	}

	for _, key := range []string{"params", "examples"} {
		if !hasKey(root, key) {
			return nil, tkerrors.SchemaInvalid(file, tkerrors.ErrCodeMissingKey,
				fmt.Sprintf("missing required key %q", key))
		}
	}

	var def types.ComponentDefinition
	if err := root.Decode(&def); err != nil {
		return nil, tkerrors.SchemaInvalid(file, tkerrors.ErrCodeMalformed, err.Error())
	}

	defaults := 0
	for i, ex := range def.Examples {
		if ex.Name == "" {
			return nil, tkerrors.SchemaInvalid(file, tkerrors.ErrCodeMalformed,
				fmt.Sprintf("example %d has no name", i))
		}
		if ex.Name == types.DefaultExampleName {
			defaults++
		}
		if ex.Data == nil {
			def.Examples[i].Data = map[string]interface{}{}
		}
	}
	if defaults != 1 {
		return nil, tkerrors.SchemaInvalid(file, tkerrors.ErrCodeDefaultExample,
			fmt.Sprintf("expected exactly one %q example, found %d", types.DefaultExampleName, defaults))
	}

	if def.Params == nil {
		def.Params = []types.Param{}
	}
	return &def, nil
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}
