package build

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/toolkit/internal/config"
	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/fixtures"
	"github.com/conneroisu/toolkit/internal/logging"
	"github.com/conneroisu/toolkit/internal/naming"
	"github.com/conneroisu/toolkit/internal/registry"
	"github.com/conneroisu/toolkit/internal/renderer"
	"github.com/conneroisu/toolkit/internal/scanner"
	"github.com/conneroisu/toolkit/internal/types"
)

// State is a state of the build state machine.
type State string

const (
	StateIdle               State = "idle"
	StateResolving          State = "resolving"
	StateCleaning           State = "cleaning"
	StateCompilingStyles    State = "compiling-styles"
	StateCompilingScripts   State = "compiling-scripts"
	StateGeneratingFixtures State = "generating-fixtures"
	StateCopyingStatic      State = "copying-static"
	StateVersioning         State = "versioning"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// StageReport records one executed stage.
type StageReport struct {
	State     State         `json:"state"`
	Duration  time.Duration `json:"duration"`
	Artifacts int           `json:"artifacts"`
}

// BuildReport describes a finished run.
type BuildReport struct {
	RunID       string                   `json:"runId"`
	Profile     types.Profile            `json:"profile"`
	Destination string                   `json:"destination"`
	Version     string                   `json:"version,omitempty"`
	State       State                    `json:"state"`
	Stages      []StageReport            `json:"stages"`
	Artifacts   []types.CompiledArtifact `json:"artifacts"`
	Duration    time.Duration            `json:"duration"`
}

// Pipeline sequences the build stages for one source tree.
type Pipeline struct {
	fs          afero.Fs
	scanner     *scanner.Scanner
	styles      *StylesheetCompiler
	scripts     *ScriptBundler
	names       *naming.Cache
	manifest    string
	concurrency int
	logger      logging.Logger
	observer    func(State)

	mu    sync.Mutex
	state State
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) { p.logger = logger.WithComponent("build") }
}

// WithConcurrency bounds the files and components processed at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithStateObserver is called on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// New creates a pipeline. manifest is the package manifest the release
// version is read from.
func New(fsys afero.Fs, sc *scanner.Scanner, styles *StylesheetCompiler, manifest string, opts ...Option) *Pipeline {
	names := naming.NewCache()
	p := &Pipeline{
		fs:          fsys,
		scanner:     sc,
		styles:      styles,
		scripts:     NewScriptBundler(names),
		names:       names,
		manifest:    manifest,
		concurrency: 8,
		logger:      logging.Nop(),
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromConfig wires a pipeline from configuration.
func FromConfig(fsys afero.Fs, cfg *config.Config, logger logging.Logger) (*Pipeline, error) {
	library := cfg.Abs(cfg.LibraryDir())

	review := make([]scanner.ReviewStylesheet, 0, len(cfg.Source.ReviewStylesheets))
	for _, sheet := range cfg.Source.ReviewStylesheets {
		review = append(review, scanner.ReviewStylesheet{Path: sheet.Path, PseudoClasses: sheet.PseudoClasses})
	}

	sc := scanner.New(fsys, scanner.Layout{
		ProjectRoot:       cfg.Root,
		LibraryDir:        library,
		ReviewStylesheets: review,
	})

	sass := NewSassCompiler(cfg.Build.SassCommand, library, cfg.Abs("node_modules"))
	styles, err := NewStylesheetCompiler(fsys, sass, cfg.Build.Browsers, cfg.Build.LegacyBrowsers)
	if err != nil {
		return nil, err
	}

	return New(fsys, sc, styles, cfg.Abs(cfg.Release.Manifest),
		WithLogger(logger),
		WithConcurrency(cfg.Build.Concurrency),
	), nil
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	if p.observer != nil {
		p.observer(s)
	}
}

// run is the context of one invocation. Its definition cache lives exactly
// as long as the run.
type run struct {
	id       string
	layout   Layout
	writer   *Writer
	loader   *registry.Loader
	renderer *renderer.ComponentRenderer
	logger   logging.Logger
	version  string
}

func (p *Pipeline) newRun(layout Layout) *run {
	id := logging.NewRunID()
	logger := p.logger.With("run_id", id, "profile", string(layout.Profile))
	componentsDir := p.scanner.Layout().ComponentsDir()
	return &run{
		id:     id,
		layout: layout,
		writer: NewWriter(p.fs, layout.Root),
		loader: registry.NewLoader(p.fs, componentsDir, registry.NewDefinitionCache(),
			registry.WithConcurrency(p.concurrency), registry.WithLogger(logger)),
		renderer: renderer.NewComponentRenderer(p.fs, componentsDir, p.names),
		logger:   logger,
	}
}

type stage struct {
	state State
	run   func(ctx context.Context, r *run) error
}

func (p *Pipeline) stages(layout Layout) []stage {
	stages := []stage{
		{StateCleaning, p.clean},
		{StateCompilingStyles, p.compileStyles},
		{StateCompilingScripts, p.compileScripts},
		{StateGeneratingFixtures, func(ctx context.Context, r *run) error { return p.generateFixtures(ctx, r, nil) }},
		{StateCopyingStatic, p.copyStatic},
	}
	if layout.Versioned() {
		stages = append(stages, stage{StateVersioning, p.stampVersion})
	}
	return stages
}

// Run executes every stage of layout's profile in order. The first failure
// moves the pipeline to StateFailed and aborts the remaining stages; the
// report describes what ran up to that point.
func (p *Pipeline) Run(ctx context.Context, layout Layout) (*BuildReport, error) {
	r := p.newRun(layout)
	start := time.Now()
	report := &BuildReport{
		RunID:       r.id,
		Profile:     layout.Profile,
		Destination: layout.Root,
	}

	p.setState(StateResolving)
	r.logger.Info(ctx, "Starting build", "destination", layout.Root)

	for _, st := range p.stages(layout) {
		if err := p.runStage(ctx, r, st, report); err != nil {
			report.State = StateFailed
			report.Artifacts = r.writer.Artifacts()
			report.Duration = time.Since(start)
			return report, err
		}
	}

	p.setState(StateDone)
	report.State = StateDone
	report.Version = r.version
	report.Artifacts = r.writer.Artifacts()
	report.Duration = time.Since(start)

	r.logger.Info(ctx, "Build completed",
		"artifacts", len(report.Artifacts),
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}

func (p *Pipeline) runStage(ctx context.Context, r *run, st stage, report *BuildReport) error {
	if err := ctx.Err(); err != nil {
		p.setState(StateFailed)
		return err
	}

	p.setState(st.state)
	perf := logging.StartOperation(r.logger, string(st.state))
	before := len(r.writer.Artifacts())

	if err := st.run(ctx, r); err != nil {
		perf.EndWithError(ctx, err)
		p.setState(StateFailed)
		return err
	}

	written := len(r.writer.Artifacts()) - before
	report.Stages = append(report.Stages, StageReport{
		State:     st.state,
		Duration:  perf.End(ctx, "artifacts", written),
		Artifacts: written,
	})
	return nil
}

// RunStage re-runs a single stage without cleaning, as watch mode does.
// For the fixtures stage, components limits the run to those components;
// empty means all of them.
func (p *Pipeline) RunStage(ctx context.Context, layout Layout, state State, components []string) RunResult {
	r := p.newRun(layout)
	start := time.Now()

	var st stage
	for _, candidate := range p.stages(layout) {
		if candidate.state == state {
			st = candidate
		}
	}
	if state == StateGeneratingFixtures {
		st.run = func(ctx context.Context, r *run) error { return p.generateFixtures(ctx, r, components) }
	}

	result := RunResult{Stages: []State{state}}
	if st.run == nil || state == StateCleaning {
		result.Error = tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid, "stage cannot be re-run: "+string(state))
		return result
	}

	report := &BuildReport{}
	result.Error = p.runStage(ctx, r, st, report)
	if result.Error == nil {
		p.setState(StateDone)
	}
	result.Duration = time.Since(start)
	result.Artifacts = len(r.writer.Artifacts())
	return result
}

func (p *Pipeline) clean(ctx context.Context, r *run) error {
	return Clean(p.fs, r.layout.Root, r.layout.Profile)
}

func (p *Pipeline) compileStyles(ctx context.Context, r *run) error {
	sheets, err := p.scanner.Stylesheets(r.layout.Profile)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, src := range sheets {
		g.Go(func() error {
			out, err := p.styles.CompileStylesheet(gctx, src, r.layout)
			if err != nil {
				return err
			}
			for _, v := range src.Variants() {
				artifact := types.CompiledArtifact{
					Kind:       types.ArtifactStylesheet,
					SourcePath: v.Path,
					DestPath:   r.layout.Stylesheet(src, v.Variant),
					Variant:    v.Variant,
				}
				if err := r.writer.Write(artifact, out.Variant(v.Variant)); err != nil {
					return err
				}
			}
			r.logger.Debug(gctx, "Compiled stylesheet", "name", src.Name)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) compileScripts(ctx context.Context, r *run) error {
	scripts, err := p.scanner.Scripts(r.layout.Profile)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, src := range scripts {
		g.Go(func() error {
			out, err := p.scripts.BundleScript(gctx, src, r.layout)
			if err != nil {
				return err
			}
			dest := r.layout.Script(src)
			if err := r.writer.Write(types.CompiledArtifact{
				Kind:       types.ArtifactScript,
				SourcePath: src.Path,
				DestPath:   dest,
			}, out.Code); err != nil {
				return err
			}
			if out.SourceMap != nil {
				return r.writer.Write(types.CompiledArtifact{
					Kind:       types.ArtifactSourceMap,
					SourcePath: src.Path,
					DestPath:   dest + ".map",
				}, out.SourceMap)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) generateFixtures(ctx context.Context, r *run, components []string) error {
	if !r.layout.Fixtures() {
		return nil
	}

	var defs []*types.ComponentDefinition
	if len(components) == 0 {
		if ok, _ := afero.DirExists(p.fs, r.loader.ComponentsDir()); !ok {
			r.logger.Debug(ctx, "No components directory", "path", r.loader.ComponentsDir())
			return nil
		}
		all, err := r.loader.LoadAllComponents(ctx)
		if err != nil {
			return err
		}
		defs = all
	} else {
		for _, name := range components {
			def, err := r.loader.LoadComponent(ctx, name)
			if err != nil {
				return err
			}
			defs = append(defs, def)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, def := range defs {
		g.Go(func() error {
			return p.writeFixtures(gctx, r, def)
		})
	}
	return g.Wait()
}

func (p *Pipeline) writeFixtures(ctx context.Context, r *run, def *types.ComponentDefinition) error {
	tmpl, err := r.renderer.LoadTemplate(def.Name)
	if err != nil {
		return err
	}

	doc, err := fixtures.GenerateFixtures(ctx, def, tmpl)
	if err != nil {
		return err
	}
	fixturesJSON, err := fixtures.Marshal(doc)
	if err != nil {
		return tkerrors.RenderError(def.Name, types.DefaultExampleName, err)
	}
	optionsJSON, err := fixtures.Marshal(fixtures.GenerateOptions(def))
	if err != nil {
		return tkerrors.RenderError(def.Name, types.DefaultExampleName, err)
	}

	source := r.loader.DefinitionPath(def.Name)
	if err := r.writer.Write(types.CompiledArtifact{
		Kind:       types.ArtifactFixtures,
		SourcePath: source,
		DestPath:   r.layout.FixturesPath(def.Name),
	}, fixturesJSON); err != nil {
		return err
	}
	return r.writer.Write(types.CompiledArtifact{
		Kind:       types.ArtifactOptions,
		SourcePath: source,
		DestPath:   r.layout.OptionsPath(def.Name),
	}, optionsJSON)
}

func (p *Pipeline) copyStatic(ctx context.Context, r *run) error {
	files, err := p.scanner.StaticFiles(r.layout.Profile)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return r.writer.Copy(types.CompiledArtifact{
				Kind:       types.ArtifactStatic,
				SourcePath: f.Path,
				DestPath:   r.layout.Static(f),
			})
		})
	}
	return g.Wait()
}

func (p *Pipeline) stampVersion(ctx context.Context, r *run) error {
	version, err := ReadVersion(p.fs, p.manifest)
	if err != nil {
		return err
	}
	r.version = version
	r.logger.Info(ctx, "Stamping release version", "version", version)
	return StampVersion(r.writer, p.manifest, version)
}
