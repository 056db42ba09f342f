package build

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/logging"
	"github.com/conneroisu/toolkit/internal/scanner"
	"github.com/conneroisu/toolkit/internal/types"
)

// ContentCache remembers file contents between events so that saves which
// leave a file unchanged can be dropped.
type ContentCache interface {
	Changed(path string, content []byte) (bool, error)
	Forget(path string) error
}

// ReloadFunc is told which stage re-ran successfully and for which files.
type ReloadFunc func(stage State, paths []string)

// Session keeps a pipeline running against a source tree: it re-runs only
// the stages a batch of changes affects and keeps going after build
// failures.
type Session struct {
	pipeline  *Pipeline
	scanner   *scanner.Scanner
	layout    Layout
	collector *tkerrors.ErrorCollector
	metrics   *BuildMetrics
	cache     ContentCache
	reload    ReloadFunc
	logger    logging.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithContentCache suppresses events for files whose content is unchanged.
func WithContentCache(cache ContentCache) SessionOption {
	return func(s *Session) { s.cache = cache }
}

// WithReload registers the callback fired after each successful stage.
func WithReload(fn ReloadFunc) SessionOption {
	return func(s *Session) { s.reload = fn }
}

// NewSession creates a watch session. The release profile is not
// watchable because its outputs are renamed after every full run.
func NewSession(p *Pipeline, layout Layout, opts ...SessionOption) (*Session, error) {
	if layout.Profile == types.ProfileRelease {
		return nil, tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid, "the release profile cannot be watched")
	}
	s := &Session{
		pipeline:  p,
		scanner:   p.scanner,
		layout:    layout,
		collector: tkerrors.NewErrorCollector(),
		metrics:   NewBuildMetrics(),
		logger:    p.logger.With("session", "watch"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Metrics returns the session's run metrics.
func (s *Session) Metrics() *BuildMetrics { return s.metrics }

// Failures returns the files whose last build failed.
func (s *Session) Failures() []tkerrors.FileFailure { return s.collector.Failures() }

// Start performs the initial full build. Only fatal errors are returned;
// other failures are logged and left for the next change to fix.
//
// The content cache is re-recorded from disk before the build, so entries
// left by an earlier session never suppress a change. If the build fails
// those entries are dropped again and the next event always rebuilds.
func (s *Session) Start(ctx context.Context) (*BuildReport, error) {
	primed := s.primeCache(ctx)
	report, err := s.pipeline.Run(ctx, s.layout)
	if err != nil {
		s.forget(ctx, primed)
	}
	result := RunResult{Duration: report.Duration, Artifacts: len(report.Artifacts), Error: err}
	for _, st := range report.Stages {
		result.Stages = append(result.Stages, st.State)
	}
	s.metrics.RecordRun(result)

	if err != nil {
		if tkerrors.IsFatal(err, true) {
			return report, err
		}
		s.logger.Error(ctx, err, "Initial build failed, waiting for changes")
		return report, nil
	}
	if s.reload != nil {
		s.reload(StateDone, nil)
	}
	return report, nil
}

// primeCache records the current content of every watched source and
// returns the recorded paths.
func (s *Session) primeCache(ctx context.Context) []string {
	if s.cache == nil {
		return nil
	}

	layout := s.scanner.Layout()
	roots := []string{layout.LibraryDir}
	for _, review := range layout.ReviewStylesheets {
		roots = append(roots, filepath.Dir(filepath.Join(layout.ProjectRoot, review.Path)))
	}

	seen := make(map[string]bool)
	var primed []string
	for _, root := range roots {
		err := afero.Walk(s.pipeline.fs, root, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || seen[path] || s.scanner.Classify(path).Stage == scanner.ChangeNone {
				return nil
			}
			seen[path] = true

			content, err := afero.ReadFile(s.pipeline.fs, path)
			if err != nil {
				return err
			}
			if _, err := s.cache.Changed(path, content); err != nil {
				return err
			}
			primed = append(primed, path)
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn(ctx, err, "Failed to record source content", "root", root)
		}
	}
	return primed
}

func (s *Session) forget(ctx context.Context, paths []string) {
	for _, path := range paths {
		if err := s.cache.Forget(path); err != nil {
			s.logger.Warn(ctx, err, "Failed to forget cached content", "path", path)
			return
		}
	}
}

type rerun struct {
	state      State
	paths      []string
	components []string
}

// HandleChanges re-runs the stages affected by a debounced batch of
// changed paths. It returns an error only when the failure is fatal.
func (s *Session) HandleChanges(ctx context.Context, paths []string) error {
	for _, job := range s.plan(ctx, paths) {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := s.pipeline.RunStage(ctx, s.layout, job.state, job.components)
		s.metrics.RecordRun(result)

		if result.Error != nil {
			for _, p := range job.paths {
				s.collector.Record(p, result.Error)
			}
			if tkerrors.IsFatal(result.Error, true) {
				return result.Error
			}
			s.logger.Error(ctx, result.Error, "Rebuild failed",
				"stage", string(job.state),
				"files", len(job.paths))
			continue
		}

		for _, p := range job.paths {
			s.collector.Resolve(p)
		}
		s.logger.Info(ctx, "Rebuilt",
			"stage", string(job.state),
			"artifacts", result.Artifacts,
			"duration_ms", result.Duration.Milliseconds())
		if s.reload != nil {
			s.reload(job.state, job.paths)
		}
	}
	return nil
}

// plan groups changed paths by the stage they re-run, in pipeline order.
func (s *Session) plan(ctx context.Context, paths []string) []rerun {
	byState := make(map[State]*rerun)
	suppressed := 0

	add := func(state State, path, component string) {
		job, ok := byState[state]
		if !ok {
			job = &rerun{state: state}
			byState[state] = job
		}
		job.paths = appendUnique(job.paths, path)
		if component != "" {
			job.components = appendUnique(job.components, component)
		}
	}

	for _, path := range paths {
		change := s.scanner.Classify(path)
		if change.Stage == scanner.ChangeNone {
			continue
		}
		if !s.changed(ctx, path) {
			suppressed++
			continue
		}
		for _, state := range s.statesFor(change.Stage) {
			component := ""
			if state == StateGeneratingFixtures {
				component = change.Component
			}
			add(state, path, component)
		}
	}

	if suppressed > 0 {
		s.metrics.RecordSuppressed(suppressed)
		s.logger.Debug(ctx, "Suppressed unchanged files", "count", suppressed)
	}

	var jobs []rerun
	for _, state := range []State{StateCompilingStyles, StateCompilingScripts, StateGeneratingFixtures, StateCopyingStatic} {
		if job, ok := byState[state]; ok {
			sort.Strings(job.paths)
			sort.Strings(job.components)
			jobs = append(jobs, *job)
		}
	}
	return jobs
}

// statesFor maps a change to stages. The package profile ships sources, so
// its stylesheet and template changes are static copies.
func (s *Session) statesFor(stage scanner.ChangeStage) []State {
	pkg := s.layout.Profile == types.ProfilePackage
	switch stage {
	case scanner.ChangeStyles:
		if pkg {
			return []State{StateCopyingStatic}
		}
		return []State{StateCompilingStyles}
	case scanner.ChangeScripts:
		return []State{StateCompilingScripts}
	case scanner.ChangeFixtures:
		if pkg {
			return []State{StateGeneratingFixtures, StateCopyingStatic}
		}
		return []State{StateGeneratingFixtures}
	case scanner.ChangeStatic:
		return []State{StateCopyingStatic}
	}
	return nil
}

// changed reports whether path needs a rebuild. Files that failed last time
// are always retried.
func (s *Session) changed(ctx context.Context, path string) bool {
	if s.cache == nil || s.collector.Failed(path) {
		return true
	}

	content, err := afero.ReadFile(s.pipeline.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if ferr := s.cache.Forget(path); ferr != nil {
				s.logger.Warn(ctx, ferr, "Failed to forget cached content", "path", path)
			}
		}
		return true
	}

	changed, err := s.cache.Changed(path, content)
	if err != nil {
		s.logger.Warn(ctx, err, "Content cache unavailable", "path", path)
		return true
	}
	return changed
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
