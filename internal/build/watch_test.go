package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/testutils"
	"github.com/conneroisu/toolkit/internal/types"
)

// memoryCache is an in-memory ContentCache.
type memoryCache struct {
	mu   sync.Mutex
	seen map[string]string
}

func newMemoryCache() *memoryCache { return &memoryCache{seen: make(map[string]string)} }

func (c *memoryCache) Changed(path string, content []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.seen[path]; ok && prev == string(content) {
		return false, nil
	}
	c.seen[path] = string(content)
	return true, nil
}

func (c *memoryCache) Forget(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, path)
	return nil
}

type reloadLog struct {
	mu     sync.Mutex
	stages []State
}

func (r *reloadLog) record(stage State, paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *reloadLog) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.stages...)
}

func TestSessionRejectsRelease(t *testing.T) {
	root := newProject(t)
	p, _, layoutFor := newTestPipeline(t, root)

	_, err := NewSession(p, layoutFor(types.ProfileRelease))
	assert.True(t, errors.Is(err, tkerrors.ErrConfig))
}

func TestSessionRerunsAffectedStages(t *testing.T) {
	root := newProject(t)
	lib := filepath.Join(root, "src", "toolkit")
	p, layout, _ := newTestPipeline(t, root)

	reloads := &reloadLog{}
	cache := newMemoryCache()
	session, err := NewSession(p, layout, WithContentCache(cache), WithReload(reloads.record))
	require.NoError(t, err)

	_, err = session.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []State{StateDone}, reloads.snapshot())

	yaml := filepath.Join(lib, "components", "button", "button.yaml")
	styles := filepath.Join(lib, "all.css")
	ignored := filepath.Join(lib, "notes.md")

	testutils.WriteFile(t, styles, libraryCSS+".govuk-tag { color: #fff; }\n")
	testutils.WriteFile(t, yaml, buttonDefinition+"# edited\n")
	require.NoError(t, session.HandleChanges(context.Background(), []string{styles, yaml, ignored}))
	assert.Equal(t, []State{StateDone, StateCompilingStyles, StateGeneratingFixtures}, reloads.snapshot())

	// Same content again is suppressed.
	require.NoError(t, session.HandleChanges(context.Background(), []string{styles}))
	assert.Len(t, reloads.snapshot(), 3)
	assert.Equal(t, int64(1), session.Metrics().GetSnapshot().Suppressed)
}

func TestSessionStartRefreshesCache(t *testing.T) {
	root := newProject(t)
	styles := filepath.Join(root, "src", "toolkit", "all.css")
	output := filepath.Join(root, "public", "all.css")
	p, layout, _ := newTestPipeline(t, root)
	cache := newMemoryCache()

	testutils.WriteFile(t, styles, ".x { color: red; }\n")
	first, err := NewSession(p, layout, WithContentCache(cache))
	require.NoError(t, err)
	_, err = first.Start(context.Background())
	require.NoError(t, err)

	// Edited while nothing was watching.
	testutils.WriteFile(t, styles, ".z { color: blue; }\n")
	second, err := NewSession(p, layout, WithContentCache(cache))
	require.NoError(t, err)
	_, err = second.Start(context.Background())
	require.NoError(t, err)

	testutils.WriteFile(t, styles, ".x { color: red; }\n")
	require.NoError(t, second.HandleChanges(context.Background(), []string{styles}))
	assert.Equal(t, int64(0), second.Metrics().GetSnapshot().Suppressed)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), ".x")
	assert.NotContains(t, string(data), ".z")
}

func TestSessionFailedStartKeepsCacheEmpty(t *testing.T) {
	root := newProject(t)
	lib := filepath.Join(root, "src", "toolkit")
	styles := filepath.Join(lib, "all.css")
	p, layout, _ := newTestPipeline(t, root)
	cache := newMemoryCache()

	testutils.WriteFile(t, filepath.Join(lib, "all.js"), "import { missing } from './nope.mjs'\nmissing()\n")
	session, err := NewSession(p, layout, WithContentCache(cache))
	require.NoError(t, err)
	_, err = session.Start(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cache.seen)

	require.NoError(t, session.HandleChanges(context.Background(), []string{styles}))
	assert.Equal(t, int64(0), session.Metrics().GetSnapshot().Suppressed)
}

func TestSessionContainsCompileErrors(t *testing.T) {
	root := newProject(t)
	template := filepath.Join(root, "src", "toolkit", "components", "button", "template.html")
	p, layout, _ := newTestPipeline(t, root)

	reloads := &reloadLog{}
	session, err := NewSession(p, layout, WithContentCache(newMemoryCache()), WithReload(reloads.record))
	require.NoError(t, err)

	_, err = session.Start(context.Background())
	require.NoError(t, err)

	testutils.WriteFile(t, template, `{{if .text}}unterminated`)
	require.NoError(t, session.HandleChanges(context.Background(), []string{template}))

	failures := session.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, template, failures[0].File)
	assert.Equal(t, int64(1), session.Metrics().GetSnapshot().FailedRuns)

	// Still in place from the initial build.
	_, err = os.Stat(filepath.Join(root, "public", "all.css"))
	assert.NoError(t, err)

	testutils.WriteFile(t, template, `{{define "govukButton"}}<button>{{.text}}</button>{{end}}`)
	require.NoError(t, session.HandleChanges(context.Background(), []string{template}))
	assert.Empty(t, session.Failures())
	assert.Equal(t, []State{StateDone, StateGeneratingFixtures}, reloads.snapshot())
}

func TestSessionPackageStylesCopyStatic(t *testing.T) {
	root := newProject(t)
	p, _, layoutFor := newTestPipeline(t, root)

	session, err := NewSession(p, layoutFor(types.ProfilePackage))
	require.NoError(t, err)

	jobs := session.plan(context.Background(), []string{
		filepath.Join(root, "src", "toolkit", "all.css"),
		filepath.Join(root, "src", "toolkit", "components", "button", "template.html"),
	})

	var states []State
	for _, job := range jobs {
		states = append(states, job.state)
	}
	assert.Equal(t, []State{StateGeneratingFixtures, StateCopyingStatic}, states)
	assert.Equal(t, []string{"button"}, jobs[0].components)
	assert.Len(t, jobs[1].paths, 2)
}
