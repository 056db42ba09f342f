// Package testutils holds fixtures shared by package tests: a temporary
// project with the standard library layout, component sources, and a
// configuration pointing at them.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/toolkit/internal/config"
)

// LibraryDir is the library directory of a project made by CreateTempProject.
var LibraryDir = filepath.Join("src", "toolkit")

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// CreateTempProject creates an empty project with the standard directory
// structure and returns its root.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	dirs := []string{
		filepath.Join(LibraryDir, "components"),
		filepath.Join(LibraryDir, "assets"),
		"package",
	}
	for _, dir := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	return root
}

// CreateTestComponent writes a component's definition and template under
// the project's components directory and returns the component directory.
func CreateTestComponent(t *testing.T, root, name, definition, template string) string {
	t.Helper()
	dir := filepath.Join(root, LibraryDir, "components", name)
	WriteFile(t, filepath.Join(dir, name+".yaml"), definition)
	WriteFile(t, filepath.Join(dir, "template.html"), template)
	return dir
}

// CreateTestConfig returns a validated-shape configuration for a project
// rooted at root.
func CreateTestConfig(root string) *config.Config {
	return &config.Config{
		Root:    root,
		Product: config.DefaultProduct,
		Source:  config.SourceConfig{Root: "src", Library: "toolkit"},
		Destinations: config.DestinationsConfig{
			Preview: "public",
			Package: "package",
			Release: "dist",
		},
		Release: config.ReleaseConfig{Manifest: config.DefaultManifest},
		Build: config.BuildConfig{
			Concurrency:    4,
			SassCommand:    config.DefaultSassCommand,
			Browsers:       config.DefaultBrowsers,
			LegacyBrowsers: config.DefaultLegacyBrowsers,
		},
		Watch: config.WatchConfig{
			Debounce:   config.DefaultDebounce,
			CacheDir:   filepath.Join(root, ".cache"),
			LiveReload: "off",
		},
		Log: config.LogConfig{Level: "error", Format: "json"},
	}
}

// PathTraversal lists destinations that must never be accepted.
var PathTraversal = []string{
	"../../../etc/passwd",
	"../sibling",
	"..",
	"public/../../escape",
	"/absolute/path",
}
