package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/toolkit/internal/build"
	"github.com/conneroisu/toolkit/internal/config"
	"github.com/conneroisu/toolkit/internal/testutils"
	"github.com/conneroisu/toolkit/internal/types"
	"github.com/conneroisu/toolkit/internal/version"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		buildTask, buildDest, buildOutput = "", "", "table"
		buildProfile = profileFlag{}
		versionFormat, versionShort = "text", false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestProfileFlag(t *testing.T) {
	tests := []struct {
		input   string
		want    types.Profile
		wantErr bool
	}{
		{"preview", types.ProfilePreview, false},
		{"package", types.ProfilePackage, false},
		{"release", types.ProfileRelease, false},
		{"dist", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f profileFlag
			err := f.Set(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, f.String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.profile)
			assert.Equal(t, string(tt.want), f.String())
			assert.Equal(t, "profile", f.Type())
		})
	}
}

func TestWatchRoots(t *testing.T) {
	cfg := &config.Config{
		Root: "/project",
		Source: config.SourceConfig{
			Root:    "src",
			Library: "toolkit",
			ReviewStylesheets: []config.StylesheetConfig{
				{Path: "app/stylesheets/app.scss"},
				{Path: "app/stylesheets/app-legacy.scss"},
				{Path: "src/toolkit/extra/review.scss"},
			},
		},
	}

	assert.Equal(t, []string{
		filepath.Join("/project", "src", "toolkit"),
		filepath.Join("/project", "app", "stylesheets"),
	}, watchRoots(cfg))
}

func TestPrintReport(t *testing.T) {
	report := &build.BuildReport{
		RunID:       "run-1",
		Profile:     types.ProfileRelease,
		Destination: "/project/dist",
		Version:     "3.4.0",
		State:       build.StateDone,
		Stages: []build.StageReport{
			{State: build.StateCleaning, Duration: 2 * time.Millisecond},
			{State: build.StateCompilingStyles, Duration: 40 * time.Millisecond, Artifacts: 2},
		},
		Artifacts: []types.CompiledArtifact{
			{Kind: types.ArtifactStylesheet, DestPath: "toolkit-3.4.0.min.css"},
			{Kind: types.ArtifactStylesheet, DestPath: "toolkit-ie8-3.4.0.min.css"},
		},
		Duration: 50 * time.Millisecond,
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printReport(&buf, report, "table"))
		out := buf.String()
		assert.Contains(t, out, "STAGE")
		assert.Contains(t, out, "compiling-styles")
		assert.Contains(t, out, "release build done: 2 artifacts in 50ms -> /project/dist (version 3.4.0)")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printReport(&buf, report, "json"))

		var decoded build.BuildReport
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "run-1", decoded.RunID)
		assert.Equal(t, "3.4.0", decoded.Version)
		assert.Len(t, decoded.Artifacts, 2)
	})
}

func TestBuildCommand(t *testing.T) {
	root := t.TempDir()
	lib := filepath.Join(root, "src", "toolkit")
	testutils.WriteFile(t, filepath.Join(lib, "all.css"), ".govuk-link { color: #1d70b8 }\n")
	testutils.WriteFile(t, filepath.Join(lib, "all.js"), "export function initAll () {}\n")
	testutils.WriteFile(t, filepath.Join(lib, "assets", "images", "favicon.ico"), "ico")

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("root", root)
	viper.Set("log.level", "error")

	out, err := execute(t, "build", "--output", "json")
	require.NoError(t, err)

	var report build.BuildReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, build.StateDone, report.State)
	assert.Equal(t, types.ProfilePreview, report.Profile)
	assert.FileExists(t, filepath.Join(root, "public", "all.css"))
	assert.FileExists(t, filepath.Join(root, "public", "all.js"))
	assert.FileExists(t, filepath.Join(root, "public", "assets", "images", "favicon.ico"))
}

func TestBuildCommandErrors(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("root", t.TempDir())

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown task", []string{"build", "--task", "deploy"}, "unknown task"},
		{"unknown profile", []string{"build", "--profile", "dist"}, "unknown build profile"},
		{"bad output", []string{"build", "--output", "xml"}, "unsupported output format"},
		{"escaping destination", []string{"build", "--dest", "../elsewhere"}, "traversal"},
		{"destination over sources", []string{"build", "--dest", "src"}, "overlaps source directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildCommandReportsDiagnostic(t *testing.T) {
	root := t.TempDir()
	lib := filepath.Join(root, "src", "toolkit")
	testutils.WriteFile(t, filepath.Join(lib, "all.css"), ".govuk-link { color: #1d70b8 }\n")
	testutils.WriteFile(t, filepath.Join(lib, "all.js"), "import { missing } from './nope.mjs'\nmissing()\n")

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("root", root)
	viper.Set("log.level", "error")

	_, err := execute(t, "build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Could not resolve "./nope.mjs"`)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Get().Short()+"\n", out)

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Get().Version, info.Version)

	_, err = execute(t, "version", "--format", "yaml")
	assert.Error(t, err)
}
