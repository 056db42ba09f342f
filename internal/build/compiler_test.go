package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
)

const fakeSass = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "%s compiled with dart2js 3.3.0"
  exit 0
fi
for last; do :; done
case "$last" in
  *broken*)
    echo "Error: expected \"}\"." >&2
    echo "  $last 3:1  root stylesheet" >&2
    exit 65
    ;;
esac
cat "$last"
`

// installFakeSass writes a shell script named sass that echoes its input
// file, fails on files named broken, and reports version.
func installFakeSass(t *testing.T, version string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake sass is a shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "sass")
	script := []byte(fmt.Sprintf(fakeSass, version))
	require.NoError(t, os.WriteFile(path, script, 0o755))
	return path
}

func TestSassCompilerValidateCommand(t *testing.T) {
	tests := []struct {
		name        string
		command     string
		expectError bool
	}{
		{"valid sass command", "sass", false},
		{"valid dart-sass path", "/usr/local/bin/dart-sass", false},
		{"invalid command", "rm", true},
		{"command injection in command name", "sass; rm -rf /", true},
		{"subshell in command name", "$(whoami)/sass", true},
		{"empty command", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewSassCompiler(tt.command)
			err := sc.validateCommand()
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tkerrors.ErrConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckSassVersion(t *testing.T) {
	tests := []struct {
		output  string
		wantErr bool
	}{
		{"1.77.8 compiled with dart2js 3.4.4", false},
		{"1.33.0", false},
		{"1.32.13", true},
		{"", true},
		{"dart-sass", true},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			err := checkSassVersion(tt.output)
			if tt.wantErr {
				assert.True(t, errors.Is(err, tkerrors.ErrConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSassCompilerPreprocess(t *testing.T) {
	sass := installFakeSass(t, "1.77.8")
	dir := t.TempDir()
	src := filepath.Join(dir, "all.scss")
	require.NoError(t, os.WriteFile(src, []byte(".govuk-tag { color: #fff; }\n"), 0o644))

	sc := NewSassCompiler(sass, dir)
	out, err := sc.Preprocess(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, ".govuk-tag { color: #fff; }\n", string(out))
}

func TestSassCompilerPreprocessUnusualPaths(t *testing.T) {
	sass := installFakeSass(t, "1.77.8")

	tests := []struct {
		name string
		dir  string
	}{
		{"apostrophe", "o'brien"},
		{"dollar", "$HOME"},
		{"semicolon", "a;b"},
		{"quotes", `say "hi"`},
		{"ampersand", "r&d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), tt.dir)
			require.NoError(t, os.MkdirAll(dir, 0o755))
			src := filepath.Join(dir, "all.scss")
			require.NoError(t, os.WriteFile(src, []byte(".govuk-tag { color: #fff; }\n"), 0o644))

			out, err := NewSassCompiler(sass, dir).Preprocess(context.Background(), src)
			require.NoError(t, err)
			assert.Equal(t, ".govuk-tag { color: #fff; }\n", string(out))
		})
	}
}

func TestSassCompilerVersionCheckRetriesAfterCancel(t *testing.T) {
	sass := installFakeSass(t, "1.77.8")
	dir := t.TempDir()
	src := filepath.Join(dir, "all.scss")
	require.NoError(t, os.WriteFile(src, []byte(".a{}"), 0o644))

	sc := NewSassCompiler(sass)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sc.Preprocess(ctx, src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, tkerrors.ErrConfig))

	out, err := sc.Preprocess(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, ".a{}", string(out))
}

func TestSassCompilerVersionFailureIsRemembered(t *testing.T) {
	sass := installFakeSass(t, "1.20.0")
	sc := NewSassCompiler(sass)

	err := sc.CheckVersion(context.Background())
	assert.True(t, errors.Is(err, tkerrors.ErrConfig))

	require.NoError(t, os.WriteFile(sass, []byte(fmt.Sprintf(fakeSass, "1.77.8")), 0o755))
	assert.Equal(t, err, sc.CheckVersion(context.Background()))
}

func TestSassCompilerPreprocessFailure(t *testing.T) {
	sass := installFakeSass(t, "1.77.8")
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.scss")
	require.NoError(t, os.WriteFile(src, []byte(".a {"), 0o644))

	_, err := NewSassCompiler(sass).Preprocess(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tkerrors.ErrCompile))

	var te *tkerrors.ToolkitError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, tkerrors.ErrCodeStylesheet, te.Code)
	assert.Contains(t, te.Diagnostic, "expected")
	assert.Equal(t, 3, te.Line)
	assert.Contains(t, err.Error(), te.Diagnostic)
}

func TestSassCompilerRejectsOldVersion(t *testing.T) {
	sass := installFakeSass(t, "1.20.0")
	dir := t.TempDir()
	src := filepath.Join(dir, "all.scss")
	require.NoError(t, os.WriteFile(src, []byte(".a{}"), 0o644))

	_, err := NewSassCompiler(sass).Preprocess(context.Background(), src)
	assert.True(t, errors.Is(err, tkerrors.ErrConfig))
}
