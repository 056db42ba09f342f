// Package build compiles the component library into the preview, package
// and release layouts. It owns the stylesheet and script compilers, the
// destination writer and the staged pipeline that sequences them.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
)

// MinSassVersion is the oldest sass release whose CLI flags are relied on.
const MinSassVersion = ">= 1.33.0"

// Preprocessor turns a stylesheet source into plain CSS.
type Preprocessor interface {
	Preprocess(ctx context.Context, path string) ([]byte, error)
}

// SassCompiler runs the sass executable.
type SassCompiler struct {
	command   string
	loadPaths []string
	parser    *tkerrors.ErrorParser

	mu             sync.Mutex
	versionChecked bool
	versionErr     error
}

// NewSassCompiler creates a sass compiler resolving imports against
// loadPaths.
func NewSassCompiler(command string, loadPaths ...string) *SassCompiler {
	return &SassCompiler{
		command:   command,
		loadPaths: loadPaths,
		parser:    tkerrors.NewErrorParser(),
	}
}

// Preprocess compiles one sass source to CSS on stdout.
func (sc *SassCompiler) Preprocess(ctx context.Context, path string) ([]byte, error) {
	if err := sc.CheckVersion(ctx); err != nil {
		return nil, err
	}

	args := []string{"--no-source-map", "--style=expanded", "--quiet-deps"}
	for _, dir := range sc.loadPaths {
		args = append(args, "--load-path="+dir)
	}
	args = append(args, path)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, sc.command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("sass cancelled: %w", ctx.Err())
		}
		parsed := sc.parser.ParseError(stderr.String())
		compileErr := tkerrors.CompileError(path, tkerrors.ErrCodeStylesheet, tkerrors.FormatErrors(parsed), err)
		if len(parsed) > 0 && parsed[0].Line > 0 {
			compileErr = compileErr.WithLocation(parsed[0].File, parsed[0].Line, parsed[0].Column)
		}
		return nil, compileErr
	}

	return stdout.Bytes(), nil
}

// CheckVersion verifies that the configured sass satisfies MinSassVersion.
// The outcome is remembered, except when ctx ended before sass answered.
func (sc *SassCompiler) CheckVersion(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.versionChecked {
		return sc.versionErr
	}

	if err := sc.validateCommand(); err != nil {
		sc.versionChecked, sc.versionErr = true, err
		return err
	}
	out, err := exec.CommandContext(ctx, sc.command, "--version").Output()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("sass version check cancelled: %w", ctx.Err())
		}
		err = tkerrors.ConfigError(tkerrors.ErrCodeVersion,
			fmt.Sprintf("running %s --version: %v", sc.command, err))
	} else {
		err = checkSassVersion(string(out))
	}
	sc.versionChecked, sc.versionErr = true, err
	return err
}

func checkSassVersion(output string) error {
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return tkerrors.ConfigError(tkerrors.ErrCodeVersion, "sass printed no version")
	}
	v, err := semver.NewVersion(fields[0])
	if err != nil {
		return tkerrors.ConfigError(tkerrors.ErrCodeVersion,
			fmt.Sprintf("unrecognised sass version %q", fields[0]))
	}
	constraint, err := semver.NewConstraint(MinSassVersion)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return tkerrors.ConfigError(tkerrors.ErrCodeVersion,
			fmt.Sprintf("sass %s does not satisfy %s", v, MinSassVersion))
	}
	return nil
}

// validateCommand restricts the executable to a known sass binary. Arguments
// reach exec directly, without a shell, so paths are passed through as is.
func (sc *SassCompiler) validateCommand() error {
	allowedCommands := map[string]bool{
		"sass":      true,
		"dart-sass": true,
	}

	if sc.command == "" || !allowedCommands[filepath.Base(sc.command)] {
		return tkerrors.ErrCommandInjection(sc.command)
	}
	if err := validateArgument(sc.command); err != nil {
		return tkerrors.ErrCommandInjection(sc.command).WithContext("reason", err.Error())
	}
	return nil
}

func validateArgument(arg string) error {
	for _, char := range []string{";", "&", "|", "$", "`", "<", ">", "\"", "'", "\n"} {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %q", char)
		}
	}
	return nil
}
