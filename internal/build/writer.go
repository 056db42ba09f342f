package build

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/types"
)

// Writer writes the artifacts of one run below a destination root. Every
// destination path may be claimed once per run; a second claim is a
// collision and fails. Files are written to a temporary sibling and renamed
// into place.
type Writer struct {
	fs   afero.Fs
	root string

	mu        sync.Mutex
	claimed   map[string]string
	artifacts []types.CompiledArtifact
}

// NewWriter creates a writer for one run.
func NewWriter(fsys afero.Fs, root string) *Writer {
	return &Writer{fs: fsys, root: root, claimed: make(map[string]string)}
}

// Root returns the destination root.
func (w *Writer) Root() string { return w.root }

// Write claims artifact.DestPath and writes data there.
func (w *Writer) Write(artifact types.CompiledArtifact, data []byte) error {
	if err := w.claim(artifact); err != nil {
		return err
	}
	return writeAtomic(w.fs, w.Abs(artifact.DestPath), data)
}

// Copy claims artifact.DestPath and copies artifact.SourcePath there.
func (w *Writer) Copy(artifact types.CompiledArtifact) error {
	data, err := afero.ReadFile(w.fs, artifact.SourcePath)
	if err != nil {
		return tkerrors.FileSystemError(tkerrors.ErrCodeRead, artifact.SourcePath, err)
	}
	return w.Write(artifact, data)
}

// Abs resolves a destination-relative path.
func (w *Writer) Abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// Artifacts returns what has been written so far, sorted by destination.
func (w *Writer) Artifacts() []types.CompiledArtifact {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := append([]types.CompiledArtifact(nil), w.artifacts...)
	sort.Slice(out, func(i, j int) bool { return out[i].DestPath < out[j].DestPath })
	return out
}

// Rename moves an artifact already written by this run to a new
// destination path.
func (w *Writer) Rename(from, to string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.claimed[to]; ok {
		return tkerrors.FileSystemError(tkerrors.ErrCodeCollision, to,
			fmt.Errorf("destination already written by this run"))
	}
	if err := w.fs.Rename(w.Abs(from), w.Abs(to)); err != nil {
		return tkerrors.FileSystemError(tkerrors.ErrCodeWrite, w.Abs(to), err)
	}

	w.claimed[to] = w.claimed[from]
	delete(w.claimed, from)
	for i := range w.artifacts {
		if w.artifacts[i].DestPath == from {
			w.artifacts[i].DestPath = to
		}
	}
	return nil
}

func (w *Writer) claim(artifact types.CompiledArtifact) error {
	dest := path.Clean(artifact.DestPath)
	if dest == "." || path.IsAbs(dest) || dest == ".." || strings.HasPrefix(dest, "../") {
		return tkerrors.ErrPathTraversal(artifact.DestPath)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.claimed[dest]; ok {
		return tkerrors.FileSystemError(tkerrors.ErrCodeCollision, dest,
			fmt.Errorf("both %s and %s write this destination", prev, artifact.SourcePath))
	}
	w.claimed[dest] = artifact.SourcePath
	artifact.DestPath = dest
	w.artifacts = append(w.artifacts, artifact)
	return nil
}

func writeAtomic(fsys afero.Fs, dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return tkerrors.FileSystemError(tkerrors.ErrCodeWrite, dir, err)
	}

	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return tkerrors.FileSystemError(tkerrors.ErrCodeWrite, dest, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
		return tkerrors.FileSystemError(tkerrors.ErrCodeWrite, dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return tkerrors.FileSystemError(tkerrors.ErrCodeWrite, dest, err)
	}
	if err := fsys.Chmod(tmpName, 0o644); err != nil {
		_ = fsys.Remove(tmpName)
		return tkerrors.FileSystemError(tkerrors.ErrCodeWrite, dest, err)
	}
	if err := fsys.Rename(tmpName, dest); err != nil {
		_ = fsys.Remove(tmpName)
		return tkerrors.FileSystemError(tkerrors.ErrCodeWrite, dest, err)
	}
	return nil
}
