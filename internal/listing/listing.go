// Package listing enumerates directories on an afero filesystem. Every call
// reads the filesystem afresh; nothing is cached between calls.
package listing

import (
	"errors"
	"io/fs"
	"iter"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
)

// EntryKind distinguishes files from directories.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// Entry describes one directory child.
type Entry struct {
	Path    string
	Kind    EntryKind
	Size    int64
	ModTime time.Time
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// DirectoryListing maps a child's basename to its entry.
type DirectoryListing map[string]Entry

// Names returns the basenames in sorted order.
func (l DirectoryListing) Names() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filter selects relative paths by doublestar glob. A path is kept when it
// matches any include pattern (or there are none) and no exclude pattern.
// Patterns without a slash also match against the basename.
type Filter struct {
	Include []string
	Exclude []string
}

// Validate checks every pattern is well formed.
func (f Filter) Validate() error {
	for _, p := range append(append([]string{}, f.Include...), f.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return tkerrors.ConfigError(tkerrors.ErrCodeConfigInvalid, "invalid glob pattern: "+p)
		}
	}
	return nil
}

// Match reports whether the slash-separated relative path passes the filter.
func (f Filter) Match(rel string) bool {
	if len(f.Include) > 0 && !matchAny(f.Include, rel) {
		return false
	}
	return !matchAny(f.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, base); ok {
				return true
			}
		}
	}
	return false
}

// Service lists directories of one filesystem.
type Service struct {
	fs afero.Fs
}

// New creates a listing service over fsys.
func New(fsys afero.Fs) *Service {
	return &Service{fs: fsys}
}

// Fs returns the underlying filesystem.
func (s *Service) Fs() afero.Fs { return s.fs }

// List enumerates the immediate children of dir.
func (s *Service) List(dir string) (DirectoryListing, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, tkerrors.NotFound(dir, err)
		}
		return nil, tkerrors.FileSystemError(tkerrors.ErrCodeRead, dir, err)
	}

	listing := make(DirectoryListing, len(infos))
	for _, info := range infos {
		kind := KindFile
		if info.IsDir() {
			kind = KindDirectory
		}
		listing[info.Name()] = Entry{
			Path:    filepath.Join(dir, info.Name()),
			Kind:    kind,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
	}
	return listing, nil
}

// ListDirectories returns only the directory children of dir.
func (s *Service) ListDirectories(dir string) (DirectoryListing, error) {
	return s.listKind(dir, KindDirectory)
}

// ListFiles returns only the file children of dir.
func (s *Service) ListFiles(dir string) (DirectoryListing, error) {
	return s.listKind(dir, KindFile)
}

func (s *Service) listKind(dir string, kind EntryKind) (DirectoryListing, error) {
	all, err := s.List(dir)
	if err != nil {
		return nil, err
	}
	out := make(DirectoryListing)
	for name, e := range all {
		if e.Kind == kind {
			out[name] = e
		}
	}
	return out, nil
}

// ListRecursive yields the slash-separated path, relative to dir, of every
// file below dir that passes filter. The sequence is lazy and can be ranged
// over again; each pass re-reads the filesystem. Iteration stops at the
// first error, which is yielded with an empty path.
func (s *Service) ListRecursive(dir string, filter Filter) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.walk(dir, "", filter, yield)
	}
}

func (s *Service) walk(root, rel string, filter Filter, yield func(string, error) bool) bool {
	listing, err := s.List(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		yield("", err)
		return false
	}

	for _, name := range listing.Names() {
		child := name
		if rel != "" {
			child = rel + "/" + name
		}
		if listing[name].IsDir() {
			if !s.walk(root, child, filter, yield) {
				return false
			}
			continue
		}
		if filter.Match(child) && !yield(child, nil) {
			return false
		}
	}
	return true
}

// Collect drains a ListRecursive sequence into a sorted slice.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for p, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
