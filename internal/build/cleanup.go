package build

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/types"
)

// PreservedPackageFiles are hand-authored files at the package root that
// cleanup never removes.
var PreservedPackageFiles = []string{"package.json", "toolkit.config.json", "README.md"}

// Clean empties root. Under the package profile the preserved files at the
// root survive. A missing root is created.
func Clean(fsys afero.Fs, root string, profile types.Profile) error {
	entries, err := afero.ReadDir(fsys, root)
	if errors.Is(err, fs.ErrNotExist) {
		if err := fsys.MkdirAll(root, 0o755); err != nil {
			return tkerrors.FileSystemError(tkerrors.ErrCodeClean, root, err)
		}
		return nil
	}
	if err != nil {
		return tkerrors.FileSystemError(tkerrors.ErrCodeClean, root, err)
	}

	for _, entry := range entries {
		if profile == types.ProfilePackage && !entry.IsDir() && preserved(entry.Name()) {
			continue
		}
		target := filepath.Join(root, entry.Name())
		if err := fsys.RemoveAll(target); err != nil {
			return tkerrors.FileSystemError(tkerrors.ErrCodeClean, target, err)
		}
	}
	return nil
}

func preserved(name string) bool {
	for _, p := range PreservedPackageFiles {
		if p == name {
			return true
		}
	}
	return false
}
