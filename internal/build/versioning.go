package build

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/spf13/afero"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/types"
)

// VersionFile is written at the release root and holds the version.
const VersionFile = "VERSION.txt"

// ReadVersion returns the version declared by a package manifest exactly as
// written, after checking it is a valid semantic version.
func ReadVersion(fsys afero.Fs, manifest string) (string, error) {
	data, err := afero.ReadFile(fsys, manifest)
	if errors.Is(err, fs.ErrNotExist) {
		return "", tkerrors.NotFound(manifest, err)
	}
	if err != nil {
		return "", tkerrors.FileSystemError(tkerrors.ErrCodeRead, manifest, err)
	}

	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", tkerrors.ConfigError(tkerrors.ErrCodeVersion,
			fmt.Sprintf("%s: %v", manifest, err))
	}
	if pkg.Version == "" {
		return "", tkerrors.ConfigError(tkerrors.ErrCodeVersion, manifest+" declares no version")
	}
	if _, err := semver.NewVersion(pkg.Version); err != nil {
		return "", tkerrors.ConfigError(tkerrors.ErrCodeVersion,
			fmt.Sprintf("%s: invalid version %q", manifest, pkg.Version))
	}
	return pkg.Version, nil
}

// VersionedName stamps version into a minified file name:
// toolkit-ie8.min.css becomes toolkit-ie8-<version>.min.css. Names without
// a .min. infix are returned unchanged with ok false.
func VersionedName(rel, version string) (string, bool) {
	dir, base := path.Split(rel)
	i := strings.Index(base, ".min.")
	if i <= 0 {
		return rel, false
	}
	return dir + base[:i] + "-" + version + base[i:], true
}

// StampVersion renames the minified stylesheets and scripts written by w to
// their versioned names and writes VersionFile.
func StampVersion(w *Writer, manifest, version string) error {
	for _, a := range w.Artifacts() {
		if a.Kind != types.ArtifactStylesheet && a.Kind != types.ArtifactScript {
			continue
		}
		to, ok := VersionedName(a.DestPath, version)
		if !ok {
			continue
		}
		if err := w.Rename(a.DestPath, to); err != nil {
			return err
		}
	}

	return w.Write(types.CompiledArtifact{
		Kind:       types.ArtifactVersion,
		SourcePath: manifest,
		DestPath:   VersionFile,
	}, []byte(version+"\n"))
}
