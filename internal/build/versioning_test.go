package build

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
	"github.com/conneroisu/toolkit/internal/types"
)

func TestReadVersion(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     string
		kind     error
	}{
		{"plain", `{"name":"toolkit","version":"5.1.0"}`, "5.1.0", nil},
		{"prerelease kept raw", `{"version":"5.0.0-beta.1"}`, "5.0.0-beta.1", nil},
		{"missing version", `{"name":"toolkit"}`, "", tkerrors.ErrConfig},
		{"invalid version", `{"version":"five"}`, "", tkerrors.ErrConfig},
		{"malformed", `{"version":`, "", tkerrors.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fsys, "/package/package.json", []byte(tt.manifest), 0o644))

			got, err := ReadVersion(fsys, "/package/package.json")
			if tt.kind != nil {
				assert.True(t, errors.Is(err, tt.kind), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ReadVersion(afero.NewMemMapFs(), "/missing.json")
	assert.True(t, errors.Is(err, tkerrors.ErrNotFound))
}

func TestVersionedName(t *testing.T) {
	tests := []struct {
		rel  string
		want string
		ok   bool
	}{
		{"toolkit.min.css", "toolkit-1.2.3.min.css", true},
		{"toolkit-ie8.min.css", "toolkit-ie8-1.2.3.min.css", true},
		{"toolkit.min.js", "toolkit-1.2.3.min.js", true},
		{"assets/fonts/bold.woff2", "assets/fonts/bold.woff2", false},
		{".min.css", ".min.css", false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, ok := VersionedName(tt.rel, "1.2.3")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestStampVersion(t *testing.T) {
	fsys := afero.NewMemMapFs()
	w := NewWriter(fsys, "/dist")

	require.NoError(t, w.Write(types.CompiledArtifact{Kind: types.ArtifactStylesheet, DestPath: "toolkit.min.css"}, []byte("a")))
	require.NoError(t, w.Write(types.CompiledArtifact{Kind: types.ArtifactStylesheet, DestPath: "toolkit-ie8.min.css"}, []byte("b")))
	require.NoError(t, w.Write(types.CompiledArtifact{Kind: types.ArtifactScript, DestPath: "toolkit.min.js"}, []byte("c")))
	require.NoError(t, w.Write(types.CompiledArtifact{Kind: types.ArtifactStatic, DestPath: "assets/images/x.min.png"}, []byte("d")))

	require.NoError(t, StampVersion(w, "/package/package.json", "2.0.0"))

	var dests []string
	for _, a := range w.Artifacts() {
		dests = append(dests, a.DestPath)
	}
	assert.Equal(t, []string{
		"VERSION.txt",
		"assets/images/x.min.png",
		"toolkit-2.0.0.min.css",
		"toolkit-2.0.0.min.js",
		"toolkit-ie8-2.0.0.min.css",
	}, dests)

	version, err := afero.ReadFile(fsys, "/dist/VERSION.txt")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0\n", string(version))

	exists, err := afero.Exists(fsys, "/dist/toolkit.min.css")
	require.NoError(t, err)
	assert.False(t, exists)
}
