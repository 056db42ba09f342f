package listing

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
)

func sourceTree(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"/src/toolkit/all.scss":                                  "@import 'core';",
		"/src/toolkit/all-ie8.scss":                              "$ie8: true;",
		"/src/toolkit/all.js":                                    "export {}",
		"/src/toolkit/components/button/button.yaml":             "params: []",
		"/src/toolkit/components/button/button.js":               "export default 1",
		"/src/toolkit/components/button/template.html":           "<button></button>",
		"/src/toolkit/components/button/button.test.js":          "test",
		"/src/toolkit/components/character-count/_index.scss":    ".x{}",
		"/src/toolkit/assets/images/crest.png":                   "png",
		"/src/toolkit/components/character-count/template.html": "<div></div>",
	}
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
	}
	return fsys
}

func TestList(t *testing.T) {
	svc := New(sourceTree(t))

	listing, err := svc.List("/src/toolkit")
	require.NoError(t, err)

	assert.Equal(t, []string{"all-ie8.scss", "all.js", "all.scss", "assets", "components"}, listing.Names())
	assert.Equal(t, KindDirectory, listing["components"].Kind)
	assert.Equal(t, KindFile, listing["all.js"].Kind)
	assert.Equal(t, int64(len("export {}")), listing["all.js"].Size)
	assert.Equal(t, "/src/toolkit/all.js", listing["all.js"].Path)
}

func TestListNotFound(t *testing.T) {
	svc := New(afero.NewMemMapFs())

	_, err := svc.List("/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tkerrors.ErrNotFound))
}

func TestListDirectoriesAndFiles(t *testing.T) {
	svc := New(sourceTree(t))

	dirs, err := svc.ListDirectories("/src/toolkit/components")
	require.NoError(t, err)
	assert.Equal(t, []string{"button", "character-count"}, dirs.Names())

	files, err := svc.ListFiles("/src/toolkit")
	require.NoError(t, err)
	assert.Equal(t, []string{"all-ie8.scss", "all.js", "all.scss"}, files.Names())
}

func TestListRecursive(t *testing.T) {
	svc := New(sourceTree(t))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name:   "scripts without tests",
			filter: Filter{Include: []string{"*.js"}, Exclude: []string{"*.test.js"}},
			want:   []string{"all.js", "components/button/button.js"},
		},
		{
			name:   "definitions by path glob",
			filter: Filter{Include: []string{"components/*/*.yaml"}},
			want:   []string{"components/button/button.yaml"},
		},
		{
			name:   "assets subtree",
			filter: Filter{Include: []string{"assets/**"}},
			want:   []string{"assets/images/crest.png"},
		},
		{
			name:   "top level stylesheets only",
			filter: Filter{Include: []string{"*.scss"}, Exclude: []string{"components/**"}},
			want:   []string{"all-ie8.scss", "all.scss"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Collect(svc.ListRecursive("/src/toolkit", tt.filter))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListRecursiveIsRestartable(t *testing.T) {
	fsys := sourceTree(t)
	svc := New(fsys)
	seq := svc.ListRecursive("/src/toolkit/components/button", Filter{})

	first, err := Collect(seq)
	require.NoError(t, err)
	assert.Len(t, first, 4)

	require.NoError(t, afero.WriteFile(fsys, "/src/toolkit/components/button/README.md", []byte("#"), 0o644))

	second, err := Collect(seq)
	require.NoError(t, err)
	assert.Len(t, second, 5)
	assert.Contains(t, second, "README.md")
}

func TestListRecursiveEarlyStopAndError(t *testing.T) {
	svc := New(sourceTree(t))

	count := 0
	for range svc.ListRecursive("/src/toolkit", Filter{}) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)

	_, err := Collect(svc.ListRecursive("/nope", Filter{}))
	assert.True(t, errors.Is(err, tkerrors.ErrNotFound))
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{Include: []string{"**/*.js"}}.Validate())
	assert.Error(t, Filter{Exclude: []string{"[unclosed"}}.Validate())
}
