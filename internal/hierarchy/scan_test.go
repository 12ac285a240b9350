package hierarchy

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestScanLocal(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/docs/index.md", "# Handbook\n\nwelcome")
	write(t, fs, "/docs/setup.md", "no heading here")
	write(t, fs, "/docs/guides/index.md", "# Guides")
	write(t, fs, "/docs/guides/first.md", "intro\n# First Guide\n")
	write(t, fs, "/docs/misc/loose.md", "# Loose")
	write(t, fs, "/docs/notes.txt", "ignored")
	write(t, fs, "/docs/.docsync/manifest.json", "{}")

	roots, err := NewMapper().ScanLocal(fs, "/docs")
	require.NoError(t, err)
	require.Len(t, roots, 1)

	root := roots[0]
	assert.Equal(t, "index.md", root.Path)
	assert.Equal(t, "Handbook", root.Title)
	assert.True(t, root.IsIndex)
	assert.Equal(t, 0, root.Depth)

	byPath := map[string]*LocalNode{}
	for _, n := range FlattenLocal(roots) {
		byPath[n.Path] = n
	}
	require.Len(t, byPath, 5)

	assert.Equal(t, "setup", byPath["setup.md"].Title)
	assert.Same(t, root, byPath["setup.md"].Parent)
	assert.Same(t, root, byPath["misc/loose.md"].Parent)
	assert.Equal(t, 1, byPath["misc/loose.md"].Depth)

	guides := byPath["guides/index.md"]
	assert.True(t, guides.IsIndex)
	assert.Same(t, guides, byPath["guides/first.md"].Parent)
	assert.Equal(t, "First Guide", byPath["guides/first.md"].Title)
	assert.Equal(t, 2, byPath["guides/first.md"].Depth)

	groups := LocalDepthGroups(roots)
	require.Len(t, groups, 3)
	assert.Equal(t, "guides/index.md", groups[1][0].Path)
	assert.Equal(t, "guides/first.md", groups[2][0].Path)
}

func TestScanLocal_NoIndex(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/flat/b.md", "# B")
	write(t, fs, "/flat/a.md", "# A")

	roots, err := NewMapper().ScanLocal(fs, "/flat")
	require.NoError(t, err)
	require.Len(t, roots, 2)

	groups := LocalDepthGroups(roots)
	require.Len(t, groups, 1)
	assert.Equal(t, "A", groups[0][0].Title)
}

func TestScanLocal_MissingDir(t *testing.T) {
	_, err := NewMapper().ScanLocal(afero.NewMemMapFs(), "/nope")
	assert.Error(t, err)
}

func TestHeadingTitle(t *testing.T) {
	assert.Equal(t, "Title", HeadingTitle([]byte("  # Title  \nbody")))
	assert.Equal(t, "", HeadingTitle([]byte("## Sub\n")))
}
