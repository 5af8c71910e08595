package sync

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

func TestScan(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/src/sub/nested", 0755))
	require.NoError(t, fs.MkdirAll("/src/empty", 0755))
	require.NoError(t, afero.WriteFile(fs, "/src/a.txt", []byte("a"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/src/sub/b.txt", []byte("b"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/src/sub/nested/c.txt", []byte("c"), 0644))

	manifest, err := Scan(fs, "/src")
	require.NoError(t, err)

	exp := []Entry{
		{Path: "a.txt", Kind: KindFile},
		{Path: "empty/", Kind: KindDir},
		{Path: "sub/", Kind: KindDir},
		{Path: "sub/b.txt", Kind: KindFile},
		{Path: "sub/nested/", Kind: KindDir},
		{Path: "sub/nested/c.txt", Kind: KindFile},
	}
	assert.Equal(t, exp, manifest.Entries())
}

func TestScanMissingRoot(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Scan(fs, "/does-not-exist")
	require.Error(t, err)
	assert.IsType(t, errors.FileNotFound{}, errors.RootCause(err))
}

func TestScanEmptyRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/src", 0755))

	manifest, err := Scan(fs, "/src")
	require.NoError(t, err)
	assert.Equal(t, 0, manifest.Len())
}
