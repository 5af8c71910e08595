package checksum

import (
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference digests computed independently of this package.
const (
	helloWorldSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	helloWorldMD5    = "5eb63bbbe01eeed093cb22bb8f5acdc3"
)

func TestFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/file.txt", []byte("hello world"), 0644))

	tests := []struct {
		name      string
		algorithm Algorithm
		exp       string
	}{
		{name: "SHA256", algorithm: SHA256, exp: helloWorldSHA256},
		{name: "MD5", algorithm: MD5, exp: helloWorldMD5},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			digest, err := File(fs, "/file.txt", test.algorithm)
			require.NoError(t, err)
			assert.Equal(t, test.exp, digest)
		})
	}
}

func TestFileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := File(fs, "/missing.txt", SHA256)
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/file.txt", []byte("x"), 0644))
	_, err = File(fs, "/file.txt", Algorithm("crc32"))
	assert.Error(t, err)
}

func TestFromReaderRestoresPosition(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/file.txt", []byte("hello world"), 0644))

	f, err := fs.Open("/file.txt")
	require.NoError(t, err)
	defer f.Close()

	// Read partway into the file before hashing.
	prefix := make([]byte, 6)
	_, err = io.ReadFull(f, prefix)
	require.NoError(t, err)

	digest, err := FromReader(f, SHA256)
	require.NoError(t, err)
	assert.Equal(t, helloWorldSHA256, digest, "the whole stream should be hashed")

	// The cursor must be back where it was before the call.
	rest, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "world", string(rest))
}

func TestBatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.txt", []byte("hello world"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/b.txt", []byte("hello world"), 0644))

	paths := []string{"/a.txt", "/b.txt", "/missing.txt"}
	results := Batch(fs, paths, SHA256, 2)

	require.Len(t, results, len(paths))
	assert.NoError(t, results["/a.txt"].Err)
	assert.Equal(t, helloWorldSHA256, results["/a.txt"].Digest)
	assert.Equal(t, helloWorldSHA256, results["/b.txt"].Digest)

	// The missing file's failure is recorded without aborting the batch.
	assert.Error(t, results["/missing.txt"].Err)
}

func TestBatchEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	results := Batch(fs, nil, SHA256, 4)
	assert.Empty(t, results)
}
