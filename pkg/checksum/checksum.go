// Package checksum computes content digests for files being synced. The
// digests are only used for equality comparison, so the algorithm is
// selectable: sha256 by default, with md5 available for speed-sensitive
// deployments.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/spf13/afero"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
)

// bufferSize is the chunk size used when streaming files through the digest.
const bufferSize = 64 * 1024

func newHasher(algorithm Algorithm) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case MD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
}

// File returns the hex digest of the file at path.
func File(fs afero.Fs, path string, algorithm Algorithm) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}

	if err := stream(f, hasher); err != nil {
		return "", errors.WithContext(err, "read")
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FromReader returns the hex digest of the contents of r. The read cursor is
// restored to its pre-call position afterwards, so the caller can keep using
// an already-open handle.
func FromReader(r io.ReadSeeker, algorithm Algorithm) (string, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}

	original, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", errors.WithContext(err, "save position")
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", errors.WithContext(err, "rewind")
	}

	streamErr := stream(r, hasher)

	// Restore the cursor even if hashing failed.
	if _, err := r.Seek(original, io.SeekStart); err != nil {
		return "", errors.WithContext(err, "restore position")
	}
	if streamErr != nil {
		return "", errors.WithContext(streamErr, "read")
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func stream(r io.Reader, hasher hash.Hash) error {
	buf := make([]byte, bufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
