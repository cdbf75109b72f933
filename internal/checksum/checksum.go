// Package checksum verifies a finished download against an expected digest.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Algorithm names a supported digest
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
)

// DefaultAlgorithm is used when a download carries a checksum without naming the algorithm
const DefaultAlgorithm = SHA1

const bufferSize = 64 * 1024

var (
	// ErrMismatch is returned when the file digest differs from the expected one
	ErrMismatch = errors.New("checksum mismatch")

	// ErrUnsupportedAlgorithm is returned for an unknown algorithm name
	ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")
)

// ProgressFunc receives the number of bytes hashed so far and the file size
type ProgressFunc func(read, total int64)

// ParseAlgorithm normalises an algorithm name. Empty selects DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch algo := Algorithm(strings.ToLower(strings.TrimSpace(name))); algo {
	case "":
		return DefaultAlgorithm, nil
	case SHA1, SHA256, MD5:
		return algo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

// New returns a fresh hash for the algorithm
func New(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case MD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algo)
	}
}

// Sum computes the lower-case hex digest of the file at path
func Sum(ctx context.Context, path string, algo Algorithm, progress ProgressFunc) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	total := info.Size()

	buf := make([]byte, bufferSize)
	var read int64
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := file.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			read += int64(n)
			if progress != nil {
				progress(read, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify hashes the file and compares it with expected, ignoring case and surrounding space
func Verify(ctx context.Context, path, expected string, algo Algorithm, progress ProgressFunc) error {
	actual, err := Sum(ctx, path, algo, progress)
	if err != nil {
		return err
	}

	if !strings.EqualFold(actual, strings.TrimSpace(expected)) {
		return fmt.Errorf("%w: expected %s, got %s", ErrMismatch, strings.TrimSpace(expected), actual)
	}
	return nil
}
