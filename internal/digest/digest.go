// Package digest computes content digests for extension package artifacts.
package digest

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Bytes returns the xxhash-64 digest of data as 16 lowercase hex chars.
func Bytes(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// File returns the digest and size of the file at path.
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), size, nil
}
