package datadist

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath expands a leading "~" and returns the cleaned absolute form of
// a path. It does not require the path to exist.
func ResolvePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand %q: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// ResolveExistingPath is ResolvePath plus an existence check.
func ResolveExistingPath(path string) (string, error) {
	abs, err := ResolvePath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, abs)
	}
	return abs, nil
}

// CreateUniqueLogicalKey derives the bundle-internal file name for a physical
// path: a short hash of the fully resolved path prepended to the base name.
//
// Using the base name alone would group files that merely share a name
// (a/0.tiff and b/0.tiff); hashing the resolved path keeps identical paths on
// identical keys while distinct paths never collide. The hash covers the path
// string, not file contents, so it is cheap and stable.
func CreateUniqueLogicalKey(physicalPath string) (string, error) {
	abs, err := ResolveExistingPath(physicalPath)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(abs))
	short := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("%s_%s", short, filepath.Base(abs)), nil
}
