// Package fs provides a filesystem-backed blob store: object keys map to
// files under a base directory. Useful for local registries and tests.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/datadist/dataset-distribute/pkg/datadist/bundle"
)

// ErrObjectNotFound indicates the requested object key has no backing file.
var ErrObjectNotFound = errors.New("object not found")

// Config options for the filesystem store.
type Config struct {
	BaseDir string // Base directory for storing objects
}

// Store is a filesystem implementation of the bundle.BlobStore interface.
type Store struct {
	baseDir string
}

// New creates a filesystem blob store, creating the base directory if it
// does not exist.
func New(config Config) (*Store, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{baseDir: config.BaseDir}, nil
}

func (s *Store) objectPath(objectKey string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(objectKey))
}

// Upload writes the object to a file under the base directory, creating the
// intermediate directory structure as needed.
func (s *Store) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	filePath := s.objectPath(objectKey)

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Download opens the backing file for reading.
func (s *Store) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	file, err := os.Open(s.objectPath(objectKey))
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes the backing file and prunes any directories it leaves
// empty.
func (s *Store) Delete(ctx context.Context, objectKey string) error {
	filePath := s.objectPath(objectKey)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return ErrObjectNotFound
	}
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	s.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// GetObjectMeta retrieves metadata for an object on the filesystem.
func (s *Store) GetObjectMeta(ctx context.Context, objectKey string) (*bundle.ObjectMeta, error) {
	filePath := s.objectPath(objectKey)

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	contentType := "application/octet-stream"
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil {
			contentType = http.DetectContentType(buffer[:n])
		}
	}

	return &bundle.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
		Metadata:    map[string]string{"content_type": contentType},
	}, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir.
func (s *Store) cleanupEmptyDirectories(dir string) {
	if dir == s.baseDir {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			s.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
