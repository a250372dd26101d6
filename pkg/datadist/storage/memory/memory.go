// Package memory provides an in-memory blob store, useful for tests and for
// building packages without touching a real object store.
package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/datadist/dataset-distribute/pkg/datadist/bundle"
)

// ErrObjectNotFound indicates the requested object key is not stored.
var ErrObjectNotFound = errors.New("object not found")

// Store is an in-memory implementation of the bundle.BlobStore interface.
type Store struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	uploaded map[string]time.Time
}

// New creates a new in-memory blob store.
func New() *Store {
	return &Store{
		objects:  make(map[string][]byte),
		uploaded: make(map[string]time.Time),
	}
}

// Upload stores the object bytes under the key.
func (s *Store) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey] = data
	s.uploaded[objectKey] = time.Now().UTC()
	return nil
}

// Download returns a reader over the stored object bytes.
func (s *Store) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.objects[objectKey]
	if !exists {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[objectKey]; !exists {
		return ErrObjectNotFound
	}
	delete(s.objects, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

// GetObjectMeta retrieves metadata for a stored object.
func (s *Store) GetObjectMeta(ctx context.Context, objectKey string) (*bundle.ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.objects[objectKey]
	if !exists {
		return nil, ErrObjectNotFound
	}
	return &bundle.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(data)),
		ContentType: "application/octet-stream",
		UpdatedAt:   s.uploaded[objectKey],
		Metadata:    map[string]string{},
	}, nil
}

// Keys returns all stored object keys; handy for assertions in tests.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
