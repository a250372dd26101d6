// Package memory provides an in-memory push registry.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/datadist/dataset-distribute/pkg/datadist/bundle"
)

// Registry implements bundle.Registry using in-memory storage.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]*bundle.PackageVersion // name -> versions, oldest first
}

// New creates a new in-memory registry.
func New() *Registry {
	return &Registry{versions: make(map[string][]*bundle.PackageVersion)}
}

// RecordVersion stores the record of a completed push.
func (r *Registry) RecordVersion(ctx context.Context, version *bundle.PackageVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Copy to avoid external modifications.
	versionCopy := *version
	r.versions[version.Name] = append(r.versions[version.Name], &versionCopy)
	return nil
}

// ListVersions returns all recorded versions of a package, oldest first.
func (r *Registry) ListVersions(ctx context.Context, name string) ([]*bundle.PackageVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.versions[name]
	out := make([]*bundle.PackageVersion, len(stored))
	for i, v := range stored {
		versionCopy := *v
		out[i] = &versionCopy
	}
	return out, nil
}

// LatestVersion returns the most recently recorded version of a package.
func (r *Registry) LatestVersion(ctx context.Context, name string) (*bundle.PackageVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.versions[name]
	if len(stored) == 0 {
		return nil, fmt.Errorf("no versions recorded for package %q", name)
	}
	versionCopy := *stored[len(stored)-1]
	return &versionCopy, nil
}
