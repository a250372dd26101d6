package bundle

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore is the storage backend a push writes package objects through.
// Implementations are provided under pkg/datadist/storage.
type BlobStore interface {
	// Upload writes an object under the given key
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// Download reads an object back
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes an object
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves storage-level metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// ObjectMeta contains storage-level metadata about a pushed object.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	Metadata    map[string]string
}

// PackageVersion is the registry record of one pushed package.
type PackageVersion struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"` // "{owner}/{name}"
	TopHash     string    `json:"top_hash"`
	Message     string    `json:"message,omitempty"`
	Destination string    `json:"destination"`
	EntryCount  int       `json:"entry_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Registry persists push records so repeated pushes of the same package name
// version instead of overwrite. Implementations are provided under
// pkg/datadist/repo.
type Registry interface {
	// RecordVersion stores the record of a completed push
	RecordVersion(ctx context.Context, version *PackageVersion) error

	// ListVersions returns all recorded versions of a package, oldest first
	ListVersions(ctx context.Context, name string) ([]*PackageVersion, error)

	// LatestVersion returns the most recently recorded version of a package
	LatestVersion(ctx context.Context, name string) (*PackageVersion, error)
}
