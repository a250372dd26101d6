package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// namePattern is the "{owner}/{name}" shape a push target must match.
var namePattern = regexp.MustCompile(`^[a-z0-9_\-]+/[a-z0-9_\-]+$`)

// PushRequest describes one push of a built package.
type PushRequest struct {
	// Name is the "{owner}/{name}" package identifier
	Name string

	// Destination is the opaque object-store identifier recorded with the
	// version (e.g. an s3 bucket uri); the transport is chosen by Store
	Destination string

	// Message is the free-text version message
	Message string

	// Store selects a named blob store; empty means the pusher default
	Store string
}

// manifestEntry is the wire form of one package entry inside the pushed
// manifest document.
type manifestEntry struct {
	LogicalKey  string `json:"logical_key"`
	PhysicalKey string `json:"physical_key"`
	Dir         bool   `json:"dir,omitempty"`
	Meta        Meta   `json:"meta,omitempty"`
}

type pushManifest struct {
	Name        string          `json:"name"`
	TopHash     string          `json:"top_hash"`
	Message     string          `json:"message,omitempty"`
	Destination string          `json:"destination"`
	CreatedAt   time.Time       `json:"created_at"`
	Entries     []manifestEntry `json:"entries"`
}

// Pusher uploads finished packages through named blob stores and records
// each push in an optional registry.
type Pusher struct {
	stores       map[string]BlobStore
	defaultStore string
	registry     Registry
	logger       *slog.Logger
}

// PusherOption configures a Pusher.
type PusherOption func(*Pusher)

// WithBlobStore registers a named blob store.
func WithBlobStore(name string, store BlobStore) PusherOption {
	return func(p *Pusher) {
		if p.stores == nil {
			p.stores = make(map[string]BlobStore)
		}
		p.stores[name] = store
	}
}

// WithDefaultStore selects which named store handles requests that do not
// name one.
func WithDefaultStore(name string) PusherOption {
	return func(p *Pusher) { p.defaultStore = name }
}

// WithRegistry records every push in the given registry.
func WithRegistry(registry Registry) PusherOption {
	return func(p *Pusher) { p.registry = registry }
}

// WithPushLogger routes push logging through the given logger.
func WithPushLogger(logger *slog.Logger) PusherOption {
	return func(p *Pusher) { p.logger = logger }
}

// NewPusher creates a pusher. At least one blob store is required; when no
// default is named and exactly one store is registered, that store becomes
// the default.
func NewPusher(opts ...PusherOption) (*Pusher, error) {
	p := &Pusher{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.stores) == 0 {
		return nil, fmt.Errorf("at least one blob store is required")
	}
	if p.defaultStore == "" {
		if len(p.stores) == 1 {
			for name := range p.stores {
				p.defaultStore = name
			}
		} else {
			return nil, fmt.Errorf("default store must be named when multiple stores are registered")
		}
	}
	if _, ok := p.stores[p.defaultStore]; !ok {
		return nil, fmt.Errorf("default store %q is not registered", p.defaultStore)
	}
	return p, nil
}

// Push uploads every entry of the package under "{name}/{topHash}/objects/",
// writes the manifest document alongside, and records the version. Pushing
// the same name again creates a new version rather than overwriting, because
// object keys are prefixed by the package top hash.
func (p *Pusher) Push(ctx context.Context, pkg *Package, req PushRequest) (*PackageVersion, error) {
	if !namePattern.MatchString(req.Name) {
		return nil, fmt.Errorf("%w: %q must match {owner}/{name} with lowercase alphanumeric, underscore and hyphen characters", ErrInvalidName, req.Name)
	}

	storeName := req.Store
	if storeName == "" {
		storeName = p.defaultStore
	}
	store, ok := p.stores[storeName]
	if !ok {
		return nil, fmt.Errorf("%w: blob store %q is not registered", ErrPushFailed, storeName)
	}

	topHash, err := pkg.TopHash()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	prefix := path.Join(req.Name, topHash)

	doc := pushManifest{
		Name:        req.Name,
		TopHash:     topHash,
		Message:     req.Message,
		Destination: req.Destination,
		CreatedAt:   time.Now().UTC(),
	}

	err = pkg.Walk(func(e *Entry) error {
		doc.Entries = append(doc.Entries, manifestEntry{
			LogicalKey:  e.LogicalKey,
			PhysicalKey: e.PhysicalPath,
			Dir:         e.Dir,
			Meta:        e.Meta,
		})
		if e.Dir {
			return p.uploadDir(ctx, store, prefix, e)
		}
		return p.uploadFile(ctx, store, path.Join(prefix, "objects", e.LogicalKey), e.PhysicalPath)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPushFailed, err)
	}

	manifestJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode manifest: %v", ErrPushFailed, err)
	}
	manifestKey := path.Join(prefix, "manifest.json")
	if err := store.Upload(ctx, manifestKey, bytes.NewReader(manifestJSON)); err != nil {
		return nil, fmt.Errorf("%w: failed to upload manifest: %v", ErrPushFailed, err)
	}

	version := &PackageVersion{
		ID:          uuid.New(),
		Name:        req.Name,
		TopHash:     topHash,
		Message:     req.Message,
		Destination: req.Destination,
		EntryCount:  pkg.Len(),
		CreatedAt:   doc.CreatedAt,
	}
	if p.registry != nil {
		if err := p.registry.RecordVersion(ctx, version); err != nil {
			return nil, fmt.Errorf("%w: failed to record version: %v", ErrPushFailed, err)
		}
	}

	p.logger.Info("pushed package",
		"name", req.Name,
		"top_hash", topHash,
		"entries", pkg.Len(),
		"store", storeName,
		"destination", req.Destination)

	return version, nil
}

func (p *Pusher) uploadFile(ctx context.Context, store BlobStore, objectKey, physicalPath string) error {
	f, err := os.Open(physicalPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", physicalPath, err)
	}
	defer f.Close()
	return store.Upload(ctx, sanitizeObjectKey(objectKey), f)
}

// uploadDir uploads every regular file under a directory entry, preserving
// the relative layout beneath the entry's logical key.
func (p *Pusher) uploadDir(ctx context.Context, store BlobStore, prefix string, e *Entry) error {
	return filepath.WalkDir(e.PhysicalPath, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(e.PhysicalPath, fp)
		if err != nil {
			return err
		}
		objectKey := path.Join(prefix, "objects", e.LogicalKey, filepath.ToSlash(rel))
		return p.uploadFile(ctx, store, objectKey, fp)
	})
}
