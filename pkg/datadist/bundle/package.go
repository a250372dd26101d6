// Package bundle provides the content-addressed package builder and push
// machinery that datadist hands finished datasets to. A Package maps
// slash-separated logical keys to file or directory entries backed by
// physical filesystem paths, each carrying JSON-serializable metadata.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Error types
var (
	// ErrEntryNotFound indicates a logical key is not present in the package
	ErrEntryNotFound = errors.New("package entry not found")

	// ErrInvalidEntry indicates a Set/SetDir call with a bad key or path
	ErrInvalidEntry = errors.New("invalid package entry")

	// ErrInvalidName indicates a package name that fails the owner/name pattern
	ErrInvalidName = errors.New("invalid package name")

	// ErrPushFailed indicates a push operation failed
	ErrPushFailed = errors.New("push failed")
)

// Meta is the JSON-serializable metadata mapping attached to an entry.
type Meta map[string]any

// Entry is one packaged object: a logical key bound to a physical path.
// Directory entries carry no metadata and are never deduplicated.
type Entry struct {
	LogicalKey   string
	PhysicalPath string
	Dir          bool
	Meta         Meta
}

// SetMeta replaces the entry's metadata mapping.
func (e *Entry) SetMeta(meta Meta) {
	e.Meta = meta
}

// MergeMeta overlays the given fields onto the entry's metadata, overwriting
// existing keys.
func (e *Entry) MergeMeta(fields Meta) {
	if e.Meta == nil {
		e.Meta = make(Meta, len(fields))
	}
	for k, v := range fields {
		e.Meta[k] = v
	}
}

// Package is an in-progress content-addressed bundle. Entries keep insertion
// order for deterministic walks; Set on an existing key replaces the entry in
// place without reordering.
type Package struct {
	keys    []string
	entries map[string]*Entry
}

// New creates an empty package.
func New() *Package {
	return &Package{entries: make(map[string]*Entry)}
}

// Len returns the number of entries.
func (p *Package) Len() int { return len(p.keys) }

// Has reports whether a logical key is present.
func (p *Package) Has(logicalKey string) bool {
	_, ok := p.entries[logicalKey]
	return ok
}

// Get returns the entry at a logical key.
func (p *Package) Get(logicalKey string) (*Entry, error) {
	e, ok := p.entries[logicalKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, logicalKey)
	}
	return e, nil
}

// Keys returns the logical keys in insertion order.
func (p *Package) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Set registers a regular file at a logical key. Setting an existing key
// replaces its entry.
func (p *Package) Set(logicalKey, physicalPath string, meta Meta) error {
	if logicalKey == "" {
		return fmt.Errorf("%w: empty logical key", ErrInvalidEntry)
	}
	info, err := os.Stat(physicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEntry, physicalPath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidEntry, physicalPath)
	}
	p.put(&Entry{LogicalKey: logicalKey, PhysicalPath: physicalPath, Meta: meta})
	return nil
}

// SetDir registers a directory at a logical key.
func (p *Package) SetDir(logicalKey, physicalPath string) error {
	if logicalKey == "" {
		return fmt.Errorf("%w: empty logical key", ErrInvalidEntry)
	}
	info, err := os.Stat(physicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEntry, physicalPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidEntry, physicalPath)
	}
	p.put(&Entry{LogicalKey: logicalKey, PhysicalPath: physicalPath, Dir: true})
	return nil
}

func (p *Package) put(e *Entry) {
	if _, exists := p.entries[e.LogicalKey]; !exists {
		p.keys = append(p.keys, e.LogicalKey)
	}
	p.entries[e.LogicalKey] = e
}

// Walk visits every entry in insertion order, stopping at the first error.
func (p *Package) Walk(fn func(e *Entry) error) error {
	for _, k := range p.keys {
		if err := fn(p.entries[k]); err != nil {
			return err
		}
	}
	return nil
}

// TopHash computes the deterministic content address of the package: a
// sha256 over the sorted entries (logical key, physical path, kind and
// canonical metadata encoding).
func (p *Package) TopHash() (string, error) {
	keys := p.Keys()
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		e := p.entries[k]
		kind := "file"
		if e.Dir {
			kind = "dir"
		}
		// encoding/json sorts map keys, so the metadata encoding is stable.
		metaJSON, err := json.Marshal(e.Meta)
		if err != nil {
			return "", fmt.Errorf("failed to encode metadata for %s: %w", k, err)
		}
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00", e.LogicalKey, e.PhysicalPath, kind, metaJSON)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
