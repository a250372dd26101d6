package bundle_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadist/dataset-distribute/pkg/datadist/bundle"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	fp := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(fp), 0o755))
	require.NoError(t, os.WriteFile(fp, []byte(contents), 0o644))
	return fp
}

func TestPackageSet(t *testing.T) {
	dir := t.TempDir()
	fp := writeFile(t, dir, "data.csv", "a,b\n1,2\n")

	pkg := bundle.New()

	t.Run("registers a regular file", func(t *testing.T) {
		require.NoError(t, pkg.Set("metadata.csv", fp, bundle.Meta{"rows": 1}))
		assert.Equal(t, 1, pkg.Len())
		assert.True(t, pkg.Has("metadata.csv"))

		entry, err := pkg.Get("metadata.csv")
		require.NoError(t, err)
		assert.Equal(t, fp, entry.PhysicalPath)
		assert.False(t, entry.Dir)
		assert.Equal(t, 1, entry.Meta["rows"])
	})

	t.Run("empty logical key", func(t *testing.T) {
		err := pkg.Set("", fp, nil)
		assert.ErrorIs(t, err, bundle.ErrInvalidEntry)
	})

	t.Run("missing physical path", func(t *testing.T) {
		err := pkg.Set("missing", filepath.Join(dir, "gone.csv"), nil)
		assert.ErrorIs(t, err, bundle.ErrInvalidEntry)
	})

	t.Run("directory rejected by Set", func(t *testing.T) {
		err := pkg.Set("dir", dir, nil)
		assert.ErrorIs(t, err, bundle.ErrInvalidEntry)
	})

	t.Run("file rejected by SetDir", func(t *testing.T) {
		err := pkg.SetDir("dir", fp)
		assert.ErrorIs(t, err, bundle.ErrInvalidEntry)
	})

	t.Run("directory entry", func(t *testing.T) {
		require.NoError(t, pkg.SetDir("raw", dir))
		entry, err := pkg.Get("raw")
		require.NoError(t, err)
		assert.True(t, entry.Dir)
	})

	t.Run("get unknown key", func(t *testing.T) {
		_, err := pkg.Get("unknown")
		assert.ErrorIs(t, err, bundle.ErrEntryNotFound)
	})
}

func TestPackageInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "a")
	b := writeFile(t, dir, "b.txt", "b")
	c := writeFile(t, dir, "c.txt", "c")

	pkg := bundle.New()
	require.NoError(t, pkg.Set("c", c, nil))
	require.NoError(t, pkg.Set("a", a, nil))
	require.NoError(t, pkg.Set("b", b, nil))

	assert.Equal(t, []string{"c", "a", "b"}, pkg.Keys())

	// Replacing an existing key keeps its position.
	require.NoError(t, pkg.Set("a", b, nil))
	assert.Equal(t, []string{"c", "a", "b"}, pkg.Keys())
	assert.Equal(t, 3, pkg.Len())

	var walked []string
	require.NoError(t, pkg.Walk(func(e *bundle.Entry) error {
		walked = append(walked, e.LogicalKey)
		return nil
	}))
	assert.Equal(t, []string{"c", "a", "b"}, walked)
}

func TestEntryMergeMeta(t *testing.T) {
	entry := &bundle.Entry{LogicalKey: "k"}

	entry.MergeMeta(bundle.Meta{"a": 1, "b": "x"})
	entry.MergeMeta(bundle.Meta{"b": "y", "c": true})

	assert.Equal(t, 1, entry.Meta["a"])
	assert.Equal(t, "y", entry.Meta["b"])
	assert.Equal(t, true, entry.Meta["c"])
}

func TestTopHash(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "a")
	b := writeFile(t, dir, "b.txt", "b")

	build := func(meta bundle.Meta) *bundle.Package {
		pkg := bundle.New()
		require.NoError(t, pkg.Set("a", a, meta))
		require.NoError(t, pkg.Set("b", b, nil))
		return pkg
	}

	t.Run("deterministic across builds", func(t *testing.T) {
		h1, err := build(bundle.Meta{"k": "v"}).TopHash()
		require.NoError(t, err)
		h2, err := build(bundle.Meta{"k": "v"}).TopHash()
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
		assert.Len(t, h1, 64)
	})

	t.Run("independent of insertion order", func(t *testing.T) {
		forward := bundle.New()
		require.NoError(t, forward.Set("a", a, nil))
		require.NoError(t, forward.Set("b", b, nil))

		reversed := bundle.New()
		require.NoError(t, reversed.Set("b", b, nil))
		require.NoError(t, reversed.Set("a", a, nil))

		h1, err := forward.TopHash()
		require.NoError(t, err)
		h2, err := reversed.TopHash()
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	})

	t.Run("metadata changes the hash", func(t *testing.T) {
		h1, err := build(bundle.Meta{"k": "v"}).TopHash()
		require.NoError(t, err)
		h2, err := build(bundle.Meta{"k": "other"}).TopHash()
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)
	})
}
