package datadist_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadist/dataset-distribute/pkg/datadist"
	"github.com/datadist/dataset-distribute/pkg/datadist/bundle"
	repomemory "github.com/datadist/dataset-distribute/pkg/datadist/repo/memory"
	memorystorage "github.com/datadist/dataset-distribute/pkg/datadist/storage/memory"
)

func TestApprovedName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{"already approved", "single_cell_images", "single_cell_images", false},
		{"spaces and case normalize", "Test Dataset", "test_dataset", false},
		{"hyphens normalize", "test-dataset", "test_dataset", false},
		{"slashes fail", "////This///Will///Fail////", "", true},
		{"punctuation fails", "data.set!", "", true},
		{"empty is allowed by the pattern", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := datadist.ApprovedName(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				assert.ErrorIs(t, err, datadist.ErrConfig)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

// distFixture is a small on-disk dataset: three image files each referenced
// by three manifest rows, a readme linking one local config file, and
// metadata columns that reduce (structure) and diverge (index) per file.
type distFixture struct {
	dir      string
	readme   string
	files    []string
	manifest *datadist.Manifest
}

func newDistFixture(t *testing.T) *distFixture {
	t.Helper()
	dir := t.TempDir()

	f := &distFixture{dir: dir}
	f.readme = writeFile(t, dir, "README.md",
		"# Example Dataset\n\nSee the [plate config](extras/config.json) for details.\n")
	writeFile(t, dir, "extras/config.json", "{}")

	structures := []string{"Actin", "Tubulin", "Lamin"}
	for i := 0; i < 3; i++ {
		f.files = append(f.files, writeFile(t, dir, fmt.Sprintf("images/f%d.tiff", i), fmt.Sprintf("image %d", i)))
	}

	m, err := datadist.NewManifest("image_file", "structure", "index")
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		require.NoError(t, m.AppendRow(map[string]any{
			"image_file": f.files[i/3],
			"structure":  structures[i/3],
			"index":      i,
		}))
	}
	f.manifest = m
	return f
}

func newTestDataset(t *testing.T, f *distFixture, opts ...datadist.DatasetOption) *datadist.Dataset {
	t.Helper()
	d, err := datadist.NewDataset(f.manifest, "Test Dataset", "aics", f.readme, opts...)
	require.NoError(t, err)
	return d
}

func TestNewDataset(t *testing.T) {
	f := newDistFixture(t)

	t.Run("nil manifest", func(t *testing.T) {
		_, err := datadist.NewDataset(nil, "name", "owner", f.readme)
		assert.Error(t, err)
		assert.ErrorIs(t, err, datadist.ErrConfig)
	})

	t.Run("bad name", func(t *testing.T) {
		_, err := datadist.NewDataset(f.manifest, "not/allowed", "owner", f.readme)
		assert.Error(t, err)
		assert.ErrorIs(t, err, datadist.ErrConfig)
	})

	t.Run("missing readme", func(t *testing.T) {
		_, err := datadist.NewDataset(f.manifest, "name", "owner", filepath.Join(f.dir, "gone.md"))
		assert.Error(t, err)
		assert.ErrorIs(t, err, datadist.ErrNotFound)
	})

	t.Run("name is normalized", func(t *testing.T) {
		d := newTestDataset(t, f)
		assert.Equal(t, "test_dataset", d.Name())
		assert.Equal(t, "aics", d.Owner())
	})

	t.Run("from csv", func(t *testing.T) {
		csvPath := filepath.Join(f.dir, "manifest.csv")
		require.NoError(t, f.manifest.WriteCSVFile(csvPath))

		d, err := datadist.NewDatasetFromCSV(csvPath, "from_csv", "aics", f.readme)
		require.NoError(t, err)
		assert.Equal(t, 9, d.Data().Len())
	})
}

func TestDatasetSetters(t *testing.T) {
	f := newDistFixture(t)
	d := newTestDataset(t, f)

	t.Run("unknown columns are rejected", func(t *testing.T) {
		assert.ErrorIs(t, d.SetMetadataColumns([]string{"nope"}), datadist.ErrConfig)
		assert.ErrorIs(t, d.SetPathColumns([]string{"structure", "nope"}), datadist.ErrConfig)
		assert.ErrorIs(t, d.SetColumnLabels(map[string]string{"nope": "label"}), datadist.ErrConfig)
	})

	t.Run("known columns are accepted", func(t *testing.T) {
		assert.NoError(t, d.SetMetadataColumns([]string{"structure", "index"}))
		assert.NoError(t, d.SetPathColumns([]string{"image_file"}))
		assert.NoError(t, d.SetColumnLabels(map[string]string{"image_file": "images"}))
	})

	t.Run("extra files must exist", func(t *testing.T) {
		err := d.SetExtraFiles(map[string][]string{"docs": {filepath.Join(f.dir, "gone.pdf")}})
		assert.ErrorIs(t, err, datadist.ErrNotFound)
	})
}

func TestDistributeBuildsPackage(t *testing.T) {
	f := newDistFixture(t)
	d := newTestDataset(t, f)
	require.NoError(t, d.SetMetadataColumns([]string{"structure", "index"}))

	extra := writeFile(t, f.dir, "scripts/load.py", "print('hi')")
	require.NoError(t, d.AddExtraFiles([]string{extra}))

	result, err := d.Distribute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.Version)

	pkg := result.Package
	// README.md, one referenced file, three deduplicated images, the
	// rewritten manifest and one supporting file.
	assert.Equal(t, 7, pkg.Len())
	assert.True(t, pkg.Has("README.md"))
	assert.True(t, pkg.Has("reference_files/config.json"))
	assert.True(t, pkg.Has("metadata.csv"))
	assert.True(t, pkg.Has("supporting_files/load.py"))

	var imageKeys []string
	for _, key := range pkg.Keys() {
		if strings.HasPrefix(key, "image_file/") {
			imageKeys = append(imageKeys, key)
		}
	}
	require.Len(t, imageKeys, 3)

	for i, key := range imageKeys {
		entry, err := pkg.Get(key)
		require.NoError(t, err)

		// Identical per-file values collapse to a scalar; diverging values
		// keep the full ordered sequence.
		structures := []string{"Actin", "Tubulin", "Lamin"}
		assert.Equal(t, structures[i], entry.Meta["structure"])
		assert.Equal(t, []any{i * 3, i*3 + 1, i*3 + 2}, entry.Meta["index"])

		assoc, ok := entry.Meta["associates"].(map[string]string)
		require.True(t, ok)
		assert.Equal(t, key, assoc["image_file"])
	}
}

func TestDistributeWithoutAssociates(t *testing.T) {
	f := newDistFixture(t)
	d := newTestDataset(t, f)
	require.NoError(t, d.SetMetadataColumns([]string{"structure"}))

	result, err := d.Distribute(context.Background(), datadist.WithoutAssociates())
	require.NoError(t, err)

	for _, key := range result.Package.Keys() {
		entry, err := result.Package.Get(key)
		require.NoError(t, err)
		assert.NotContains(t, entry.Meta, "associates", "entry %s", key)
	}
}

func TestDistributeColumnLabels(t *testing.T) {
	f := newDistFixture(t)
	d := newTestDataset(t, f)
	require.NoError(t, d.SetColumnLabels(map[string]string{"image_file": "raw_images"}))

	result, err := d.Distribute(context.Background())
	require.NoError(t, err)

	labeled := 0
	for _, key := range result.Package.Keys() {
		assert.False(t, strings.HasPrefix(key, "image_file/"))
		if strings.HasPrefix(key, "raw_images/") {
			labeled++
		}
	}
	assert.Equal(t, 3, labeled)
}

func TestDistributeProgress(t *testing.T) {
	f := newDistFixture(t)
	d := newTestDataset(t, f)

	var last, total int
	_, err := d.Distribute(context.Background(),
		datadist.WithConstructionProgress(func(done, tot int) {
			last = done
			total = tot
		}))
	require.NoError(t, err)

	// One path column over nine rows.
	assert.Equal(t, 9, total)
	assert.Equal(t, 9, last)
}

func TestDistributeRejectsUnserializableMetadata(t *testing.T) {
	f := newDistFixture(t)

	m, err := datadist.NewManifest("image_file", "blob")
	require.NoError(t, err)
	require.NoError(t, m.AppendRow(map[string]any{"image_file": f.files[0], "blob": []int{1, 2}}))

	d, err := datadist.NewDataset(m, "bad_meta", "aics", f.readme)
	require.NoError(t, err)
	require.NoError(t, d.SetMetadataColumns([]string{"blob"}))

	_, err = d.Distribute(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, err, datadist.ErrSerialization)
}

func TestDistributeDeterministicKeys(t *testing.T) {
	f := newDistFixture(t)
	d := newTestDataset(t, f)

	first, err := d.Distribute(context.Background())
	require.NoError(t, err)
	second, err := d.Distribute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Package.Keys(), second.Package.Keys())
}

func TestDistributePush(t *testing.T) {
	f := newDistFixture(t)

	store := memorystorage.New()
	registry := repomemory.New()
	pusher, err := bundle.NewPusher(
		bundle.WithBlobStore("memory", store),
		bundle.WithRegistry(registry),
	)
	require.NoError(t, err)

	d := newTestDataset(t, f, datadist.WithPusher(pusher))
	require.NoError(t, d.SetMetadataColumns([]string{"structure", "index"}))

	result, err := d.Distribute(context.Background(),
		datadist.WithPush("s3://example-bucket/datasets", "initial release"))
	require.NoError(t, err)
	require.NotNil(t, result.Version)

	assert.Equal(t, "aics/test_dataset", result.Version.Name)
	assert.Equal(t, "initial release", result.Version.Message)
	assert.Equal(t, "s3://example-bucket/datasets", result.Version.Destination)
	assert.Equal(t, result.Package.Len(), result.Version.EntryCount)

	versions, err := registry.ListVersions(context.Background(), "aics/test_dataset")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, result.Version.TopHash, versions[0].TopHash)

	prefix := fmt.Sprintf("aics/test_dataset/%s", result.Version.TopHash)
	keys := store.Keys()
	assert.Contains(t, keys, prefix+"/manifest.json")
	assert.Contains(t, keys, prefix+"/objects/README.md")
	assert.Contains(t, keys, prefix+"/objects/metadata.csv")

	// The shipped manifest carries logical keys in place of raw paths.
	reader, err := store.Download(context.Background(), prefix+"/objects/metadata.csv")
	require.NoError(t, err)
	defer reader.Close()

	shipped, err := datadist.ReadCSV(reader)
	require.NoError(t, err)
	require.Equal(t, 9, shipped.Len())
	cell, err := shipped.Cell("image_file", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cell.(string), "image_file/"))
	assert.True(t, strings.HasSuffix(cell.(string), "_f0.tiff"))
}

func TestDistributePushRequiresPusher(t *testing.T) {
	f := newDistFixture(t)
	d := newTestDataset(t, f)

	_, err := d.Distribute(context.Background(), datadist.WithPush("s3://bucket/x", ""))
	assert.Error(t, err)
	assert.ErrorIs(t, err, datadist.ErrConfig)
}
