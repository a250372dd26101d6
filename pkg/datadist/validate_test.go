package datadist_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadist/dataset-distribute/pkg/datadist"
)

func TestValidateNilManifest(t *testing.T) {
	vds, err := datadist.Validate(nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, datadist.ErrConfig)
	assert.Nil(t, vds)
}

func TestValidateWithInferredSchema(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.tiff", "a")
	b := writeFile(t, dir, "b.tiff", "b")

	m := buildManifest(t,
		[]string{"fov_path", "structure"},
		[]map[string]any{
			{"fov_path": a, "structure": "Actin"},
			{"fov_path": b, "structure": "Tubulin"},
		})

	vds, err := datadist.Validate(m)
	require.NoError(t, err)
	assert.Equal(t, 0, vds.Dropped)
	assert.Equal(t, []string{"fov_path"}, vds.Schema.PathColumns())

	// The caller's manifest is untouched; the working copy carries the casts.
	orig, _ := m.Cell("fov_path", 0)
	assert.Equal(t, a, orig)
	cast, _ := vds.Data.Cell("fov_path", 0)
	assert.Equal(t, datadist.Path(a), cast)
}

func TestValidateFailFastPropagatesFirstColumn(t *testing.T) {
	m := buildManifest(t,
		[]string{"alpha", "beta"},
		[]map[string]any{
			{"alpha": "bad", "beta": "also bad"},
		})

	intDef, err := datadist.NewFeatureDefinition(datadist.KindInt, datadist.WithCastValues())
	require.NoError(t, err)

	vds, err := datadist.Validate(m,
		datadist.WithSchema(map[string]*datadist.FeatureDefinition{
			"alpha": intDef,
			"beta":  intDef,
		}),
		datadist.WithWorkers(2))
	require.Error(t, err)
	assert.Nil(t, vds)

	// Both columns fail; the error surfaced is the first in column order.
	var colErr *datadist.ColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "alpha", colErr.Column)
	assert.ErrorIs(t, err, datadist.ErrValue)
}

func TestValidateDropOnErrorRemovesRowUnion(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.tiff", "ok")

	// Row 1 fails the path column, row 2 fails the int column; both go.
	m := buildManifest(t,
		[]string{"fov_path", "count"},
		[]map[string]any{
			{"fov_path": ok, "count": 1},
			{"fov_path": "/no/such/file.tiff", "count": 2},
			{"fov_path": ok, "count": "not a number"},
		})

	pathDef, err := datadist.NewFeatureDefinition(datadist.KindPath)
	require.NoError(t, err)
	intDef, err := datadist.NewFeatureDefinition(datadist.KindInt, datadist.WithCastValues())
	require.NoError(t, err)

	vds, err := datadist.Validate(m,
		datadist.WithSchema(map[string]*datadist.FeatureDefinition{
			"fov_path": pathDef,
			"count":    intDef,
		}),
		datadist.WithDropOnError())
	require.NoError(t, err)

	assert.Equal(t, 2, vds.Dropped)
	assert.Equal(t, 1, vds.Data.Len())
	count, _ := vds.Data.Cell("count", 0)
	assert.Equal(t, 1, count)
}

func TestValidateAllRowsErroredLeavesEmptyManifest(t *testing.T) {
	m := buildManifest(t,
		[]string{"fov_path"},
		[]map[string]any{
			{"fov_path": "/no/such/1.png"},
			{"fov_path": "/no/such/2.png"},
		})

	pathDef, err := datadist.NewFeatureDefinition(datadist.KindPath)
	require.NoError(t, err)

	vds, err := datadist.Validate(m,
		datadist.WithSchema(map[string]*datadist.FeatureDefinition{"fov_path": pathDef}),
		datadist.WithDropOnError())
	require.NoError(t, err)

	assert.Equal(t, 2, vds.Dropped)
	assert.Equal(t, 0, vds.Data.Len())
	require.NotNil(t, vds.Schema.Feature("fov_path"))
	assert.Len(t, vds.Schema.Feature("fov_path").Errors(), 2)
}

func TestValidateUnknownSchemaColumn(t *testing.T) {
	m := buildManifest(t, []string{"a"}, []map[string]any{{"a": 1}})

	intDef, err := datadist.NewFeatureDefinition(datadist.KindInt)
	require.NoError(t, err)

	_, err = datadist.Validate(m,
		datadist.WithSchema(map[string]*datadist.FeatureDefinition{"missing": intDef}))
	assert.Error(t, err)
	assert.ErrorIs(t, err, datadist.ErrConfig)
}

func TestValidatePartialSchemaLeavesColumnsUnvalidated(t *testing.T) {
	m := buildManifest(t,
		[]string{"a", "b"},
		[]map[string]any{{"a": 1, "b": "x"}})

	intDef, err := datadist.NewFeatureDefinition(datadist.KindInt)
	require.NoError(t, err)

	vds, err := datadist.Validate(m,
		datadist.WithSchema(map[string]*datadist.FeatureDefinition{"a": intDef}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, vds.Schema.Validated())
	assert.Equal(t, []string{"b"}, vds.Schema.Unvalidated())
}

func TestValidateProgressReachesTotal(t *testing.T) {
	m := buildManifest(t,
		[]string{"a", "b"},
		[]map[string]any{
			{"a": 1, "b": "x"},
			{"a": 2, "b": "y"},
			{"a": 3, "b": "z"},
		})

	var mu sync.Mutex
	calls := 0
	maxDone := 0
	var total int

	vds, err := datadist.Validate(m,
		datadist.WithWorkers(2),
		datadist.WithProgress(func(done, tot int) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if done > maxDone {
				maxDone = done
			}
			total = tot
		}))
	require.NoError(t, err)
	require.NotNil(t, vds)

	// Two validators over three rows each.
	assert.Equal(t, 6, total)
	assert.Equal(t, 6, calls)
	assert.Equal(t, 6, maxDone)
}
