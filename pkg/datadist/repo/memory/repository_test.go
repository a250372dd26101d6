package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadist/dataset-distribute/pkg/datadist/bundle"
	repomemory "github.com/datadist/dataset-distribute/pkg/datadist/repo/memory"
)

func newVersion(name, topHash string, createdAt time.Time) *bundle.PackageVersion {
	return &bundle.PackageVersion{
		ID:          uuid.New(),
		Name:        name,
		TopHash:     topHash,
		Destination: "s3://example/datasets",
		EntryCount:  3,
		CreatedAt:   createdAt,
	}
}

func TestMemoryRegistry(t *testing.T) {
	registry := repomemory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("empty registry", func(t *testing.T) {
		versions, err := registry.ListVersions(ctx, "aics/unknown")
		assert.NoError(t, err)
		assert.Empty(t, versions)

		latest, err := registry.LatestVersion(ctx, "aics/unknown")
		assert.Error(t, err)
		assert.Nil(t, latest)
	})

	t.Run("record and list oldest first", func(t *testing.T) {
		first := newVersion("aics/pipeline", "hash1", now)
		second := newVersion("aics/pipeline", "hash2", now.Add(time.Minute))

		require.NoError(t, registry.RecordVersion(ctx, first))
		require.NoError(t, registry.RecordVersion(ctx, second))

		versions, err := registry.ListVersions(ctx, "aics/pipeline")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, "hash1", versions[0].TopHash)
		assert.Equal(t, "hash2", versions[1].TopHash)

		latest, err := registry.LatestVersion(ctx, "aics/pipeline")
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
	})

	t.Run("names are independent", func(t *testing.T) {
		other := newVersion("aics/other", "hash3", now)
		require.NoError(t, registry.RecordVersion(ctx, other))

		versions, err := registry.ListVersions(ctx, "aics/other")
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		latest, err := registry.LatestVersion(ctx, "aics/pipeline")
		require.NoError(t, err)

		latest.Message = "mutated"
		again, err := registry.LatestVersion(ctx, "aics/pipeline")
		require.NoError(t, err)
		assert.Empty(t, again.Message)
	})
}
