package snapshot

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/logger"
)

func TestFileStore_SaveLoad(t *testing.T) {
	store := NewFileStore(t.TempDir(), logger.NewDiscardLogger())
	snap := &embedding.Snapshot{
		Kind:         record.KindDataset,
		ModelVersion: "hashing/feature-hashing@v1",
		Dimension:    3,
		CreatedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		IDs:          []string{"cora", "imagenet"},
		Vectors:      [][]float32{{1, 0, 0}, {0, 0.6, 0.8}},
	}

	path, err := store.Save(snap)
	require.NoError(t, err)
	assert.Equal(t, store.Path(record.KindDataset), path)

	got, err := store.Load(record.KindDataset)
	require.NoError(t, err)
	assert.Equal(t, snap.IDs, got.IDs)
	assert.Equal(t, snap.Vectors, got.Vectors)
	assert.Equal(t, snap.ModelVersion, got.ModelVersion)
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
}

func TestFileStore_Missing(t *testing.T) {
	store := NewFileStore(t.TempDir(), logger.NewDiscardLogger())
	_, err := store.Load(record.KindPaper)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileStore_Corrupt(t *testing.T) {
	store := NewFileStore(t.TempDir(), logger.NewDiscardLogger())
	require.NoError(t, os.WriteFile(store.Path(record.KindPaper), []byte("not zstd"), 0o600))
	_, err := store.Load(record.KindPaper)
	assert.Error(t, err)
}
