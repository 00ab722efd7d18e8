package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainEmbedding "github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/embedding/hashing"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/index"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/logger"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/records"
)

// selectiveCreator fails for texts containing a marker.
type selectiveCreator struct {
	next   domainEmbedding.Creator
	marker string
	err    error
}

func (c *selectiveCreator) Generate(ctx context.Context, text, model string) (*domainEmbedding.Embedding, error) {
	if c.marker != "" && strings.Contains(text, c.marker) {
		return nil, c.err
	}
	return c.next.Generate(ctx, text, model)
}

func paper(id, title string) *record.Record {
	return &record.Record{ID: id, Kind: record.KindPaper, Title: title, Text: "abstract of " + title}
}

func newTestIndexer(t *testing.T, creator domainEmbedding.Creator, recs ...*record.Record) (Indexer, Store, *index.Flat) {
	t.Helper()
	store := NewStore(StoreDI{
		Kind:         record.KindPaper,
		Creator:      creator,
		ModelVersion: testVersion,
		Timeout:      time.Second,
		Logger:       logger.NewDiscardLogger(),
	})
	idx := index.NewFlat(0)
	ix := NewIndexer(IndexerDI{
		Kind:        record.KindPaper,
		Records:     records.NewMemoryRepository(recs...),
		Store:       store,
		Index:       idx,
		Concurrency: 4,
		BatchSize:   2,
		Logger:      logger.NewDiscardLogger(),
	})
	return ix, store, idx
}

func TestIndexer_IndexRecords(t *testing.T) {
	creator := &selectiveCreator{
		next:   hashing.NewHashingEmbeddingService(32),
		marker: "broken",
		err:    errors.New("bad input"),
	}
	ix, store, idx := newTestIndexer(t, creator,
		paper("p1", "graph neural networks"),
		paper("p2", "broken tokenizer"),
		paper("p3", "vision transformers"),
	)

	report, err := ix.IndexRecords(context.Background(), []string{"p1", "p2", "p3", "p1", "ghost", ""})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Requested)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, []string{"ghost"}, report.Missing)
	assert.Equal(t, []string{"p2"}, report.Failed)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 2, store.Len())

	vec, err := store.GetVector(context.Background(), "p1")
	require.NoError(t, err)
	hits, err := idx.TopK(context.Background(), vec, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
}

func TestIndexer_UpstreamUnavailableAborts(t *testing.T) {
	creator := &selectiveCreator{
		next:   hashing.NewHashingEmbeddingService(8),
		marker: "abstract",
		err:    fmt.Errorf("breaker open: %w", search.ErrUpstreamUnavailable),
	}
	ix, _, idx := newTestIndexer(t, creator, paper("p1", "a"))

	_, err := ix.IndexRecords(context.Background(), []string{"p1"})
	assert.ErrorIs(t, err, search.ErrUpstreamUnavailable)
	assert.Equal(t, 0, idx.Len())
}

func TestIndexer_Rebuild(t *testing.T) {
	ix, _, idx := newTestIndexer(t, hashing.NewHashingEmbeddingService(16),
		paper("p1", "one"), paper("p2", "two"), paper("p3", "three"))

	report, err := ix.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Requested)
	assert.Equal(t, 3, report.Indexed)
	assert.Equal(t, 3, idx.Len())
}

func TestIndexer_Empty(t *testing.T) {
	ix, _, _ := newTestIndexer(t, hashing.NewHashingEmbeddingService(4))
	report, err := ix.IndexRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
}
