package search

import "context"

// Neighbor is one hit of a similarity lookup.
type Neighbor struct {
	ID         string
	Similarity float64
}

// Index answers nearest-neighbor queries over record vectors. TopK results are
// ordered by similarity descending, ties by id ascending. An empty index
// yields an empty result and no error.
type Index interface {
	TopK(ctx context.Context, vector []float32, k int, exclude []string) ([]Neighbor, error)
	Add(id string, vector []float32) error
	AddBatch(ids []string, vectors [][]float32) error
	Len() int
	Version() uint64
}
