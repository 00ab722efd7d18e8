package index

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
)

// cancellation is checked once per this many scanned rows.
const cancelCheckInterval = 1024

type snapshot struct {
	ids     []string
	vectors [][]float32
	pos     map[string]uint32
	version uint64
}

// Flat is an exact cosine-similarity index. Readers load an immutable
// snapshot through an atomic pointer and never block; writers are serialized
// and publish a new snapshot. Rows are only ever appended, so a reader holding
// an older snapshot never observes a partially written row.
type Flat struct {
	dim  int
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

var _ search.Index = (*Flat)(nil)

// NewFlat creates an empty index. A dimension of 0 adopts the dimension of the
// first inserted vector.
func NewFlat(dim int) *Flat {
	f := &Flat{dim: dim}
	f.snap.Store(&snapshot{pos: map[string]uint32{}})
	return f
}

func (f *Flat) Len() int {
	return len(f.snap.Load().ids)
}

// Version increases on every mutation.
func (f *Flat) Version() uint64 {
	return f.snap.Load().version
}

func (f *Flat) Dimension() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dim
}

// Add inserts or replaces the vector of id.
func (f *Flat) Add(id string, vector []float32) error {
	return f.AddBatch([]string{id}, [][]float32{vector})
}

// AddBatch inserts or replaces many vectors and publishes a single snapshot.
func (f *Flat) AddBatch(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("index: %d ids for %d vectors", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dim == 0 {
		f.dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("index: vector %s has %d dimensions, want %d: %w", ids[i], len(v), f.dim, embedding.ErrDimensionMismatch)
		}
	}

	cur := f.snap.Load()
	next := &snapshot{
		ids:     cur.ids,
		vectors: cur.vectors,
		pos:     make(map[string]uint32, len(cur.pos)+len(ids)),
		version: cur.version + 1,
	}
	for k, v := range cur.pos {
		next.pos[k] = v
	}

	replaced := false
	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		embedding.Normalize(vec)

		if p, ok := next.pos[id]; ok {
			if !replaced {
				// replacing a row must not touch the backing array readers share
				next.vectors = append([][]float32(nil), next.vectors...)
				replaced = true
			}
			next.vectors[p] = vec
			continue
		}
		next.pos[id] = uint32(len(next.ids))
		next.ids = append(next.ids, id)
		next.vectors = append(next.vectors, vec)
	}

	f.snap.Store(next)
	return nil
}

// TopK returns the k nearest rows to vector by cosine similarity, skipping
// ids listed in exclude.
func (f *Flat) TopK(ctx context.Context, vector []float32, k int, exclude []string) ([]search.Neighbor, error) {
	snap := f.snap.Load()
	if k <= 0 || len(snap.ids) == 0 {
		return []search.Neighbor{}, nil
	}
	if len(vector) != len(snap.vectors[0]) {
		return nil, fmt.Errorf("index: query has %d dimensions, want %d: %w", len(vector), len(snap.vectors[0]), embedding.ErrDimensionMismatch)
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	embedding.Normalize(query)

	excluded := roaring.New()
	for _, id := range exclude {
		if p, ok := snap.pos[id]; ok {
			excluded.Add(p)
		}
	}

	h := make(neighborHeap, 0, k)
	for i, row := range snap.vectors {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if excluded.Contains(uint32(i)) {
			continue
		}
		n := search.Neighbor{ID: snap.ids[i], Similarity: dot(query, row)}
		if len(h) < k {
			heap.Push(&h, n)
			continue
		}
		if worse(h[0], n) {
			h[0] = n
			heap.Fix(&h, 0)
		}
	}

	out := make([]search.Neighbor, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(search.Neighbor)
	}
	return out, nil
}

// Vector returns a copy of the stored unit vector for id.
func (f *Flat) Vector(id string) ([]float32, bool) {
	snap := f.snap.Load()
	p, ok := snap.pos[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(snap.vectors[p]))
	copy(out, snap.vectors[p])
	return out, true
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// worse orders neighbors so that the heap root is the weakest kept hit:
// lower similarity first, and on ties the larger id.
func worse(a, b search.Neighbor) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity < b.Similarity
	}
	return a.ID > b.ID
}

type neighborHeap []search.Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)        { *h = append(*h, x.(search.Neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
