package embedding

import (
	"time"

	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
)

// Snapshot is a bulk export of every vector of one kind. IDs and Vectors are
// parallel slices.
type Snapshot struct {
	Kind         record.Kind
	ModelVersion string
	Dimension    int
	CreatedAt    time.Time
	IDs          []string
	Vectors      [][]float32
}

func (s *Snapshot) Len() int {
	return len(s.IDs)
}
