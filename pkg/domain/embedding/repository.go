package embedding

import (
	"context"

	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
)

// Repository persists record vectors outside the process so incremental
// inserts survive restarts.
type Repository interface {
	Store(ctx context.Context, kind record.Kind, targetID string, embeddingData *Embedding) error
	GetByTargetID(ctx context.Context, kind record.Kind, targetID string) (*Embedding, error)
}
