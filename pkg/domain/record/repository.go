package record

import "context"

// Repository is the narrow lookup surface the search pipeline needs from the
// relational record store. Missing ids yield a domain not-found error.
type Repository interface {
	GetRecord(ctx context.Context, kind Kind, id string) (*Record, error)
	GetEmbeddingText(ctx context.Context, kind Kind, id string) (string, error)
	ListIDs(ctx context.Context, kind Kind) ([]string, error)
}
