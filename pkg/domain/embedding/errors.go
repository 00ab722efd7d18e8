package embedding

import "errors"

var (
	ErrNotFound              = errors.New("embedding not found")
	ErrModelMismatch         = errors.New("embedding model version mismatch")
	ErrProviderNonOKResponse = errors.New("embedding provider returned non-OK response")
	ErrEmptyEmbedding        = errors.New("empty embedding returned by provider")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
)
