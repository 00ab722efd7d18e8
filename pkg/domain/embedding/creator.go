package embedding

import (
	"context"
)

// Creator turns text into a vector using a remote or local model.
type Creator interface {
	Generate(ctx context.Context, text, model string) (*Embedding, error)
}
