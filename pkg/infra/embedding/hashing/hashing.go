package hashing

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
)

const DefaultDimension = 384

// embeddingService is a deterministic feature-hashing embedder. Unigrams and
// bigrams are hashed into signed buckets, so texts sharing vocabulary land
// close together. It needs no network and is used for offline indexing and
// tests.
type embeddingService struct {
	dim int
}

func NewHashingEmbeddingService(dim int) embedding.Creator {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &embeddingService{dim: dim}
}

func (s *embeddingService) Generate(ctx context.Context, text, model string) (*embedding.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, s.dim)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		s.add(vec, tok, 1)
		if i > 0 {
			s.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	embedding.Normalize(vec)

	return &embedding.Embedding{
		Value:     vec,
		CreatedAt: time.Now(),
	}, nil
}

func (s *embeddingService) add(vec []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	bucket := h % uint64(s.dim)
	if h&(1<<63) != 0 {
		weight = -weight
	}
	vec[bucket] += weight
}

// Tokenize lower-cases text and splits it on anything that is not a letter
// or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
