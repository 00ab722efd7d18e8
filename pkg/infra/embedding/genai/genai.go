package genai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"google.golang.org/genai"
)

const semanticSimilarityTask = "SEMANTIC_SIMILARITY"

type embeddingService struct {
	apiKey string
	logger *logrus.Logger

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGenAIEmbeddingService embeds text with the Gemini embedding models. The
// underlying client is created lazily on first use.
func NewGenAIEmbeddingService(apiKey string, logger *logrus.Logger) embedding.Creator {
	return &embeddingService{
		apiKey: apiKey,
		logger: logger,
	}
}

func (s *embeddingService) getClient(ctx context.Context) (*genai.Client, error) {
	s.once.Do(func() {
		s.client, s.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  s.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return s.client, s.clientErr
}

func (s *embeddingService) Generate(ctx context.Context, text, model string) (*embedding.Embedding, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("genai embeddings: API key is required")
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("genai embeddings: create client: %w", err)
	}

	result, err := client.Models.EmbedContent(
		ctx,
		model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: semanticSimilarityTask},
	)
	if err != nil {
		s.logger.WithError(err).Error("genai embed content request failed")
		return nil, fmt.Errorf("%w: %v", embedding.ErrProviderNonOKResponse, err)
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, embedding.ErrEmptyEmbedding
	}

	vec := make([]float32, len(result.Embeddings[0].Values))
	copy(vec, result.Embeddings[0].Values)
	embedding.Normalize(vec)

	return &embedding.Embedding{
		Value:     vec,
		CreatedAt: time.Now(),
	}, nil
}
