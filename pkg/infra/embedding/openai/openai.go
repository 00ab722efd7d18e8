package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastjson"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultRequestTimeout = 30 * time.Second
)

// HTTPClient is the subset of *fasthttp.Client the service needs.
type HTTPClient interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

type Config struct {
	APIKey    string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

type embeddingService struct {
	client  HTTPClient
	logger  *logrus.Logger
	cfg     Config
	parsers fastjson.ParserPool
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// NewOpenAIEmbeddingService talks to any OpenAI-compatible /embeddings endpoint.
func NewOpenAIEmbeddingService(client HTTPClient, logger *logrus.Logger, cfg Config) embedding.Creator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	return &embeddingService{
		client: client,
		logger: logger,
		cfg:    cfg,
	}
}

func (s *embeddingService) Generate(ctx context.Context, text, model string) (*embedding.Embedding, error) {
	if s.cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embeddings: API key is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pBytes, err := json.Marshal(embeddingRequest{
		Model:      model,
		Input:      text,
		Dimensions: s.cfg.Dimension,
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to marshal embedding request payload")
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimRight(s.cfg.BaseURL, "/") + "/embeddings")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.cfg.APIKey))
	req.SetBody(pBytes)

	if err := s.doRequestWithContext(ctx, req, resp); err != nil {
		return nil, err
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		s.logger.WithField("response", string(resp.Body())).Error("non-OK response from embeddings API")
		return nil, fmt.Errorf("%w: %d", embedding.ErrProviderNonOKResponse, resp.StatusCode())
	}

	vec, err := s.parse(resp.Body())
	if err != nil {
		s.logger.WithError(err).Error("failed to decode embeddings response")
		return nil, err
	}
	embedding.Normalize(vec)

	return &embedding.Embedding{
		Value:     vec,
		CreatedAt: time.Now(),
	}, nil
}

func (s *embeddingService) parse(body []byte) ([]float32, error) {
	p := s.parsers.Get()
	defer s.parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, err
	}
	data := v.GetArray("data")
	if len(data) == 0 {
		return nil, embedding.ErrEmptyEmbedding
	}
	values := data[0].GetArray("embedding")
	if len(values) == 0 {
		return nil, embedding.ErrEmptyEmbedding
	}
	vec := make([]float32, len(values))
	for i, x := range values {
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("embedding value %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	if s.cfg.Dimension > 0 && len(vec) != s.cfg.Dimension {
		return nil, fmt.Errorf("got %d dimensions, want %d: %w", len(vec), s.cfg.Dimension, embedding.ErrDimensionMismatch)
	}
	return vec, nil
}

func (s *embeddingService) doRequestWithContext(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.client.DoTimeout(req, resp, s.cfg.Timeout)
	}()

	select {
	case <-ctx.Done():
		// the request and response stay acquired until DoTimeout returns
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			s.logger.WithError(err).Error("error performing HTTP request for embeddings")
		}
		return err
	}
}
