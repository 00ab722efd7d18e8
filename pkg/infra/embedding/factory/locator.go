package factory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/embedding/genai"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/embedding/hashing"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/embedding/openai"
)

const (
	HashingProvider = "hashing"
	OpenAIProvider  = "openai"
	GenAIProvider   = "genai"
)

type EmbeddingServiceLocator struct {
	logger     *logrus.Logger
	httpClient *fasthttp.Client
	cfg        config.EmbeddingConfig
}

func NewServiceLocator(logger *logrus.Logger, httpClient *fasthttp.Client, cfg config.EmbeddingConfig) *EmbeddingServiceLocator {
	return &EmbeddingServiceLocator{
		logger:     logger,
		httpClient: httpClient,
		cfg:        cfg,
	}
}

func (l *EmbeddingServiceLocator) GetService(provider string) (embedding.Creator, error) {
	switch provider {
	case HashingProvider:
		return hashing.NewHashingEmbeddingService(l.cfg.Dimension), nil
	case OpenAIProvider:
		return openai.NewOpenAIEmbeddingService(l.httpClient, l.logger, openai.Config{
			APIKey:    l.cfg.APIKey,
			BaseURL:   l.cfg.BaseURL,
			Dimension: l.cfg.Dimension,
			Timeout:   l.cfg.Timeout,
		}), nil
	case GenAIProvider:
		return genai.NewGenAIEmbeddingService(l.cfg.APIKey, l.logger), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
