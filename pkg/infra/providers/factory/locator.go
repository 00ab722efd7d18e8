package factory

import (
	"fmt"

	"github.com/ya-paperswithcode/agentsearch/pkg/infra/providers"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/providers/anthropic"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/providers/gemini"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/providers/openai"
)

const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

type ProviderLocator interface {
	Get(provider string) (providers.Client, error)
}

type providerLocator struct{}

func NewProviderLocator() ProviderLocator {
	return &providerLocator{}
}

func (f *providerLocator) Get(provider string) (providers.Client, error) {
	switch provider {
	case ProviderOpenAI:
		return openai.NewOpenaiClient(), nil
	case ProviderGemini, "google":
		return gemini.NewGeminiClient(), nil
	case ProviderAnthropic:
		return anthropic.NewAnthropicClient(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
