package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ya-paperswithcode/agentsearch/pkg/infra/providers"
	"google.golang.org/genai"
)

const defaultModel = "gemini-1.5-flash"

type client struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiClient creates SDK clients lazily, one per API key.
func NewGeminiClient() providers.Client {
	return &client{clients: map[string]*genai.Client{}}
}

func (c *client) sdkClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cli, ok := c.clients[apiKey]; ok {
		return cli, nil
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.clients[apiKey] = cli
	return cli, nil
}

func (c *client) Ask(
	ctx context.Context,
	config *providers.Config,
	prompt string,
) (*providers.CompletionResponse, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	genaiClient, err := c.sdkClient(ctx, config.APIKey)
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}

	var parts []*genai.Part
	if config.SystemPrompt != "" {
		parts = append(parts, &genai.Part{Text: config.SystemPrompt})
	}
	if len(config.Instructions) > 0 {
		parts = append(parts, &genai.Part{Text: providers.FormatInstructions(config.Instructions)})
	}

	genCfg := &genai.GenerateContentConfig{}
	if len(parts) > 0 {
		genCfg.SystemInstruction = &genai.Content{Parts: parts}
	}
	if config.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(config.MaxTokens)
	}
	if config.Temperature > 0 {
		t := float32(config.Temperature)
		genCfg.Temperature = &t
	}

	result, err := genaiClient.Models.GenerateContent(ctx, model, genai.Text(prompt), genCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	responseText := strings.TrimSpace(result.Text())
	if responseText == "" {
		return nil, fmt.Errorf("no completions returned")
	}

	resp := &providers.CompletionResponse{
		ID:       fmt.Sprintf("gemini-%d", time.Now().UnixNano()),
		Model:    model,
		Response: responseText,
	}
	if result.UsageMetadata != nil {
		resp.Usage = providers.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return resp, nil
}
