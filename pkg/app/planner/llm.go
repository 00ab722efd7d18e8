package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/httpx"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/providers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const crawlerSystemPrompt = "You are a research assistant helping to search for academic papers. " +
	"Your task is to expand and refine search queries to find relevant papers. " +
	"Provide comprehensive search terms and related concepts."

var (
	listMarker = regexp.MustCompile(`^\s*(?:\d+\s*[.)\]:-]|[-*•+])\s*`)
	tracer     = otel.Tracer("github.com/ya-paperswithcode/agentsearch/pkg/app/planner")
)

type LLMPlannerDI struct {
	Client   providers.Client
	Config   providers.Config
	Breaker  httpx.CircuitBreaker
	Fallback Planner
	Timeout  time.Duration
	Logger   *logrus.Logger
}

type llmPlanner struct {
	client   providers.Client
	config   providers.Config
	breaker  httpx.CircuitBreaker
	fallback Planner
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewLLMPlanner asks a chat model for alternative phrasings. Any provider
// failure, empty answer or open breaker falls back to the heuristic planner.
func NewLLMPlanner(di LLMPlannerDI) Planner {
	if di.Fallback == nil {
		di.Fallback = NewHeuristicPlanner()
	}
	if di.Config.SystemPrompt == "" {
		di.Config.SystemPrompt = crawlerSystemPrompt
	}
	return &llmPlanner{
		client:   di.Client,
		config:   di.Config,
		breaker:  di.Breaker,
		fallback: di.Fallback,
		timeout:  di.Timeout,
		logger:   di.Logger,
	}
}

func (p *llmPlanner) Plan(ctx context.Context, query string, maxVariants int) ([]search.Query, error) {
	original := Normalize(query)
	if original == "" {
		return nil, search.InvalidInputf("query is empty")
	}
	if maxVariants <= 1 {
		return []search.Query{{Text: original}}, nil
	}

	ctx, span := tracer.Start(ctx, "planner.Plan")
	defer span.End()
	span.SetAttributes(attribute.Int("max_variants", maxVariants), attribute.String("provider.model", p.config.Model))

	lines, err := p.ask(ctx, original, maxVariants-1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm planner failed")
		p.logger.WithError(err).Warn("llm planner failed, using heuristic variants")
		return p.fallback.Plan(ctx, original, maxVariants)
	}

	set := newVariantSet(maxVariants)
	set.add(original)
	for _, line := range lines {
		if !set.add(line) {
			break
		}
	}
	if len(set.queries()) == 1 {
		p.logger.WithField("query", original).Debug("llm planner returned no usable variants")
		return p.fallback.Plan(ctx, original, maxVariants)
	}
	span.SetAttributes(attribute.Int("variants", len(set.queries())))
	return set.queries(), nil
}

func (p *llmPlanner) ask(ctx context.Context, query string, n int) ([]string, error) {
	prompt := fmt.Sprintf(
		"Generate up to %d alternative search queries for finding academic work about: %q\n"+
			"Cover synonyms, sub-topics and related methods. Return one query per line and nothing else.",
		n, query)

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cfg := p.config
	var resp *providers.CompletionResponse
	call := func() error {
		var err error
		resp, err = p.client.Ask(callCtx, &cfg, prompt)
		return err
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return ParseVariants(resp.Response), nil
}

// ParseVariants extracts one query per line, dropping list markers, quotes and
// header lines.
func ParseVariants(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "\"'`“”")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		out = append(out, line)
	}
	return out
}
