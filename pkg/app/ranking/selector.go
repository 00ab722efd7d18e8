package ranking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/httpx"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/providers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const selectorSystemPrompt = "You are an elite researcher in the field of AI. " +
	"You judge whether a paper or dataset satisfies a search request. " +
	"Answer with a single number between 0 and 1 and nothing else."

const maxAbstractChars = 2000

var (
	scorePattern = regexp.MustCompile(`[-+]?\d*\.?\d+`)
	tracer       = otel.Tracer("github.com/ya-paperswithcode/agentsearch/pkg/app/ranking")

	errNoScore = errors.New("selector answer carries no score")
)

type SelectorRankerDI struct {
	Client      providers.Client
	Config      providers.Config
	Breaker     httpx.CircuitBreaker
	Fallback    Ranker
	TopN        int
	Parallelism int
	Threshold   float64
	Timeout     time.Duration
	Logger      *logrus.Logger
}

type selectorRanker struct {
	client      providers.Client
	config      providers.Config
	breaker     httpx.CircuitBreaker
	fallback    Ranker
	topN        int
	parallelism int
	threshold   float64
	timeout     time.Duration
	logger      *logrus.Logger
}

// NewSelectorRanker grades the best TopN candidates of the fallback order with
// a chat model. Candidates graded above Threshold come first, ungraded ones
// keep the fallback order behind them and rejected ones go last. Any failed
// grading call, or an open breaker, returns the fallback ranking unchanged.
func NewSelectorRanker(di SelectorRankerDI) Ranker {
	if di.Config.SystemPrompt == "" {
		di.Config.SystemPrompt = selectorSystemPrompt
	}
	if di.TopN <= 0 {
		di.TopN = 30
	}
	if di.Parallelism <= 0 {
		di.Parallelism = 8
	}
	if di.Threshold <= 0 {
		di.Threshold = 0.5
	}
	return &selectorRanker{
		client:      di.Client,
		config:      di.Config,
		breaker:     di.Breaker,
		fallback:    di.Fallback,
		topN:        di.TopN,
		parallelism: di.Parallelism,
		threshold:   di.Threshold,
		timeout:     di.Timeout,
		logger:      di.Logger,
	}
}

func (s *selectorRanker) Strategy() string { return StrategySelector }

func (s *selectorRanker) Rank(ctx context.Context, in Input) []search.ScoredResult {
	limit := in.Limit
	in.Limit = 0
	base := s.fallback.Rank(ctx, in)
	if len(base) == 0 || strings.TrimSpace(in.Query) == "" {
		return truncate(base, limit)
	}

	ctx, span := tracer.Start(ctx, "ranking.Select")
	defer span.End()

	n := min(s.topN, len(base))
	span.SetAttributes(attribute.Int("graded", n), attribute.String("provider.model", s.config.Model))

	scores, err := s.grade(ctx, in.Query, base[:n])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "selector failed")
		s.logger.WithError(err).WithField("candidates", n).Warn("selector failed, keeping fallback ranking")
		return truncate(base, limit)
	}

	type graded struct {
		result search.ScoredResult
		tier   int
		order  int
	}
	all := make([]graded, len(base))
	for i, r := range base {
		g := graded{result: r, tier: 1, order: i}
		if i < n {
			r.Score = scores[i]
			g.result = r
			if scores[i] > s.threshold {
				g.tier = 0
			} else {
				g.tier = 2
			}
		}
		all[i] = g
	}
	slices.SortStableFunc(all, func(a, b graded) int {
		if a.tier != b.tier {
			return a.tier - b.tier
		}
		if a.tier == 1 {
			return a.order - b.order
		}
		if c := compareDesc(a.result.Score, b.result.Score, "", ""); c != 0 {
			return c
		}
		return a.order - b.order
	})

	out := make([]search.ScoredResult, len(all))
	for i, g := range all {
		out[i] = g.result
	}
	out = truncate(out, limit)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// grade asks for one score per candidate. The first failure cancels the rest.
func (s *selectorRanker) grade(ctx context.Context, query string, results []search.ScoredResult) ([]float64, error) {
	scores := make([]float64, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, r := range results {
		g.Go(func() error {
			score, err := s.ask(gctx, selectPrompt(query, r))
			if err != nil {
				return fmt.Errorf("grade %s: %w", r.ID, err)
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (s *selectorRanker) ask(ctx context.Context, prompt string) (float64, error) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cfg := s.config
	var resp *providers.CompletionResponse
	call := func() error {
		var err error
		resp, err = s.client.Ask(callCtx, &cfg, prompt)
		return err
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return 0, err
	}
	return ParseScore(resp.Response)
}

func selectPrompt(query string, r search.ScoredResult) string {
	title, abstract := r.ID, ""
	if r.Record != nil {
		if r.Record.Title != "" {
			title = r.Record.Title
		}
		abstract = r.Record.Text
	}
	if runes := []rune(abstract); len(runes) > maxAbstractChars {
		abstract = string(runes[:maxAbstractChars])
	}
	return fmt.Sprintf(
		"User query: %s\n\nTitle: %s\nAbstract: %s\n\n"+
			"How well does this work satisfy the user query? Reply with a number between 0 and 1.",
		query, title, abstract)
}

// ParseScore reads the first number of a selector answer and clamps it to
// [0, 1].
func ParseScore(text string) (float64, error) {
	m := scorePattern.FindString(text)
	if m == "" {
		return 0, errNoScore
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errNoScore, m)
	}
	return min(max(v, 0), 1), nil
}

func truncate(results []search.ScoredResult, limit int) []search.ScoredResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
