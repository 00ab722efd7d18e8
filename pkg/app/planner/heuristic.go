package planner

import (
	"context"
	"regexp"
	"strings"

	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
)

type rewording struct {
	pattern *regexp.Regexp
	with    string
}

func wordPattern(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + phrase + `\b`)
}

var connectorRewordings = []rewording{
	{wordPattern("for"), "in"},
	{wordPattern("using"), "with"},
	{wordPattern("with"), "using"},
}

type synonym struct {
	short, long *regexp.Regexp
	shortText   string
	longText    string
}

func newSynonym(short, longPattern, longText string) synonym {
	return synonym{
		short:     wordPattern(short),
		long:      wordPattern(longPattern),
		shortText: short,
		longText:  longText,
	}
}

// Acronyms common in paper titles and their expansions. Each entry rewrites in
// both directions.
var synonyms = []synonym{
	newSynonym("gnn", `graph neural networks?`, "graph neural network"),
	newSynonym("gcn", `graph convolutional networks?`, "graph convolutional network"),
	newSynonym("cnn", `convolutional neural networks?`, "convolutional neural network"),
	newSynonym("rnn", `recurrent neural networks?`, "recurrent neural network"),
	newSynonym("lstm", `long short-term memory`, "long short-term memory"),
	newSynonym("gan", `generative adversarial networks?`, "generative adversarial network"),
	newSynonym("vae", `variational autoencoders?`, "variational autoencoder"),
	newSynonym("vit", `vision transformers?`, "vision transformer"),
	newSynonym("llm", `large language models?`, "large language model"),
	newSynonym("nlp", `natural language processing`, "natural language processing"),
	newSynonym("rl", `reinforcement learning`, "reinforcement learning"),
	newSynonym("nerf", `neural radiance fields?`, "neural radiance field"),
	newSynonym("asr", `automatic speech recognition`, "automatic speech recognition"),
	newSynonym("ner", `named entity recognition`, "named entity recognition"),
	newSynonym("qa", `question answering`, "question answering"),
	newSynonym("mt", `machine translation`, "machine translation"),
	newSynonym("ssl", `self-supervised learning`, "self-supervised learning"),
}

var (
	decomposeSplitter = regexp.MustCompile(`(?i)\s*,\s*|\s+(?:and|vs\.?|versus)\s+`)
	fillerWords       = map[string]struct{}{
		"paper": {}, "papers": {}, "article": {}, "articles": {},
		"dataset": {}, "datasets": {}, "find": {}, "search": {},
		"show": {}, "me": {}, "list": {}, "about": {}, "regarding": {},
		"related": {}, "recent": {}, "latest": {}, "some": {}, "please": {},
	}
)

type heuristicPlanner struct{}

// NewHeuristicPlanner returns the rule based planner. It never calls out and
// is deterministic.
func NewHeuristicPlanner() Planner {
	return heuristicPlanner{}
}

func (heuristicPlanner) Plan(_ context.Context, query string, maxVariants int) ([]search.Query, error) {
	original := Normalize(query)
	if original == "" {
		return nil, search.InvalidInputf("query is empty")
	}
	set := newVariantSet(maxVariants)
	set.add(original)
	for _, v := range heuristicVariants(original) {
		if !set.add(v) {
			break
		}
	}
	return set.queries(), nil
}

// heuristicVariants lists candidate rewrites of q in priority order. Entries
// may repeat q or each other; the caller deduplicates.
func heuristicVariants(q string) []string {
	var out []string

	stripped := stripFiller(q)
	if stripped != "" {
		out = append(out, stripped)
	} else {
		stripped = q
	}

	for _, syn := range synonyms {
		switch {
		case syn.short.MatchString(stripped):
			out = append(out, syn.short.ReplaceAllLiteralString(stripped, syn.longText))
		case syn.long.MatchString(stripped):
			out = append(out, syn.long.ReplaceAllLiteralString(stripped, syn.shortText))
		}
	}

	for _, r := range connectorRewordings {
		if r.pattern.MatchString(stripped) {
			out = append(out, r.pattern.ReplaceAllLiteralString(stripped, r.with))
		}
	}

	if parts := decomposeSplitter.Split(stripped, -1); len(parts) > 1 {
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func stripFiller(q string) string {
	words := strings.Fields(q)
	kept := words[:0:0]
	for _, w := range words {
		if _, ok := fillerWords[strings.ToLower(strings.Trim(w, ".,;:!?"))]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
