package record

import (
	"fmt"
	"strings"
)

// Kind partitions the corpus. Every kind has its own embedding store and index.
type Kind string

const (
	KindPaper   Kind = "paper"
	KindDataset Kind = "dataset"
)

var Kinds = []Kind{KindPaper, KindDataset}

// ParseKind accepts singular and plural spellings.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paper", "papers":
		return KindPaper, nil
	case "dataset", "datasets":
		return KindDataset, nil
	default:
		return "", fmt.Errorf("unknown record kind %q", raw)
	}
}

func (k Kind) Plural() string {
	return string(k) + "s"
}

// Record is a searchable paper or dataset. Records are immutable once embedded.
type Record struct {
	ID         string              `json:"id"`
	Kind       Kind                `json:"kind"`
	Title      string              `json:"title"`
	Text       string              `json:"text"`
	URL        string              `json:"url,omitempty"`
	Metadata   map[string][]string `json:"metadata,omitempty"`
	Popularity int                 `json:"popularity"`
}

// EmbeddingText is the text that gets embedded for the record. Papers embed
// their title, abstract and tasks; datasets embed name, full name,
// description, modalities and languages.
func (r *Record) EmbeddingText() string {
	parts := []string{r.Title}
	switch r.Kind {
	case KindPaper:
		parts = append(parts, r.Text)
		parts = append(parts, r.Metadata[MetaTask]...)
	case KindDataset:
		parts = append(parts, r.Metadata[MetaFullName]...)
		parts = append(parts, r.Text)
		parts = append(parts, r.Metadata[MetaModality]...)
		parts = append(parts, r.Metadata[MetaLanguage]...)
	default:
		parts = append(parts, r.Text)
	}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// Metadata keys understood by filters.
const (
	MetaTask     = "task"
	MetaYear     = "year"
	MetaAuthor   = "author"
	MetaMethod   = "method"
	MetaModality = "modality"
	MetaLanguage = "language"
	MetaFullName = "full_name"
	MetaArxivID  = "arxiv_id"
)
