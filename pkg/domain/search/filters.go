package search

import (
	"strings"

	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
)

var filterAliases = map[string]string{
	"tasks":      record.MetaTask,
	"years":      record.MetaYear,
	"authors":    record.MetaAuthor,
	"methods":    record.MetaMethod,
	"modalities": record.MetaModality,
	"languages":  record.MetaLanguage,
}

// Filters restrict results to records whose metadata intersects every listed
// key. Keys and values compare case-insensitively.
type Filters map[string][]string

// Normalize lower-cases keys and values, resolves plural aliases and drops
// keys without values.
func (f Filters) Normalize() Filters {
	if len(f) == 0 {
		return nil
	}
	out := make(Filters, len(f))
	for key, values := range f {
		k := strings.ToLower(strings.TrimSpace(key))
		if alias, ok := filterAliases[k]; ok {
			k = alias
		}
		for _, v := range values {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				out[k] = append(out[k], v)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Match expects normalized filters.
func (f Filters) Match(r *record.Record) bool {
	for key, allowed := range f {
		if !intersects(r.Metadata[key], allowed) {
			return false
		}
	}
	return true
}

func intersects(values, allowed []string) bool {
	for _, v := range values {
		lv := strings.ToLower(v)
		for _, a := range allowed {
			if lv == a {
				return true
			}
		}
	}
	return false
}
