package records

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
)

// paperRow is the column set shared by the dump loader and both SQL stores.
type paperRow struct {
	ID         string
	ArxivID    string
	Title      string
	Abstract   string
	URLAbs     string
	URLPDF     string
	Proceeding string
	Authors    []string
	Tasks      []string
	Methods    []string
	Date       string
	Year       int
	RepoCount  int
}

type datasetRow struct {
	ID          string
	Name        string
	FullName    string
	Homepage    string
	Description string
	PaperTitle  string
	PaperURL    string
	Subtasks    []string
	Modalities  []string
	Languages   []string
	NumPapers   int
}

func (p paperRow) toRecord() *record.Record {
	meta := map[string][]string{}
	setMeta(meta, record.MetaTask, p.Tasks)
	setMeta(meta, record.MetaAuthor, p.Authors)
	setMeta(meta, record.MetaMethod, p.Methods)
	year := p.Year
	if year == 0 {
		year, _ = yearMonth(p.Date)
	}
	if year > 0 {
		meta[record.MetaYear] = []string{strconv.Itoa(year)}
	}
	if p.ArxivID != "" {
		meta[record.MetaArxivID] = []string{p.ArxivID}
	}
	url := p.URLAbs
	if url == "" {
		url = p.URLPDF
	}
	return &record.Record{
		ID:         p.ID,
		Kind:       record.KindPaper,
		Title:      strings.TrimSpace(p.Title),
		Text:       strings.TrimSpace(p.Abstract),
		URL:        url,
		Metadata:   meta,
		Popularity: p.RepoCount,
	}
}

func (d datasetRow) toRecord() *record.Record {
	meta := map[string][]string{}
	setMeta(meta, record.MetaTask, d.Subtasks)
	setMeta(meta, record.MetaModality, d.Modalities)
	setMeta(meta, record.MetaLanguage, d.Languages)
	if d.FullName != "" && d.FullName != d.Name {
		meta[record.MetaFullName] = []string{d.FullName}
	}
	return &record.Record{
		ID:         d.ID,
		Kind:       record.KindDataset,
		Title:      strings.TrimSpace(d.Name),
		Text:       strings.TrimSpace(d.Description),
		URL:        d.Homepage,
		Metadata:   meta,
		Popularity: d.NumPapers,
	}
}

func setMeta(meta map[string][]string, key string, values []string) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) > 0 {
		meta[key] = out
	}
}

// yearMonth parses YYYY-MM-DD, tolerating a missing day or month.
func yearMonth(date string) (int, int) {
	parts := strings.SplitN(strings.TrimSpace(date), "-", 3)
	if len(parts) == 0 || len(parts[0]) != 4 {
		return 0, 0
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0
	}
	if len(parts) < 2 {
		return year, 0
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return year, 0
	}
	return year, month
}

// namesFromJSON decodes a JSON list whose items are plain strings or objects
// carrying a "name" field. Malformed input yields nil.
func namesFromJSON(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &named); err == nil && named.Name != "" {
			out = append(out, named.Name)
		}
	}
	return out
}
