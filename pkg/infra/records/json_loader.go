package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

type paperDump struct {
	PaperID    string          `json:"paper_id"`
	ArxivID    string          `json:"arxiv_id"`
	Title      string          `json:"title"`
	Abstract   string          `json:"abstract"`
	URLAbs     string          `json:"url_abs"`
	URLPDF     string          `json:"url_pdf"`
	Proceeding string          `json:"proceeding"`
	Authors    []string        `json:"authors"`
	Tasks      []string        `json:"tasks"`
	Date       string          `json:"date"`
	Methods    json.RawMessage `json:"methods"`
}

type datasetDump struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Name        string   `json:"name"`
	Dataset     string   `json:"dataset"`
	FullName    string   `json:"full_name"`
	DatasetFull string   `json:"dataset_full_name"`
	Homepage    string   `json:"homepage"`
	Description string   `json:"description"`
	PaperTitle  string   `json:"paper_title"`
	PaperURL    string   `json:"paper_url"`
	Subtasks    []string `json:"subtasks"`
	Tasks       []string `json:"tasks"`
	Modalities  []string `json:"modalities"`
	Languages   []string `json:"languages"`
	NumPapers   int      `json:"num_papers"`
}

func (p paperDump) row() paperRow {
	id := p.PaperID
	if id == "" {
		id = p.ArxivID
	}
	year, _ := yearMonth(p.Date)
	return paperRow{
		ID:         id,
		ArxivID:    p.ArxivID,
		Title:      p.Title,
		Abstract:   p.Abstract,
		URLAbs:     p.URLAbs,
		URLPDF:     p.URLPDF,
		Proceeding: p.Proceeding,
		Authors:    p.Authors,
		Tasks:      p.Tasks,
		Methods:    namesFromJSON(p.Methods),
		Date:       p.Date,
		Year:       year,
	}
}

func (d datasetDump) row() datasetRow {
	name := firstNonEmpty(d.Name, d.Dataset)
	subtasks := d.Subtasks
	if len(subtasks) == 0 {
		subtasks = d.Tasks
	}
	return datasetRow{
		ID:          firstNonEmpty(d.ID, d.URL, name),
		Name:        name,
		FullName:    firstNonEmpty(d.FullName, d.DatasetFull),
		Homepage:    d.Homepage,
		Description: d.Description,
		PaperTitle:  d.PaperTitle,
		PaperURL:    d.PaperURL,
		Subtasks:    subtasks,
		Modalities:  d.Modalities,
		Languages:   d.Languages,
		NumPapers:   d.NumPapers,
	}
}

// LoadStats counts what a dump load kept and skipped.
type LoadStats struct {
	Papers   int
	Datasets int
	Skipped  int
}

// JSONLoader reads the Papers With Code JSON dumps into a MemoryRepository.
// Files ending in .gz are decompressed on the fly.
type JSONLoader struct {
	logger *logrus.Logger
	repo   *MemoryRepository
}

func NewJSONLoader(logger *logrus.Logger, repo *MemoryRepository) *JSONLoader {
	return &JSONLoader{logger: logger, repo: repo}
}

// LoadFiles loads whichever of the two files is set. Missing files are an error.
func (l *JSONLoader) LoadFiles(ctx context.Context, papersFile, datasetsFile string) (*LoadStats, error) {
	stats := &LoadStats{}
	if papersFile != "" {
		if err := l.loadFile(papersFile, func(r io.Reader) error { return l.LoadPapers(ctx, r, stats) }); err != nil {
			return nil, err
		}
	}
	if datasetsFile != "" {
		if err := l.loadFile(datasetsFile, func(r io.Reader) error { return l.LoadDatasets(ctx, r, stats) }); err != nil {
			return nil, err
		}
	}
	l.logger.WithFields(logrus.Fields{
		"papers":   stats.Papers,
		"datasets": stats.Datasets,
		"skipped":  stats.Skipped,
	}).Info("json dumps loaded")
	return stats, nil
}

func (l *JSONLoader) loadFile(path string, load func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip dump %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	if err := load(r); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadPapers streams a JSON array of paper objects. Papers without an id or
// title are skipped.
func (l *JSONLoader) LoadPapers(ctx context.Context, r io.Reader, stats *LoadStats) error {
	return decodeArray(ctx, r, func(dec *json.Decoder) error {
		var p paperDump
		if err := dec.Decode(&p); err != nil {
			return err
		}
		row := p.row()
		if row.ID == "" || strings.TrimSpace(row.Title) == "" {
			stats.Skipped++
			return nil
		}
		l.repo.Add(row.toRecord())
		stats.Papers++
		return nil
	})
}

// LoadDatasets streams a JSON array of dataset objects.
func (l *JSONLoader) LoadDatasets(ctx context.Context, r io.Reader, stats *LoadStats) error {
	return decodeArray(ctx, r, func(dec *json.Decoder) error {
		var d datasetDump
		if err := dec.Decode(&d); err != nil {
			return err
		}
		row := d.row()
		if row.ID == "" || row.Name == "" {
			stats.Skipped++
			return nil
		}
		l.repo.Add(row.toRecord())
		stats.Datasets++
		return nil
	})
}

func decodeArray(ctx context.Context, r io.Reader, item func(*json.Decoder) error) error {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected a JSON array, got %v", tok)
	}
	for n := 0; dec.More(); n++ {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := item(dec); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
