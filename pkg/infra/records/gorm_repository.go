package records

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/ya-paperswithcode/agentsearch/pkg/domain/errors"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/database"
	"gorm.io/gorm"
)

type paperModel struct {
	ID         string `gorm:"primaryKey"`
	ArxivID    string
	Title      string
	Abstract   string
	URLAbs     string `gorm:"column:url_abs"`
	URLPDF     string `gorm:"column:url_pdf"`
	Proceeding string
	Authors    string
	Tasks      string
	Methods    string
	Date       string
	Year       int
	RepoCount  int `gorm:"->;column:repo_count"`
}

func (paperModel) TableName() string { return "papers" }

func (m paperModel) row() paperRow {
	return paperRow{
		ID:         m.ID,
		ArxivID:    m.ArxivID,
		Title:      m.Title,
		Abstract:   m.Abstract,
		URLAbs:     m.URLAbs,
		URLPDF:     m.URLPDF,
		Proceeding: m.Proceeding,
		Authors:    namesFromJSON([]byte(m.Authors)),
		Tasks:      namesFromJSON([]byte(m.Tasks)),
		Methods:    namesFromJSON([]byte(m.Methods)),
		Date:       m.Date,
		Year:       m.Year,
		RepoCount:  m.RepoCount,
	}
}

type datasetModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	FullName    string
	Homepage    string
	Description string
	PaperTitle  string
	PaperURL    string `gorm:"column:paper_url"`
	Subtasks    string
	Modalities  string
	Languages   string
	NumPapers   int
}

func (datasetModel) TableName() string { return "datasets" }

func (m datasetModel) row() datasetRow {
	return datasetRow{
		ID:          m.ID,
		Name:        m.Name,
		FullName:    m.FullName,
		Homepage:    m.Homepage,
		Description: m.Description,
		PaperTitle:  m.PaperTitle,
		PaperURL:    m.PaperURL,
		Subtasks:    namesFromJSON([]byte(m.Subtasks)),
		Modalities:  namesFromJSON([]byte(m.Modalities)),
		Languages:   namesFromJSON([]byte(m.Languages)),
		NumPapers:   m.NumPapers,
	}
}

// GormRepository serves records from postgres.
type GormRepository struct {
	db *database.DB
}

var _ record.Repository = (*GormRepository)(nil)

func NewGormRepository(db *database.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) GetRecord(ctx context.Context, kind record.Kind, id string) (*record.Record, error) {
	switch kind {
	case record.KindPaper:
		var m paperModel
		err := r.db.WithContext(ctx).
			Select("papers.id, COALESCE(papers.arxiv_id, '') AS arxiv_id, COALESCE(papers.title, '') AS title, " +
				"COALESCE(papers.abstract, '') AS abstract, COALESCE(papers.url_abs, '') AS url_abs, " +
				"COALESCE(papers.url_pdf, '') AS url_pdf, COALESCE(papers.proceeding, '') AS proceeding, " +
				"papers.authors::text AS authors, papers.tasks::text AS tasks, papers.methods::text AS methods, " +
				"COALESCE(papers.date, '') AS date, COALESCE(papers.year, 0) AS year, " +
				"(SELECT COUNT(*) FROM repositories r WHERE r.paper_id = papers.id) AS repo_count").
			Where("papers.id = ?", id).
			Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError(string(kind), id)
		}
		if err != nil {
			return nil, fmt.Errorf("query paper %s: %w", id, err)
		}
		return m.row().toRecord(), nil
	case record.KindDataset:
		var m datasetModel
		err := r.db.WithContext(ctx).
			Select("id, COALESCE(name, '') AS name, COALESCE(full_name, '') AS full_name, " +
				"COALESCE(homepage, '') AS homepage, COALESCE(description, '') AS description, " +
				"COALESCE(paper_title, '') AS paper_title, COALESCE(paper_url, '') AS paper_url, " +
				"subtasks::text AS subtasks, modalities::text AS modalities, languages::text AS languages, num_papers").
			Where("id = ?", id).
			Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError(string(kind), id)
		}
		if err != nil {
			return nil, fmt.Errorf("query dataset %s: %w", id, err)
		}
		return m.row().toRecord(), nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}

func (r *GormRepository) GetEmbeddingText(ctx context.Context, kind record.Kind, id string) (string, error) {
	rec, err := r.GetRecord(ctx, kind, id)
	if err != nil {
		return "", err
	}
	return rec.EmbeddingText(), nil
}

func (r *GormRepository) ListIDs(ctx context.Context, kind record.Kind) ([]string, error) {
	var ids []string
	var q *gorm.DB
	switch kind {
	case record.KindPaper:
		q = r.db.WithContext(ctx).Model(&paperModel{}).Where("COALESCE(title, '') <> ''")
	case record.KindDataset:
		q = r.db.WithContext(ctx).Model(&datasetModel{}).Where("COALESCE(name, '') <> ''")
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list %s ids: %w", kind, err)
	}
	return ids, nil
}
