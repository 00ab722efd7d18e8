package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	domain "github.com/ya-paperswithcode/agentsearch/pkg/domain/errors"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS papers (
	id          TEXT PRIMARY KEY,
	arxiv_id    TEXT,
	title       TEXT,
	abstract    TEXT,
	url_abs     TEXT,
	url_pdf     TEXT,
	proceeding  TEXT,
	authors     TEXT NOT NULL DEFAULT '[]',
	tasks       TEXT NOT NULL DEFAULT '[]',
	date        TEXT,
	methods     TEXT NOT NULL DEFAULT '[]',
	year        INTEGER,
	month       INTEGER
);
CREATE TABLE IF NOT EXISTS datasets (
	id           TEXT PRIMARY KEY,
	name         TEXT,
	full_name    TEXT,
	homepage     TEXT,
	description  TEXT,
	paper_title  TEXT,
	paper_url    TEXT,
	subtasks     TEXT NOT NULL DEFAULT '[]',
	modalities   TEXT NOT NULL DEFAULT '[]',
	languages    TEXT NOT NULL DEFAULT '[]',
	num_papers   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS repositories (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	paper_id     TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
	repo_url     TEXT,
	stars        INTEGER NOT NULL DEFAULT 0,
	is_official  INTEGER NOT NULL DEFAULT 0,
	framework    TEXT
);
CREATE TABLE IF NOT EXISTS paper_tasks (
	paper_id   TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
	task_name  TEXT NOT NULL,
	PRIMARY KEY (paper_id, task_name)
);
CREATE INDEX IF NOT EXISTS idx_repositories_paper_id ON repositories (paper_id);
`

const (
	selectPaper = `
SELECT p.id, COALESCE(p.arxiv_id, ''), COALESCE(p.title, ''), COALESCE(p.abstract, ''),
       COALESCE(p.url_abs, ''), COALESCE(p.url_pdf, ''), COALESCE(p.proceeding, ''),
       p.authors, p.tasks, p.methods, COALESCE(p.date, ''), COALESCE(p.year, 0),
       (SELECT COUNT(*) FROM repositories r WHERE r.paper_id = p.id)
FROM papers p WHERE p.id = ?`

	selectDataset = `
SELECT id, COALESCE(name, ''), COALESCE(full_name, ''), COALESCE(homepage, ''),
       COALESCE(description, ''), COALESCE(paper_title, ''), COALESCE(paper_url, ''),
       subtasks, modalities, languages, num_papers
FROM datasets WHERE id = ?`
)

// SQLiteRepository serves records from the SQLite corpus database.
type SQLiteRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

var _ record.Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens path (":memory:" works) and creates missing tables.
func NewSQLiteRepository(ctx context.Context, logger *logrus.Logger, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	r := &SQLiteRepository{logger: logger, db: db}
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.WithField("path", path).Info("sqlite record store opened")
	return r, nil
}

func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, kind record.Kind, id string) (*record.Record, error) {
	switch kind {
	case record.KindPaper:
		return r.getPaper(ctx, id)
	case record.KindDataset:
		return r.getDataset(ctx, id)
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}

func (r *SQLiteRepository) getPaper(ctx context.Context, id string) (*record.Record, error) {
	var (
		row                     paperRow
		authors, tasks, methods []byte
	)
	err := r.db.QueryRowContext(ctx, selectPaper, id).Scan(
		&row.ID, &row.ArxivID, &row.Title, &row.Abstract,
		&row.URLAbs, &row.URLPDF, &row.Proceeding,
		&authors, &tasks, &methods, &row.Date, &row.Year,
		&row.RepoCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(string(record.KindPaper), id)
	}
	if err != nil {
		return nil, fmt.Errorf("query paper %s: %w", id, err)
	}
	row.Authors = namesFromJSON(authors)
	row.Tasks = namesFromJSON(tasks)
	row.Methods = namesFromJSON(methods)
	return row.toRecord(), nil
}

func (r *SQLiteRepository) getDataset(ctx context.Context, id string) (*record.Record, error) {
	var (
		row                             datasetRow
		subtasks, modalities, languages []byte
	)
	err := r.db.QueryRowContext(ctx, selectDataset, id).Scan(
		&row.ID, &row.Name, &row.FullName, &row.Homepage,
		&row.Description, &row.PaperTitle, &row.PaperURL,
		&subtasks, &modalities, &languages, &row.NumPapers,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(string(record.KindDataset), id)
	}
	if err != nil {
		return nil, fmt.Errorf("query dataset %s: %w", id, err)
	}
	row.Subtasks = namesFromJSON(subtasks)
	row.Modalities = namesFromJSON(modalities)
	row.Languages = namesFromJSON(languages)
	return row.toRecord(), nil
}

func (r *SQLiteRepository) GetEmbeddingText(ctx context.Context, kind record.Kind, id string) (string, error) {
	rec, err := r.GetRecord(ctx, kind, id)
	if err != nil {
		return "", err
	}
	return rec.EmbeddingText(), nil
}

func (r *SQLiteRepository) ListIDs(ctx context.Context, kind record.Kind) ([]string, error) {
	var query string
	switch kind {
	case record.KindPaper:
		query = "SELECT id FROM papers WHERE COALESCE(title, '') <> '' ORDER BY id"
	case record.KindDataset:
		query = "SELECT id FROM datasets WHERE COALESCE(name, '') <> '' ORDER BY id"
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", kind, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveRecords upserts records in one transaction. Paper popularity is derived
// from the repositories table and is not written.
func (r *SQLiteRepository) SaveRecords(ctx context.Context, recs ...*record.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range recs {
		if err := saveRecord(ctx, tx, rec); err != nil {
			return fmt.Errorf("save %s %s: %w", rec.Kind, rec.ID, err)
		}
	}
	return tx.Commit()
}

func saveRecord(ctx context.Context, tx *sql.Tx, rec *record.Record) error {
	switch rec.Kind {
	case record.KindPaper:
		year, _ := strconv.Atoi(first(rec.Metadata[record.MetaYear]))
		_, err := tx.ExecContext(ctx, `
INSERT INTO papers (id, arxiv_id, title, abstract, url_abs, authors, tasks, methods, year)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	arxiv_id = excluded.arxiv_id, title = excluded.title, abstract = excluded.abstract,
	url_abs = excluded.url_abs, authors = excluded.authors, tasks = excluded.tasks,
	methods = excluded.methods, year = excluded.year`,
			rec.ID, first(rec.Metadata[record.MetaArxivID]), rec.Title, rec.Text, rec.URL,
			jsonList(rec.Metadata[record.MetaAuthor]), jsonList(rec.Metadata[record.MetaTask]),
			jsonList(rec.Metadata[record.MetaMethod]), year)
		if err != nil {
			return err
		}
		for _, task := range rec.Metadata[record.MetaTask] {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO paper_tasks (paper_id, task_name) VALUES (?, ?)", rec.ID, task); err != nil {
				return err
			}
		}
		return nil
	case record.KindDataset:
		_, err := tx.ExecContext(ctx, `
INSERT INTO datasets (id, name, full_name, homepage, description, subtasks, modalities, languages, num_papers)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name, full_name = excluded.full_name, homepage = excluded.homepage,
	description = excluded.description, subtasks = excluded.subtasks,
	modalities = excluded.modalities, languages = excluded.languages, num_papers = excluded.num_papers`,
			rec.ID, rec.Title, first(rec.Metadata[record.MetaFullName]), rec.URL, rec.Text,
			jsonList(rec.Metadata[record.MetaTask]), jsonList(rec.Metadata[record.MetaModality]),
			jsonList(rec.Metadata[record.MetaLanguage]), rec.Popularity)
		return err
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}

// AddRepository links a code repository to a paper.
func (r *SQLiteRepository) AddRepository(ctx context.Context, paperID, url string, stars int, official bool) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO repositories (paper_id, repo_url, stars, is_official) VALUES (?, ?, ?, ?)",
		paperID, url, stars, official)
	return err
}

func jsonList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
