package migrations

import (
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/database"
	"gorm.io/gorm"
)

func init() {
	database.RegisterMigration(database.Migration{
		ID:   "20260001_create_corpus_tables",
		Name: "Create papers, datasets, repositories and paper_tasks tables",

		Up: func(db *gorm.DB) error {
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS papers (
					id          TEXT PRIMARY KEY,
					arxiv_id    TEXT,
					title       TEXT,
					abstract    TEXT,
					url_abs     TEXT,
					url_pdf     TEXT,
					proceeding  TEXT,
					authors     JSONB NOT NULL DEFAULT '[]',
					tasks       JSONB NOT NULL DEFAULT '[]',
					date        TEXT,
					methods     JSONB NOT NULL DEFAULT '[]',
					year        INTEGER,
					month       INTEGER
				);
			`).Error; err != nil {
				return err
			}

			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS datasets (
					id           TEXT PRIMARY KEY,
					name         TEXT,
					full_name    TEXT,
					homepage     TEXT,
					description  TEXT,
					paper_title  TEXT,
					paper_url    TEXT,
					subtasks     JSONB NOT NULL DEFAULT '[]',
					modalities   JSONB NOT NULL DEFAULT '[]',
					languages    JSONB NOT NULL DEFAULT '[]',
					num_papers   INTEGER NOT NULL DEFAULT 0
				);
			`).Error; err != nil {
				return err
			}

			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS repositories (
					id           BIGSERIAL PRIMARY KEY,
					paper_id     TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
					repo_url     TEXT,
					stars        INTEGER NOT NULL DEFAULT 0,
					is_official  BOOLEAN NOT NULL DEFAULT FALSE,
					framework    TEXT
				);
			`).Error; err != nil {
				return err
			}

			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS paper_tasks (
					paper_id   TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
					task_name  TEXT NOT NULL,
					PRIMARY KEY (paper_id, task_name)
				);
			`).Error; err != nil {
				return err
			}

			// popularity is a count over repositories per paper
			return db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_repositories_paper_id
				ON repositories (paper_id);
			`).Error
		},

		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP TABLE IF EXISTS paper_tasks, repositories, datasets, papers;`).Error
		},
	})
}
