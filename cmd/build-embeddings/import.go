package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/records"
)

var (
	papersFile   string
	datasetsFile string
	sqlitePath   string
)

// importCmd converts the JSON dumps into the SQLite record store.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the Papers With Code JSON dumps into SQLite",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.GetConfig().Database
		if papersFile == "" {
			papersFile = cfg.PapersFile
		}
		if datasetsFile == "" {
			datasetsFile = cfg.DatasetsFile
		}
		if sqlitePath == "" {
			sqlitePath = cfg.Path
		}

		mem := records.NewMemoryRepository()
		stats, err := records.NewJSONLoader(logger, mem).LoadFiles(ctx, papersFile, datasetsFile)
		if err != nil {
			return err
		}

		store, err := records.NewSQLiteRepository(ctx, logger, sqlitePath)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, kind := range []record.Kind{record.KindPaper, record.KindDataset} {
			ids, err := mem.ListIDs(ctx, kind)
			if err != nil {
				return err
			}
			recs := make([]*record.Record, 0, len(ids))
			for _, id := range ids {
				r, err := mem.GetRecord(ctx, kind, id)
				if err != nil {
					return err
				}
				recs = append(recs, r)
			}
			if err := store.SaveRecords(ctx, recs...); err != nil {
				return fmt.Errorf("save %s: %w", kind.Plural(), err)
			}
		}

		fmt.Printf("imported %d papers and %d datasets into %s (%d skipped)\n",
			stats.Papers, stats.Datasets, sqlitePath, stats.Skipped)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&papersFile, "papers", "", "papers JSON dump (.json or .json.gz)")
	importCmd.Flags().StringVar(&datasetsFile, "datasets", "", "datasets JSON dump (.json or .json.gz)")
	importCmd.Flags().StringVar(&sqlitePath, "out", "", "SQLite database to write")
}
