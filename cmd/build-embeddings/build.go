package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	"github.com/ya-paperswithcode/agentsearch/pkg/dependency_container"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
)

var kinds []string

// buildCmd embeds every record of the selected kinds and writes one snapshot
// per kind for the server to load at startup.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the record store and write index snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		selected := make([]record.Kind, 0, len(kinds))
		for _, raw := range kinds {
			kind, err := record.ParseKind(raw)
			if err != nil {
				return err
			}
			selected = append(selected, kind)
		}

		container, err := dependency_container.NewContainer(ctx, dependency_container.ContainerDI{
			Cfg:        config.GetConfig(),
			Logger:     logger,
			SkipWarmUp: true,
		})
		if err != nil {
			return err
		}
		defer container.Close()

		for _, kind := range selected {
			deps := container.Kinds[kind]
			report, err := deps.Indexer.Rebuild(ctx)
			if err != nil {
				return fmt.Errorf("build %s index: %w", kind, err)
			}
			path, err := container.Snapshots.Save(deps.Store.Snapshot())
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d/%d embedded, %d missing, %d failed in %s -> %s\n",
				kind.Plural(), report.Indexed, report.Requested,
				len(report.Missing), len(report.Failed), report.Duration, path)
		}
		return nil
	},
}

func init() {
	buildCmd.Flags().StringSliceVar(&kinds, "kind", []string{"paper", "dataset"}, "record kinds to embed")
}
