package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	infraLogger "github.com/ya-paperswithcode/agentsearch/pkg/infra/logger"
	"github.com/ya-paperswithcode/agentsearch/pkg/version"
)

var (
	configDir string
	verbose   bool
	logger    *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:     "build-embeddings",
	Short:   "Offline corpus import and embedding snapshot builder",
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if verbose {
			logger = infraLogger.NewLogger("build-embeddings")
		} else {
			logger = infraLogger.NewDiscardLogger()
		}
		if err := config.Load(configDir); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "./config", "directory holding config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write logs to logs/build-embeddings.log and stdout")

	rootCmd.AddCommand(importCmd, buildCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
