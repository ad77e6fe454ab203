package main

import (
	"context"
	"log/slog"

	"github.com/siherrmann/loregraph"
	"github.com/siherrmann/loregraph/helper"
	"github.com/spf13/cobra"
)

var (
	envFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "loregraph",
		Short: "Loregraph: knowledge graph ingestion for narrative text",
		Long: `Loregraph ingests entities and relationships extracted from narrative text
into a Neo4j knowledge graph and a PostgreSQL lookup cache, merging near
duplicate entities by embedding similarity.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(healthCmd)
}

// open loads the env file and connects to both stores
func open(ctx context.Context) (*loregraph.Loregraph, *slog.Logger, error) {
	logger := helper.NewLogger(logLevel)

	l, err := loregraph.NewFromEnv(ctx, logger, envFile)
	if err != nil {
		return nil, nil, err
	}
	return l, logger, nil
}
