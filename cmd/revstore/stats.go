// Stats command: print repository summary and exit
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calderhof/revstore/internal/config"
	"github.com/calderhof/revstore/internal/logger"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print repository revision and node count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return runStats(cmd, cfg)
		},
	}
}

func runStats(cmd *cobra.Command, cfg *config.Config) error {
	log := logger.NewLogger(logger.Config{Level: "error"})

	r, closeStores, err := openRepository(cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() {
		r.Close()
		closeStores()
	}()

	stats, err := r.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "revision:   %s\n", stats.Revision)
	fmt.Fprintf(cmd.OutOrStdout(), "node count: %d\n", stats.NodeCount)
	return nil
}
