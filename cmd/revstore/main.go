// Revstore server
// Versioned tree-structured content repository with revision-consistent search
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "revstore",
		Short: "Versioned content repository server",
		Long: `Revstore is a revisioned node metadata engine. Clients stage edits in
per-session working areas and publish them as atomic repository
revisions; full-text search results are consistent with the revision a
session is pinned to.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ./revstore.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newStatsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
