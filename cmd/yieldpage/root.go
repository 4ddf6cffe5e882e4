package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for yieldpage.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "yieldpage",
		Short: "Browser-driven web crawler that extracts page content",
		Long: `yieldpage crawls websites through a headless browser, so pages rendered by
JavaScript are seen the way a reader sees them. Every fetched page yields a
record with its title, description, metadata, readable text and links.

Records can be written as JSON lines, stored in SQLite for later comparison,
published to Kafka, or written into a Neo4j link graph.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
