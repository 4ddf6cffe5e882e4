package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/yieldpage/internal/config"
)

//go:embed templates/yieldpage.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a yieldpage configuration file",
		Long: `Init writes a commented .yieldpage configuration file.

The generated file documents every crawl setting with its default value:
seeds and URL patterns, depth and page limits, per-host politeness, retries,
browser options and record outputs.

Examples:
  # Create .yieldpage in the current directory
  yieldpage init

  # Create the config file at a specific path
  yieldpage init -o ~/.config/yieldpage/config.yaml

  # Overwrite an existing file
  yieldpage init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/yieldpage.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// May later hold the Neo4j password.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to set:")
	fmt.Fprintln(out, "  - Seed URLs and include/exclude patterns")
	fmt.Fprintln(out, "  - Depth, page and per-host limits")
	fmt.Fprintln(out, "  - Where page records are written")
	return nil
}
