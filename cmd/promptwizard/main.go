package main

import (
	"fmt"
	"os"

	"github.com/dshills/promptwizard/internal/config"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "promptwizard",
	Short:         "Prompt template wizard",
	Long:          "Builds prompt templates from a goal and clarifying answers, resolves their variables, and tests them against language models.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "promptwizard %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and builds the logger for commands that need them.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
