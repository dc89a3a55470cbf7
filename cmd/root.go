package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coollabora/clinical-audit/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "clinical-audit",
	Short: "Authority audit service for cosmetic-surgery practices",
	Long:  "Scrapes a practice's Instagram profile and website, generates an AI authority audit, and serves results over HTTP with a rolling cache.",

	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// setup loads configuration and installs the global logger before any
// subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "cmd: load config")
	}
	cfg = c

	if err := config.InitLogger(cfg.Log); err != nil {
		return eris.Wrap(err, "cmd: init logger")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
