package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var reviewNotes string

var reviewCmd = &cobra.Command{
	Use:   "review <audit-id>",
	Short: "Attach manual review findings to a pending audit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if reviewNotes == "" {
			return eris.New("--notes is required")
		}

		env, err := initAudit(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Store.AttachManualReview(cmd.Context(), args[0], reviewNotes)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "manual review findings")
	rootCmd.AddCommand(reviewCmd)
}
