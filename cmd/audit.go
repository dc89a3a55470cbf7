package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coollabora/clinical-audit/internal/model"
)

var auditWebsite string

var auditCmd = &cobra.Command{
	Use:   "audit <instagram-url>",
	Short: "Run a single authority audit and print the record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initAudit(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Service.Run(cmd.Context(), args[0], auditWebsite)
		if err != nil {
			return err
		}

		if rec.AuditStatus == model.AuditStatusPendingReview {
			zap.L().Warn("audit needs manual review before release",
				zap.String("audit_id", rec.ID))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditWebsite, "website", "", "practice website URL")
	rootCmd.AddCommand(auditCmd)
}
