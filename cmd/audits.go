package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/coollabora/clinical-audit/internal/model"
	"github.com/coollabora/clinical-audit/internal/store"
)

var (
	auditsStatus string
	auditsLimit  int
	auditsOffset int
)

var auditsCmd = &cobra.Command{
	Use:   "audits",
	Short: "List stored audits",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initAudit(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Store.ListAudits(cmd.Context(), store.AuditFilter{
			Status: model.AuditStatus(auditsStatus),
			Limit:  auditsLimit,
			Offset: auditsOffset,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	},
}

func init() {
	auditsCmd.Flags().StringVar(&auditsStatus, "status", "", "filter by audit status (complete, pending_review, reviewed)")
	auditsCmd.Flags().IntVar(&auditsLimit, "limit", 50, "max results")
	auditsCmd.Flags().IntVar(&auditsOffset, "offset", 0, "pagination offset")
	rootCmd.AddCommand(auditsCmd)
}
