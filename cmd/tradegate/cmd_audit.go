package main

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/quantfall/tradegate/internal/audit"
	"github.com/quantfall/tradegate/internal/persistence/postgres"
	"github.com/quantfall/tradegate/internal/telemetry/latency"
)

func newAuditCmd() *cobra.Command {
	var (
		trades  int
		persist bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Generate an audit report over recent trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := sqlx.Open("postgres", cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			timeout := time.Duration(cfg.Postgres.TimeoutSeconds) * time.Second
			repo := postgres.NewTradesRepo(db, timeout)

			var auditor *audit.Auditor
			if persist {
				auditor = audit.NewAuditor(cfg.Audit, repo, repo, latency.NewRegistry(1000))
			} else {
				auditor = audit.NewAuditor(cfg.Audit, repo, nil, latency.NewRegistry(1000))
			}

			report, err := auditor.GenerateAuditReport(cmd.Context(), trades)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().IntVar(&trades, "trades", 0, "number of recent trades to audit (0 = configured default)")
	cmd.Flags().BoolVar(&persist, "persist", false, "persist the generated report as an alert record")
	return cmd
}
