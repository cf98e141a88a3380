// path: cmd_reconcile.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"civicpulse/saga"
)

var reconcileParallel int

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-apply any report credits missing from the ledger",
	Long: `Walks every stored report and re-applies its submission credit and, for
resolved reports, its resolution credit. Credits are keyed by report id, so
running it repeatedly only ever fills gaps left by ledger failures.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileParallel, "parallel", 4, "number of concurrent ledger writes")
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.ReportBackend == "memory" || cfg.LedgerBackend == "memory" {
		return fmt.Errorf("reconcile needs durable backends (reports=%s ledger=%s)", cfg.ReportBackend, cfg.LedgerBackend)
	}

	ctx := cmd.Context()
	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svc.Close(cctx)
	}()

	stats, err := saga.NewReconciler(svc.reports, svc.ledger, reconcileParallel).Run(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d applied=%d failed=%d\n", stats.Scanned, stats.Applied, stats.Failed)
	return err
}
