package main

import (
	"context"
	"flag"
	"fmt"

	"cryptopay-fulfillment-go/internal/common"
	"cryptopay-fulfillment-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	invoiceFlag := flag.String("invoice", "", "Invoice id to reconcile now")
	sweepFlag := flag.Bool("sweep", false, "Run one full sweep over all pending invoices")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	if *invoiceFlag == "" && !*sweepFlag {
		zap.L().Fatal("Nothing to do: pass -invoice <id> or -sweep")
	}

	ctx := context.Background()
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *sweepFlag {
		report, err := services.Scheduler.SweepOnce(ctx)
		if err != nil {
			zap.L().Fatal("Sweep failed", zap.Error(err))
		}
		common.PrintHeader("RECONCILIATION SWEEP", common.DefaultWidth)
		fmt.Printf("pending: %d  paid: %d  expired: %d  cancelled: %d  skipped: %d  failed: %d\n",
			report.Total, report.Paid, report.Expired, report.Cancelled, report.Skipped, report.Failed)
		return
	}

	result, err := services.Api.ReconcileInvoice(ctx, *invoiceFlag)
	if err != nil {
		zap.L().Fatal("Reconcile failed", zap.String("invoice_id", *invoiceFlag), zap.Error(err))
	}

	common.PrintHeader("INVOICE "+result.InvoiceId, common.DefaultWidth)
	fmt.Printf("outcome: %s\n", result.Outcome)
	if !result.Success {
		fmt.Printf("error:   %s\n", result.Error)
	}
}
