package main

import (
	"context"
	"errors"
	"os"

	"emitrack/internal/amqp"
	"emitrack/internal/cli"
	applog "emitrack/internal/log"
	"emitrack/internal/sheets"
	gsheet "emitrack/internal/sheets/google"
	"emitrack/internal/sheets/memory"
	"emitrack/internal/worker"

	"golang.org/x/sync/errgroup"
)

type mirror interface {
	sheets.LedgerWriter
	sheets.LedgerMarker
}

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentWorker, false)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the ledger worker",
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	var target mirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		target = client
		logger.Info("Google Sheets mirror initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		target = memory.New()
		logger.Warn("No GOOGLE_SPREADSHEET_ID provided, mirroring ledger events in memory only")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	ledgerWorker := worker.NewLedgerWorker(target, target)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Consuming ledger events", "queue", cfg.AMQPQueue)
		return client.Consume(gctx, ledgerWorker.HandleEvent)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Ledger worker stopped")
}
