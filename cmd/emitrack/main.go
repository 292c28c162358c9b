package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"emitrack/internal/auth"
	"emitrack/internal/cache"
	"emitrack/internal/cli"
	apphttp "emitrack/internal/http"
	applog "emitrack/internal/log"
	"emitrack/internal/services"

	"golang.org/x/sync/errgroup"
)

const (
	summaryCacheUsers = 1000
	shutdownTimeout   = 30 * time.Second
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp, true)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err.Error())
		}
	}()

	summaries := cache.NewSummaryCache(summaryCacheUsers, cfg.SummaryCacheTTL)
	emis := services.NewEMIService(be.Store, be.Store, be.Publisher, summaries)
	reconciler := services.NewReconciler(be.Store, emis, cfg.ReconcileKeywords)
	ledger := services.NewLedgerService(be.Store, reconciler, be.Publisher)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, apphttp.Dependencies{
		EMIs:      emis,
		Ledger:    ledger,
		Verifier:  auth.NewVerifier(cfg.JWTSecret),
		Store:     be.Store,
		Summaries: summaries,
		Logger:    logger,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 35 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting EMI tracking API",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"ledger_events", be.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
