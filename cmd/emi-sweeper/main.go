package main

import (
	"context"
	"time"

	"emitrack/internal/cli"
	applog "emitrack/internal/log"
	"emitrack/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentSweeper, false)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err.Error())
		}
	}()

	services.SetGraceDays(cfg.DefaultGraceDays)

	// no summary cache here: the API process owns its own
	emis := services.NewEMIService(be.Store, be.Store, be.Publisher, nil)
	runnerCfg := services.DefaultSweepRunnerConfig()
	runnerCfg.Interval = cfg.SweepInterval
	runner := services.NewSweepRunner(services.NewOverdueSweeper(emis), runnerCfg)

	if err := runner.Start(ctx); err != nil {
		logger.Error("Failed to start sweep runner", applog.FieldError, err.Error())
		return
	}
	logger.Info("EMI sweeper started",
		"interval", cfg.SweepInterval.String(),
		"grace_days", cfg.DefaultGraceDays)

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := runner.Stop(stopCtx); err != nil {
		logger.Error("Sweep runner did not stop cleanly", applog.FieldError, err.Error())
	}
	logger.Info("EMI sweeper stopped")
}
