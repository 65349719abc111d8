package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hession/calcmate/internal/audit"
	"github.com/hession/calcmate/internal/config"
	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/logger"
	"github.com/hession/calcmate/internal/telemetry"
	"github.com/hession/calcmate/internal/tools"
)

// app holds the components shared by every subcommand
type app struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	store      audit.Store // nil when the audit log is disabled
	cleanups   []func() error
}

// newApp builds the dispatcher with its observers and opens the audit store
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var opts []dispatch.Option
	if cfg.Telemetry.Enabled {
		clean, err := telemetry.Start(ctx,
			telemetry.WithEndpoint(cfg.Telemetry.Endpoint),
			telemetry.WithServiceName(cfg.Telemetry.ServiceName),
			telemetry.WithServiceVersion(version),
			telemetry.WithInsecure(cfg.Telemetry.Insecure),
			telemetry.WithHeaders(cfg.Telemetry.Headers),
			telemetry.WithInterval(time.Duration(cfg.Telemetry.IntervalSec)*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to start telemetry: %w", err)
		}
		a.cleanups = append(a.cleanups, clean)

		recorder, err := telemetry.NewRecorder(telemetry.Meter)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create metrics recorder: %w", err)
		}
		opts = append(opts, dispatch.WithObserver(recorder.Observe))
		logger.Info("Exporting metrics to %s", cfg.Telemetry.Endpoint)
	}

	if cfg.Audit.Enabled {
		store, err := audit.NewSQLiteStore(cfg.Audit.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		a.store = store
		a.cleanups = append(a.cleanups, store.Close)
	}

	a.dispatcher = dispatch.New(tools.NewDefaultRegistry(), opts...)
	return a, nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](); err != nil {
			logger.Warn("Cleanup failed: %v", err)
		}
	}
	a.cleanups = nil
}
