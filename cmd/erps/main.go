// Command erps runs the MQTT-based matchmaking and room-lifecycle
// coordination service: one event engine, one outbound publisher pool,
// one SQL persistence worker, and a supervisor tying them to the broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/damody/erps/internal/config"
	"github.com/damody/erps/internal/engine"
	"github.com/damody/erps/internal/model"
	"github.com/damody/erps/internal/outbound"
	"github.com/damody/erps/internal/sqlworker"
	"github.com/damody/erps/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		return 1
	}
	defer logger.Sync()

	configPath := "server_config.toml"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		configPath = args[0]
		args = args[1:]
	}

	cfg, err := config.Load(configPath, args)
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	modeCfg := make(map[string]engine.ModeConfig, len(cfg.Modes))
	for name, m := range cfg.Modes {
		modeCfg[name] = engine.ModeConfig{TeamSize: m.TeamSize, Ranked: m.Ranked}
	}

	store := model.NewStore()

	outPool := outbound.New(outbound.Config{
		BrokerURL:    cfg.BrokerURL(),
		Workers:      cfg.OutboundWorkers,
		ClientIDBase: cfg.ClientIdentifier,
	}, logger)

	sqlWorker := sqlworker.New(sqlworker.Config{DSN: cfg.MySQLDSN()}, logger)

	eng := engine.New(engine.Config{
		Modes:        modeCfg,
		TickInterval: time.Duration(cfg.TickIntervalMS) * time.Millisecond,
		DedupWindow:  time.Duration(cfg.DedupWindowSeconds) * time.Second,
	}, store, outPool, sqlWorker, logger, func() string { return uuid.New().String() })
	eng.SetBackup(cfg.Backup)

	sup := supervisor.New(supervisor.Config{
		BrokerURL:    cfg.BrokerURL(),
		ClientIDBase: cfg.ClientIdentifier,
		Backup:       cfg.Backup,
	}, eng, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errs := make(chan error, 3)
	brokerErrs := make(chan error, 1)
	go func() { errs <- outPool.Run(ctx) }()
	go func() { errs <- sqlWorker.Run(ctx) }()
	go func() { errs <- eng.Run(ctx) }()
	go func() { brokerErrs <- sup.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return 0
	case err := <-brokerErrs:
		if err != nil {
			logger.Error("broker start failed", zap.Error(err))
			cancel()
			return 2
		}
		cancel()
		return 0
	case err := <-errs:
		if err != nil {
			logger.Error("component exited with error", zap.Error(err))
		}
		cancel()
		return 1
	}
}
