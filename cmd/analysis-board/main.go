package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/park285/chess-insights-board/internal/boardbuilder"
	appcfg "github.com/park285/chess-insights-board/internal/config"
	"github.com/park285/chess-insights-board/internal/obslog"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := boardbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init error", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	go deps.Hub.Run(ctx)

	if err := deps.Server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		logger.Error("http server error", zap.Error(err))
	}
}
