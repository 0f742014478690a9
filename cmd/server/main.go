package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"accessgov/internal/app/server"
	"accessgov/internal/platform/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		app.Close()
	}()

	if err := app.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
