package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/appraise/internal/api"
	"github.com/kalambet/appraise/internal/blob"
	"github.com/kalambet/appraise/internal/config"
	"github.com/kalambet/appraise/internal/serving"
	"github.com/kalambet/appraise/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prediction server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "appraise version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	if cfg.Server.Token == "" {
		return fmt.Errorf("missing API token: set APPRAISE_API_TOKEN for the management endpoints")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	bundles, err := blob.NewFSStore(cfg.Storage.BundleDir)
	if err != nil {
		return fmt.Errorf("opening bundle store: %w", err)
	}

	predictor := serving.NewPredictor(serving.NewCache(bundles), cfg.Serving.EchoInputs)
	handler := api.NewHandler(api.Deps{
		Predictor: predictor,
		Scores:    store,
		Token:     cfg.Server.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("appraise listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
