package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"holidaze/internal/app/storage"
	"holidaze/internal/app/tabs"
	"holidaze/internal/handler"
	"holidaze/internal/pkg/logx"
	"holidaze/internal/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the companion server for browser tabs",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("addr", cfg.Addr()).
		Str("store", cfg.Store.Driver).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("uploads", cfg.Storage.Enabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	a, err := openApp(ctx, m)
	if err != nil {
		return err
	}
	defer a.Close()

	media, err := storage.NewStorageService(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	hub := tabs.NewHub(handler.TabState(a.account), tabs.WithMetrics(m))
	a.account.Session.Subscribe(hub.SessionListener())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		hub.Follow(a.store.Watch(ctx))
	}()
	go func() {
		defer wg.Done()
		if err := a.account.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logx.Error(err, "Session follower stopped")
		}
	}()

	router := handler.Router(ctx, &handler.AppDeps{
		Config:  cfg,
		Account: a.account,
		Catalog: a.api,
		Storage: media,
		Hub:     hub,
		Metrics: m,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.API.Timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logx.Info("Holidaze companion server starting", "addr", "http://"+cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	select {
	case <-ctx.Done():
		logx.Info("Received shutdown signal. Starting graceful shutdown...")
	case err := <-serveErr:
		stop()
		wg.Wait()
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	wg.Wait()
	logx.Info("Server gracefully stopped.")
	return nil
}
