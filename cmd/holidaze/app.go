package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"holidaze/internal/app/account"
	"holidaze/internal/app/gateway"
	"holidaze/internal/app/kv"
	"holidaze/internal/pkg/logx"
	"holidaze/internal/pkg/metrics"
)

// app is the client core wired over the configured store.
type app struct {
	store   kv.Store
	api     *gateway.Client
	account *account.Service
}

// openApp opens the store and restores the shared session. m may be nil.
func openApp(ctx context.Context, m *metrics.Metrics) (*app, error) {
	store, err := kv.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}

	api := gateway.New(cfg.API, gateway.WithMetrics(m))
	svc := account.New(store, api, account.WithMetrics(m))
	if err := svc.Start(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &app{store: store, api: api, account: svc}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logx.Error(err, "Failed to close store")
	}
}

// withApp runs fn against a freshly opened app.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
