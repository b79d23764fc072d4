package handler

import (
	"context"

	"holidaze/internal/app/account"
	"holidaze/internal/app/gateway"
	"holidaze/internal/app/storage"
	"holidaze/internal/app/tabs"
	"holidaze/internal/app/venue"
	"holidaze/internal/configs"
	"holidaze/internal/pkg/metrics"
)

// Catalog is the public venue listing of the booking API.
type Catalog interface {
	ListVenues(ctx context.Context, opts gateway.ListOptions) ([]venue.Venue, error)
	SearchVenues(ctx context.Context, q string, opts gateway.ListOptions) ([]venue.Venue, error)
	GetVenue(ctx context.Context, id string) (venue.Venue, error)
}

type AppDeps struct {
	Config  *configs.AppConfig
	Account *account.Service
	Catalog Catalog
	Storage *storage.Service
	Hub     *tabs.Hub
	Metrics *metrics.Metrics
}
