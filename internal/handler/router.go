/*
Package handler provides the HTTP handlers and routing setup for the Holidaze companion server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/limiter"
	"holidaze/internal/pkg/logx"
	"holidaze/internal/pkg/resp"
)

const (
	AuthRate  = 0.2
	AuthBurst = 5
	TabRate   = 1
	TabBurst  = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// Rate limiter cleanup goroutines stop when ctx is done.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(AuthRate), AuthBurst, "auth", deps.Metrics)
	tabLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(TabRate), TabBurst, "tabs", deps.Metrics)

	r := chi.NewRouter()

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || deps.Config.OriginAllowed(origin) {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	c := cors.New(cors.Options{
		AllowOriginFunc: deps.Config.OriginAllowed,
		AllowedMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:  []string{"Accept", "Content-Type"},
		MaxAge:          300,
	})
	r.Use(c.Handler)
	r.Use(rejectForeignOrigins(deps))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":  "ok",
			"service": "Holidaze",
			"tabs":    deps.Hub.Len(),
		}
		resp.RespondSuccess(w, r, data)
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/session", HandleGetSession(deps))

		api.Route("/auth", func(auth chi.Router) {
			auth.With(authLimiter.Middleware).Post("/login", HandleLogin(deps))
			auth.With(authLimiter.Middleware).Post("/register", HandleRegister(deps))
			auth.Post("/logout", HandleLogout(deps))
		})

		api.Route("/profile", func(profile chi.Router) {
			profile.Get("/", HandleGetProfile(deps))
			profile.Put("/", HandleUpdateProfile(deps))
			profile.Get("/appearance", HandleGetAppearance(deps))
			profile.Get("/bookings", HandleMyBookings(deps))
			profile.Get("/venues", HandleMyVenues(deps))
		})

		api.Route("/favorites", func(fav chi.Router) {
			fav.Get("/", HandleListFavorites(deps))
			fav.Get("/{id}", HandleGetFavorite(deps))
			fav.Put("/{id}", HandleAddFavorite(deps))
			fav.Delete("/{id}", HandleRemoveFavorite(deps))
		})

		api.Route("/venues", func(venues chi.Router) {
			venues.Get("/", HandleListVenues(deps))
			venues.Post("/", HandleCreateVenue(deps))
			venues.Get("/{id}", HandleGetVenue(deps))
			venues.Delete("/{id}", HandleDeleteVenue(deps))
		})

		api.Post("/bookings", HandleCreateBooking(deps))

		api.Route("/media", func(media chi.Router) {
			media.Post("/presign", HandlePresignImage(deps))
			media.Post("/confirm", HandleConfirmImage(deps))
		})
	})

	r.With(tabLimiter.Middleware).Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r
}

// rejectForeignOrigins refuses browser requests from untrusted origins. CORS alone only hides
// responses; a cross-site form post would still reach the handler.
func rejectForeignOrigins(deps *AppDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && !deps.Config.OriginAllowed(origin) {
				logx.Warn("Request rejected: Origin not allowed.", "origin", origin, "path", r.URL.Path)
				resp.RespondError(w, r, errs.NewError(errs.ErrOriginNotAllowed))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
