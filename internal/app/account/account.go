/*
Package account is the entry point front ends use: it signs users in and out, edits the
profile, gates actions by role and keeps the favorites overlay following the session.

The session, favorites and overrides it wires together are exported so that read paths can
use them directly.
*/
package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"holidaze/internal/app/display"
	"holidaze/internal/app/favorites"
	"holidaze/internal/app/gateway"
	"holidaze/internal/app/kv"
	"holidaze/internal/app/session"
	"holidaze/internal/app/user"
	"holidaze/internal/app/venue"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/logx"
	"holidaze/internal/pkg/metrics"
)

var (
	ErrNotAuthenticated   = errs.Define(errs.ErrUnauthorized, "account: not signed in")
	ErrNotVenueManager    = errs.Define(errs.ErrNotVenueManager, "account: venue managers only")
	ErrInvalidCredentials = errs.Define(errs.ErrInvalidCredentials, "account: credentials rejected")
	ErrRegistrationFailed = errs.Define(errs.ErrRegistrationFailed, "account: registration rejected")
)

// Remote is the part of the booking API the service uses.
type Remote interface {
	favorites.ProfileClient

	Login(ctx context.Context, email, password string) (gateway.LoginResult, error)
	Register(ctx context.Context, in gateway.RegisterInput) (user.Profile, error)

	GetVenue(ctx context.Context, id string) (venue.Venue, error)
	CreateBooking(ctx context.Context, token string, in venue.BookingInput) (venue.Booking, error)
	CreateVenue(ctx context.Context, token string, in venue.VenueInput) (venue.Venue, error)
	DeleteVenue(ctx context.Context, token, id string) error
	ProfileVenues(ctx context.Context, token, name string) ([]venue.Venue, error)
	ProfileBookings(ctx context.Context, token, name string) ([]venue.Booking, error)
}

// Option configures a Service.
type Option func(*options)

type options struct {
	metrics *metrics.Metrics
	now     func() time.Time
	codec   favorites.Codec
}

// WithMetrics records session transitions and swallowed remote failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCodec replaces the favorites bio codec.
func WithCodec(c favorites.Codec) Option {
	return func(o *options) { o.codec = c }
}

// Service orchestrates session, favorites and display overrides.
type Service struct {
	Session   *session.Store
	Favorites *favorites.Overlay
	Overrides *display.Overrides

	kv     kv.Store
	remote Remote
	codec  favorites.Codec
	log    zerolog.Logger

	favMu     sync.Mutex
	favOwner  string
	favLoaded bool
}

// New wires a service over store and remote.
func New(store kv.Store, remote Remote, opts ...Option) *Service {
	o := options{now: time.Now, codec: favorites.DefaultCodec}
	for _, opt := range opts {
		opt(&o)
	}

	return &Service{
		Session:   session.New(store, session.WithClock(o.now), session.WithMetrics(o.metrics)),
		Favorites: favorites.NewOverlay(store, remote, favorites.WithCodec(o.codec), favorites.WithMetrics(o.metrics)),
		Overrides: display.NewOverrides(store),
		kv:        store,
		remote:    remote,
		codec:     o.codec,
		log:       logx.Component("account"),
	}
}

// Start restores the persisted session and loads the matching favorites. From then on the
// favorites follow every change of the signed-in user, including changes made elsewhere.
func (s *Service) Start(ctx context.Context) error {
	s.Session.Subscribe(s.onSession)

	if err := s.Session.Initialize(ctx); err != nil {
		return err
	}

	s.onSession(ctx, s.Session.Snapshot())
	return nil
}

// Run follows session and favorites changes made by other processes until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	changes := s.kv.Watch(ctx)

	done := make(chan error, 1)
	go func() { done <- s.Session.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			<-done
			return ctx.Err()
		case c, ok := <-changes:
			if !ok {
				return <-done
			}
			if c.Key != kv.FavoritesKey(s.Favorites.Owner()) {
				continue
			}
			if err := s.Favorites.Refresh(ctx); err != nil {
				s.log.Warn().Err(err).Msg("Favorites refresh failed")
			}
		}
	}
}

// onSession reloads favorites when the owner changes.
func (s *Service) onSession(ctx context.Context, snap session.Snapshot) {
	if snap.State == session.StateLoading {
		return
	}

	s.favMu.Lock()
	defer s.favMu.Unlock()

	owner := snap.Handle()
	if s.favLoaded && owner == s.favOwner {
		return
	}

	if _, err := s.Favorites.Load(ctx, snap.User, snap.Token); err != nil {
		s.log.Warn().Err(err).Str("user", owner).Msg("Failed to load favorites")
		return
	}
	s.favOwner, s.favLoaded = owner, true
}

// Login signs in with the booking API and starts a session for the returned profile.
func (s *Service) Login(ctx context.Context, email, password string) (session.Snapshot, error) {
	res, err := s.remote.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		if rejected(err) {
			return session.Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return session.Snapshot{}, err
	}

	profile := s.applyRegistrationIntent(ctx, res.AccessToken, res.Profile)
	profile.Bio, _ = s.codec.Extract(profile.Bio)

	if err := s.Session.Login(ctx, res.AccessToken, profile); err != nil {
		return session.Snapshot{}, err
	}

	s.log.Info().Str("user", profile.Name).Str("role", string(profile.Role())).Msg("Signed in")
	return s.Session.Snapshot(), nil
}

// Register creates an account. The requested role is remembered until the first sign-in.
func (s *Service) Register(ctx context.Context, in gateway.RegisterInput) (user.Profile, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	profile, err := s.remote.Register(ctx, in)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return user.Profile{}, &detailError{sentinel: ErrRegistrationFailed, detail: apiErr.Message, cause: err}
		}
		return user.Profile{}, err
	}

	role := user.RoleCustomer
	if in.VenueManager {
		role = user.RoleVenueManager
	}
	if err := s.kv.Set(ctx, kv.RegistrationIntentKey(profile.Name), []byte(role)); err != nil {
		s.log.Warn().Err(err).Str("user", profile.Name).Msg("Failed to remember registration role")
	}

	return profile, nil
}

// applyRegistrationIntent consumes the role remembered at registration and, when the
// account did not come back with it, asks the booking API to grant it.
func (s *Service) applyRegistrationIntent(ctx context.Context, token string, profile user.Profile) user.Profile {
	key := kv.RegistrationIntentKey(profile.Name)

	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return profile
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear registration role")
	}

	if user.Role(raw) != user.RoleVenueManager || profile.VenueManager {
		return profile
	}

	manager := true
	updated, err := s.remote.UpdateProfile(ctx, token, profile.Name, user.ProfilePatch{VenueManager: &manager})
	if err != nil {
		s.log.Warn().Err(err).Str("user", profile.Name).Msg("Failed to apply venue manager role from registration")
		return profile
	}
	return updated
}

// Logout ends the session and removes the user's local overrides.
func (s *Service) Logout(ctx context.Context) error {
	handle := s.Session.Snapshot().Handle()
	if err := s.Session.Logout(ctx); err != nil {
		return err
	}
	if handle != "" {
		s.log.Info().Str("user", handle).Msg("Signed out")
	}
	return nil
}

// RequireAuthenticated returns the session when a user is signed in.
func (s *Service) RequireAuthenticated() (session.Snapshot, error) {
	snap := s.Session.Snapshot()
	if !snap.IsAuthenticated() || snap.User == nil {
		return snap, ErrNotAuthenticated
	}
	return snap, nil
}

// RequireVenueManager returns the session when a venue manager is signed in.
func (s *Service) RequireVenueManager() (session.Snapshot, error) {
	snap, err := s.RequireAuthenticated()
	if err != nil {
		return snap, err
	}
	if !snap.IsVenueManager() {
		return snap, ErrNotVenueManager
	}
	return snap, nil
}

// Appearance resolves the avatar and banner for the signed-in user.
func (s *Service) Appearance(ctx context.Context) (display.Appearance, error) {
	return s.Overrides.Appearance(ctx, s.Session.Snapshot().User)
}

// rejected reports whether the booking API refused the request itself rather than failing.
func rejected(err error) bool {
	var apiErr *gateway.APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

// detailError attaches a user-presentable detail to a sentinel.
type detailError struct {
	sentinel error
	detail   string
	cause    error
}

func (e *detailError) Error() string       { return e.sentinel.Error() + ": " + e.detail }
func (e *detailError) Unwrap() []error     { return []error{e.sentinel, e.cause} }
func (e *detailError) ErrorDetail() string { return e.detail }
