/*
Package session holds the authentication state of one installation: the bearer token and
the signed-in profile, persisted as a single record in the key-value store.

A Store is an explicit object rather than a global. It starts in StateLoading, settles into
StateAuthenticated or StateAnonymous on Initialize, and follows changes to the persisted
record made by any other process (Run), so that every tab converges on the last write.
A record that cannot be read is treated as absent: the store never fabricates a signed-in state.
*/
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"holidaze/internal/app/kv"
	"holidaze/internal/app/user"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/logx"
	"holidaze/internal/pkg/metrics"
	"holidaze/internal/pkg/token"
)

// State is a session lifecycle state.
type State string

const (
	StateLoading       State = "loading"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// Transition causes, as reported to metrics and logs.
const (
	causeInitialize   = "initialize"
	causeStorage      = "storage_event"
	causeLogin        = "login"
	causeLogout       = "logout"
	causeUpdate       = "update"
	causeInvalidToken = "invalid_token"
)

// ErrEmptyToken is returned by Login when no token is given.
var ErrEmptyToken = errs.Define(errs.ErrInvalidParams, "session: empty token")

// Record is the persisted session.
type Record struct {
	Token string        `json:"token"`
	User  *user.Profile `json:"user"`
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	State State         `json:"state"`
	Token string        `json:"-"`
	User  *user.Profile `json:"user,omitempty"`
}

// IsAuthenticated reports whether a token is present.
func (s Snapshot) IsAuthenticated() bool {
	return s.Token != ""
}

// IsVenueManager reports whether the signed-in user holds the venue-manager role.
func (s Snapshot) IsVenueManager() bool {
	return s.User != nil && s.User.VenueManager
}

// Handle returns the signed-in user's name, or "".
func (s Snapshot) Handle() string {
	if s.User == nil {
		return ""
	}
	return s.User.Name
}

// Listener is called after every change of the snapshot, outside of any store lock.
type Listener func(ctx context.Context, snap Snapshot)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics records state transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store is the session state machine.
type Store struct {
	kv      kv.Store
	now     func() time.Time
	metrics *metrics.Metrics
	log     zerolog.Logger

	initOnce sync.Once
	initErr  error

	// writeMu serializes operations that read and then persist the record.
	writeMu sync.Mutex

	mu   sync.RWMutex
	snap Snapshot

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// New creates a store in StateLoading backed by store.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:        store,
		now:       time.Now,
		log:       logx.Component("session"),
		snap:      Snapshot{State: StateLoading},
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current session view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe registers l for snapshot changes and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Initialize loads the persisted record. Only the first call does any work.
func (s *Store) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.reload(ctx, causeInitialize)
	})
	return s.initErr
}

// Reload re-runs the load logic against the persisted record.
func (s *Store) Reload(ctx context.Context) error {
	return s.reload(ctx, causeStorage)
}

func (s *Store) reload(ctx context.Context, cause string) error {
	s.writeMu.Lock()
	next, raw, loadErr := s.load(ctx)
	if invalidToken(loadErr) {
		cause, loadErr = causeInvalidToken, nil

		// Only the record that failed validation is erased; a login that landed in between wins.
		erased, err := s.kv.DeleteIfEqual(ctx, kv.SessionKey, raw)
		switch {
		case err != nil:
			s.log.Error().Err(err).Msg("Failed to erase invalid session record")
		case !erased:
			cause = causeStorage
			next, _, loadErr = s.load(ctx)
			if invalidToken(loadErr) {
				loadErr = nil
			}
		}
	}
	changed := s.set(next, cause)
	s.writeMu.Unlock()

	if changed {
		s.notify(ctx, next)
	}
	return loadErr
}

func invalidToken(err error) bool {
	return errors.Is(err, token.ErrMalformedToken) || errors.Is(err, token.ErrExpiredToken)
}

// load reads the persisted record and returns it with the raw bytes it was decoded from.
// Token validation failures are returned together with the anonymous snapshot so that the
// caller can erase the record.
func (s *Store) load(ctx context.Context) (Snapshot, []byte, error) {
	anonymous := Snapshot{State: StateAnonymous}

	raw, err := s.kv.Get(ctx, kv.SessionKey)
	if errors.Is(err, kv.ErrNotFound) {
		return anonymous, nil, nil
	}
	if err != nil {
		return anonymous, nil, fmt.Errorf("session: reading record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.log.Warn().Err(err).Msg("Ignoring unreadable session record")
		return anonymous, raw, nil
	}
	if rec.Token == "" || rec.User == nil {
		s.log.Warn().Msg("Ignoring incomplete session record")
		return anonymous, raw, nil
	}

	if _, err := token.Validate(rec.Token, s.now()); err != nil {
		s.log.Info().Err(err).Str("user", rec.User.Name).Msg("Discarding persisted session")
		return anonymous, raw, err
	}

	return Snapshot{State: StateAuthenticated, Token: rec.Token, User: rec.User}, raw, nil
}

// Login persists a new session, replacing any previous one.
func (s *Store) Login(ctx context.Context, tok string, profile user.Profile) error {
	if tok == "" {
		return ErrEmptyToken
	}

	s.writeMu.Lock()
	next := Snapshot{State: StateAuthenticated, Token: tok, User: &profile}
	if err := s.persist(ctx, next); err != nil {
		s.writeMu.Unlock()
		return err
	}
	changed := s.set(next, causeLogin)
	s.writeMu.Unlock()

	if changed {
		s.notify(ctx, next)
	}
	return nil
}

// Logout erases the persisted record and every local key derived for the departing user.
// It succeeds when nothing is stored.
func (s *Store) Logout(ctx context.Context) error {
	s.writeMu.Lock()

	keys := []string{kv.SessionKey}
	if handle := s.Snapshot().Handle(); handle != "" {
		keys = append(keys, kv.DerivedUserKeys(handle)...)
	}
	err := s.kv.Delete(ctx, keys...)

	next := Snapshot{State: StateAnonymous}
	changed := s.set(next, causeLogout)
	s.writeMu.Unlock()

	if changed {
		s.notify(ctx, next)
	}
	if err != nil {
		return fmt.Errorf("session: erasing record: %w", err)
	}
	return nil
}

// UpdateUser merges patch into the signed-in profile and persists it. The token is not
// re-validated. It does nothing for an anonymous session.
func (s *Store) UpdateUser(ctx context.Context, patch user.ProfilePatch) error {
	s.writeMu.Lock()

	current := s.Snapshot()
	if !current.IsAuthenticated() || current.User == nil {
		s.writeMu.Unlock()
		return nil
	}

	merged := patch.Apply(*current.User)
	next := Snapshot{State: StateAuthenticated, Token: current.Token, User: &merged}
	if err := s.persist(ctx, next); err != nil {
		s.writeMu.Unlock()
		return err
	}
	changed := s.set(next, causeUpdate)
	s.writeMu.Unlock()

	if changed {
		s.notify(ctx, next)
	}
	return nil
}

// Run follows changes to the persisted record until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	changes := s.kv.Watch(ctx)

	if err := s.Initialize(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Initial session load failed")
	}
	// Catch up on writes made between Initialize and Watch.
	if err := s.Reload(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Session reload failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Key != kv.SessionKey {
				continue
			}
			if err := s.Reload(ctx); err != nil {
				s.log.Warn().Err(err).Msg("Session reload failed")
			}
		}
	}
}

func (s *Store) persist(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(Record{Token: snap.Token, User: snap.User})
	if err != nil {
		return fmt.Errorf("session: encoding record: %w", err)
	}
	if err := s.kv.Set(ctx, kv.SessionKey, raw); err != nil {
		return fmt.Errorf("session: writing record: %w", err)
	}
	return nil
}

// set installs next and reports whether anything changed.
func (s *Store) set(next Snapshot, cause string) bool {
	s.mu.Lock()
	prev := s.snap
	s.snap = next
	s.mu.Unlock()

	if prev.State == next.State && prev.Token == next.Token && reflect.DeepEqual(prev.User, next.User) {
		return false
	}

	if prev.State != next.State {
		s.metrics.IncSessionTransition(string(next.State), cause)
		s.log.Debug().
			Str("from", string(prev.State)).
			Str("to", string(next.State)).
			Str("cause", cause).
			Str("user", next.Handle()).
			Msg("Session transition")
	}
	return true
}

func (s *Store) notify(ctx context.Context, snap Snapshot) {
	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(ctx, snap)
	}
}
