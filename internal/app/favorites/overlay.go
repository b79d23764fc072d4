/*
Package favorites keeps the signed-in user's favorite venues.

The booking API has no favorites resource, so the list travels inside the profile bio as a
marker block (see Codec). Every change is written to the local key-value store first and is
committed once that write succeeds; the bio update that follows is best effort and its
failure is logged, counted and otherwise ignored. Load prefers the remote bio and falls back
to the local copy.
*/
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"holidaze/internal/app/kv"
	"holidaze/internal/app/user"
	"holidaze/internal/pkg/logx"
	"holidaze/internal/pkg/metrics"
)

// ProfileClient reads and partially updates remote profiles.
type ProfileClient interface {
	GetProfile(ctx context.Context, token, name string) (user.Profile, error)
	UpdateProfile(ctx context.Context, token, name string, patch user.ProfilePatch) (user.Profile, error)
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithCodec replaces the bio codec.
func WithCodec(c Codec) Option {
	return func(o *Overlay) { o.codec = c }
}

// WithMetrics counts swallowed remote failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Overlay) { o.metrics = m }
}

// Overlay is the favorites set of the current owner (a user handle, or anonymous).
type Overlay struct {
	kv      kv.Store
	remote  ProfileClient
	codec   Codec
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu     sync.RWMutex
	handle string
	token  string
	ids    []string

	// syncMu orders remote bio updates so the last one carries the latest set.
	syncMu sync.Mutex
}

// NewOverlay creates an empty overlay owned by the anonymous user.
func NewOverlay(store kv.Store, remote ProfileClient, opts ...Option) *Overlay {
	o := &Overlay{
		kv:     store,
		remote: remote,
		codec:  DefaultCodec,
		log:    logx.Component("favorites"),
		ids:    []string{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Codec returns the codec used on the bio.
func (o *Overlay) Codec() Codec {
	return o.codec
}

// Load makes u the owner and reads its set: from the remote bio when u is signed in and the
// profile can be fetched (refreshing the local copy), from the local copy otherwise.
// A nil u or empty token loads the anonymous set.
func (o *Overlay) Load(ctx context.Context, u *user.Profile, token string) ([]string, error) {
	handle := ""
	if u != nil && token != "" {
		handle = u.Name
	} else {
		token = ""
	}

	ids, err := o.loadFor(ctx, handle, token)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.handle, o.token, o.ids = handle, token, ids
	o.mu.Unlock()

	return slices.Clone(ids), nil
}

func (o *Overlay) loadFor(ctx context.Context, handle, token string) ([]string, error) {
	if handle == "" {
		return o.readLocal(ctx, handle)
	}

	profile, err := o.remote.GetProfile(ctx, token, handle)
	if err != nil {
		o.metrics.IncBestEffortFailure("favorites.load")
		o.log.Warn().Err(err).Str("user", handle).Msg("Remote profile unavailable, using local favorites")
		return o.readLocal(ctx, handle)
	}

	_, ids := o.codec.Extract(profile.Bio)
	if err := o.writeLocal(ctx, handle, ids); err != nil {
		o.log.Warn().Err(err).Str("user", handle).Msg("Failed to refresh local favorites")
	}
	return ids, nil
}

// Refresh re-reads the local copy of the current owner, picking up changes written by other
// processes sharing the store.
func (o *Overlay) Refresh(ctx context.Context) error {
	handle := o.Owner()
	ids, err := o.readLocal(ctx, handle)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.handle == handle {
		o.ids = ids
	}
	o.mu.Unlock()
	return nil
}

// Add marks id as a favorite. Adding a present id changes nothing.
func (o *Overlay) Add(ctx context.Context, id string) error {
	return o.change(ctx, func(ids []string) ([]string, bool) {
		if id == "" || slices.Contains(ids, id) {
			return ids, false
		}
		return append(slices.Clone(ids), id), true
	})
}

// Remove unmarks id. Removing an absent id changes nothing.
func (o *Overlay) Remove(ctx context.Context, id string) error {
	return o.change(ctx, func(ids []string) ([]string, bool) {
		i := slices.Index(ids, id)
		if i < 0 {
			return ids, false
		}
		return slices.Delete(slices.Clone(ids), i, i+1), true
	})
}

func (o *Overlay) change(ctx context.Context, apply func([]string) ([]string, bool)) error {
	o.mu.Lock()
	next, changed := apply(o.ids)
	if !changed {
		o.mu.Unlock()
		return nil
	}

	handle, token := o.handle, o.token
	if err := o.writeLocal(ctx, handle, next); err != nil {
		o.mu.Unlock()
		return err
	}
	o.ids = next
	o.mu.Unlock()

	if token != "" {
		o.syncRemote(ctx, handle, token)
	}
	return nil
}

// syncRemote rewrites the marker block of the remote bio with the current set.
func (o *Overlay) syncRemote(ctx context.Context, handle, token string) {
	o.syncMu.Lock()
	defer o.syncMu.Unlock()

	if err := o.pushBio(ctx, handle, token); err != nil {
		o.metrics.IncBestEffortFailure("favorites.sync")
		o.log.Warn().Err(err).Str("user", handle).Msg("Remote favorites update failed, kept locally")
	}
}

func (o *Overlay) pushBio(ctx context.Context, handle, token string) error {
	profile, err := o.remote.GetProfile(ctx, token, handle)
	if err != nil {
		return fmt.Errorf("fetching bio: %w", err)
	}

	o.mu.RLock()
	if o.handle != handle {
		o.mu.RUnlock()
		return nil
	}
	ids := slices.Clone(o.ids)
	o.mu.RUnlock()

	clean, _ := o.codec.Extract(profile.Bio)
	bio := o.codec.Combine(clean, ids)

	if _, err := o.remote.UpdateProfile(ctx, token, handle, user.ProfilePatch{Bio: &bio}); err != nil {
		return fmt.Errorf("updating bio: %w", err)
	}
	return nil
}

// IsFavorite reports whether id is in the current set.
func (o *Overlay) IsFavorite(id string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Contains(o.ids, id)
}

// List returns the current set in insertion order.
func (o *Overlay) List() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.ids)
}

// Owner returns the handle the set belongs to, "" for the anonymous user.
func (o *Overlay) Owner() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.handle
}

func (o *Overlay) readLocal(ctx context.Context, handle string) ([]string, error) {
	raw, err := o.kv.Get(ctx, kv.FavoritesKey(handle))
	if errors.Is(err, kv.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("favorites: reading local copy: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		o.log.Warn().Err(err).Str("user", handle).Msg("Ignoring unreadable local favorites")
		return []string{}, nil
	}
	return normalize(ids), nil
}

func (o *Overlay) writeLocal(ctx context.Context, handle string, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := o.kv.Set(ctx, kv.FavoritesKey(handle), raw); err != nil {
		return fmt.Errorf("favorites: writing local copy: %w", err)
	}
	return nil
}
