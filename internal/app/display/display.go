/*
Package display resolves the avatar and banner shown for a user.

A local override, kept per user and per role, wins over the profile's own image; without
either the caller renders the user's initial.
*/
package display

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"holidaze/internal/app/kv"
	"holidaze/internal/app/user"
)

// ResolveAvatarURL returns the avatar URL to display, or "" for the initial placeholder.
func ResolveAvatarURL(u *user.Profile, override string) string {
	if u == nil {
		return strings.TrimSpace(override)
	}
	return resolve(override, u.AvatarURL())
}

// ResolveBannerURL returns the banner URL to display, or "" for the placeholder.
func ResolveBannerURL(u *user.Profile, override string) string {
	if u == nil {
		return strings.TrimSpace(override)
	}
	return resolve(override, u.BannerURL())
}

func resolve(override, remote string) string {
	if o := strings.TrimSpace(override); o != "" {
		return o
	}
	return strings.TrimSpace(remote)
}

// Initial returns the upper-cased first letter of name, or "?" when it has none.
func Initial(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "?"
	}
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

// Appearance is what an avatar-bearing component renders.
type Appearance struct {
	AvatarURL string    `json:"avatarUrl,omitempty"`
	BannerURL string    `json:"bannerUrl,omitempty"`
	Initial   string    `json:"initial"`
	Role      user.Role `json:"role"`
}

// Overrides stores the local avatar and banner overrides.
type Overrides struct {
	kv kv.Store
}

// NewOverrides returns overrides kept in store.
func NewOverrides(store kv.Store) *Overrides {
	return &Overrides{kv: store}
}

// Avatar returns the avatar override of handle acting in role, or "".
func (o *Overrides) Avatar(ctx context.Context, handle string, role user.Role) (string, error) {
	return o.get(ctx, kv.AvatarKey(handle, role))
}

// Banner returns the banner override of handle acting in role, or "".
func (o *Overrides) Banner(ctx context.Context, handle string, role user.Role) (string, error) {
	return o.get(ctx, kv.BannerKey(handle, role))
}

// SetAvatar records an avatar override. An empty URL is ignored.
func (o *Overrides) SetAvatar(ctx context.Context, handle string, role user.Role, url string) error {
	return o.set(ctx, kv.AvatarKey(handle, role), url)
}

// SetBanner records a banner override. An empty URL is ignored.
func (o *Overrides) SetBanner(ctx context.Context, handle string, role user.Role, url string) error {
	return o.set(ctx, kv.BannerKey(handle, role), url)
}

// Appearance resolves what to show for u in its current role. A nil u yields the placeholder.
func (o *Overrides) Appearance(ctx context.Context, u *user.Profile) (Appearance, error) {
	if u == nil {
		return Appearance{Initial: Initial(""), Role: user.RoleCustomer}, nil
	}

	role := u.Role()
	avatar, err := o.Avatar(ctx, u.Name, role)
	if err != nil {
		return Appearance{}, err
	}
	banner, err := o.Banner(ctx, u.Name, role)
	if err != nil {
		return Appearance{}, err
	}

	return Appearance{
		AvatarURL: ResolveAvatarURL(u, avatar),
		BannerURL: ResolveBannerURL(u, banner),
		Initial:   Initial(u.Name),
		Role:      role,
	}, nil
}

func (o *Overrides) get(ctx context.Context, key string) (string, error) {
	raw, err := o.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("display: reading override: %w", err)
	}
	return string(raw), nil
}

func (o *Overrides) set(ctx context.Context, key, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	if err := o.kv.Set(ctx, key, []byte(url)); err != nil {
		return fmt.Errorf("display: writing override: %w", err)
	}
	return nil
}
