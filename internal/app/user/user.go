/*
Package user contains the profile record shared by the session store, the favorites
overlay and the booking API gateway.

The profile's name is the unique handle and the primary identity key. The venue-manager
role flag is decoded strictly: only a JSON boolean true grants the role, so a stored
string "true" (or any other truthy value) never elevates a user.
*/
package user

import (
	"bytes"
	"encoding/json"
)

// Role is the marketplace role a profile acts in.
type Role string

const (
	// RoleCustomer browses and books venues.
	RoleCustomer Role = "customer"

	// RoleVenueManager lists venues and manages their bookings.
	RoleVenueManager Role = "venue-manager"
)

// Roles lists every role, for code that must cover all of them.
var Roles = []Role{RoleCustomer, RoleVenueManager}

// Media is an image reference as the booking API represents avatars, banners and venue photos.
type Media struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Profile is a marketplace user.
type Profile struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Bio          string `json:"bio,omitempty"`
	Avatar       *Media `json:"avatar,omitempty"`
	Banner       *Media `json:"banner,omitempty"`
	VenueManager bool   `json:"venueManager"`
}

// UnmarshalJSON decodes a profile, normalizing venueManager to a strict boolean.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	var raw struct {
		plain
		VenueManager json.RawMessage `json:"venueManager"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Profile(raw.plain)
	p.VenueManager = bytes.Equal(bytes.TrimSpace(raw.VenueManager), []byte("true"))
	return nil
}

// Role returns the role the profile acts in.
func (p Profile) Role() Role {
	if p.VenueManager {
		return RoleVenueManager
	}
	return RoleCustomer
}

// AvatarURL returns the remote avatar URL, or "".
func (p Profile) AvatarURL() string {
	if p.Avatar == nil {
		return ""
	}
	return p.Avatar.URL
}

// BannerURL returns the remote banner URL, or "".
func (p Profile) BannerURL() string {
	if p.Banner == nil {
		return ""
	}
	return p.Banner.URL
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
// It doubles as the body of the booking API's partial profile update.
type ProfilePatch struct {
	Bio          *string `json:"bio,omitempty"`
	Avatar       *Media  `json:"avatar,omitempty"`
	Banner       *Media  `json:"banner,omitempty"`
	VenueManager *bool   `json:"venueManager,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (pp ProfilePatch) IsEmpty() bool {
	return pp.Bio == nil && pp.Avatar == nil && pp.Banner == nil && pp.VenueManager == nil
}

// Apply returns a copy of p with the patch's fields shallow-merged in.
func (pp ProfilePatch) Apply(p Profile) Profile {
	if pp.Bio != nil {
		p.Bio = *pp.Bio
	}
	if pp.Avatar != nil {
		avatar := *pp.Avatar
		p.Avatar = &avatar
	}
	if pp.Banner != nil {
		banner := *pp.Banner
		p.Banner = &banner
	}
	if pp.VenueManager != nil {
		p.VenueManager = *pp.VenueManager
	}
	return p
}
