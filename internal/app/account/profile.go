package account

import (
	"context"
	"strings"

	"holidaze/internal/app/user"
	"holidaze/internal/app/venue"
)

// ProfileUpdate is an edit of the signed-in user's profile. Zero fields are left unchanged.
type ProfileUpdate struct {
	Bio          *string
	AvatarURL    string
	AvatarAlt    string
	BannerURL    string
	BannerAlt    string
	VenueManager *bool
}

// UpdateProfile records image overrides locally, then sends the edit to the booking API with
// the favorites block re-attached to the bio. The session takes the clean result.
func (s *Service) UpdateProfile(ctx context.Context, in ProfileUpdate) (user.Profile, error) {
	snap, err := s.RequireAuthenticated()
	if err != nil {
		return user.Profile{}, err
	}
	handle, role := snap.User.Name, snap.User.Role()

	avatar := strings.TrimSpace(in.AvatarURL)
	banner := strings.TrimSpace(in.BannerURL)
	if err := s.Overrides.SetAvatar(ctx, handle, role, avatar); err != nil {
		return user.Profile{}, err
	}
	if err := s.Overrides.SetBanner(ctx, handle, role, banner); err != nil {
		return user.Profile{}, err
	}

	var patch user.ProfilePatch
	if in.Bio != nil {
		clean, _ := s.codec.Extract(*in.Bio)
		bio := s.codec.Combine(clean, s.favoritesOf(handle))
		patch.Bio = &bio
	}
	if avatar != "" {
		patch.Avatar = &user.Media{URL: avatar, Alt: in.AvatarAlt}
	}
	if banner != "" {
		patch.Banner = &user.Media{URL: banner, Alt: in.BannerAlt}
	}
	patch.VenueManager = in.VenueManager

	if patch.IsEmpty() {
		return *snap.User, nil
	}

	updated, err := s.remote.UpdateProfile(ctx, snap.Token, handle, patch)
	if err != nil {
		return user.Profile{}, err
	}

	clean, _ := s.codec.Extract(updated.Bio)
	result := user.ProfilePatch{
		Bio:          &clean,
		Avatar:       updated.Avatar,
		Banner:       updated.Banner,
		VenueManager: &updated.VenueManager,
	}
	if err := s.Session.UpdateUser(ctx, result); err != nil {
		return user.Profile{}, err
	}

	if u := s.Session.Snapshot().User; u != nil {
		return *u, nil
	}
	return result.Apply(*snap.User), nil
}

// favoritesOf returns the in-memory set when it belongs to handle.
func (s *Service) favoritesOf(handle string) []string {
	if s.Favorites.Owner() != handle {
		return nil
	}
	return s.Favorites.List()
}

// Book checks the stay against the venue's bookings before asking the booking API for it.
func (s *Service) Book(ctx context.Context, in venue.BookingInput) (venue.Booking, error) {
	snap, err := s.RequireAuthenticated()
	if err != nil {
		return venue.Booking{}, err
	}

	v, err := s.remote.GetVenue(ctx, in.VenueID)
	if err != nil {
		return venue.Booking{}, err
	}
	if err := venue.CheckAvailability(v, in.DateFrom, in.DateTo, in.Guests); err != nil {
		return venue.Booking{}, err
	}

	in.DateFrom, in.DateTo = venue.Day(in.DateFrom), venue.Day(in.DateTo)
	b, err := s.remote.CreateBooking(ctx, snap.Token, in)
	if err != nil {
		return venue.Booking{}, err
	}

	s.log.Info().
		Str("user", snap.User.Name).
		Str("venue", in.VenueID).
		Int("nights", venue.Nights(in.DateFrom, in.DateTo)).
		Msg("Booked")
	return b, nil
}

// CreateVenue lists a venue owned by the signed-in venue manager.
func (s *Service) CreateVenue(ctx context.Context, in venue.VenueInput) (venue.Venue, error) {
	snap, err := s.RequireVenueManager()
	if err != nil {
		return venue.Venue{}, err
	}
	if err := in.Validate(); err != nil {
		return venue.Venue{}, err
	}
	return s.remote.CreateVenue(ctx, snap.Token, in)
}

// DeleteVenue removes a venue owned by the signed-in venue manager.
func (s *Service) DeleteVenue(ctx context.Context, id string) error {
	snap, err := s.RequireVenueManager()
	if err != nil {
		return err
	}
	return s.remote.DeleteVenue(ctx, snap.Token, id)
}

// MyBookings lists the signed-in user's bookings.
func (s *Service) MyBookings(ctx context.Context) ([]venue.Booking, error) {
	snap, err := s.RequireAuthenticated()
	if err != nil {
		return nil, err
	}
	return s.remote.ProfileBookings(ctx, snap.Token, snap.User.Name)
}

// MyVenues lists the venues the signed-in venue manager owns.
func (s *Service) MyVenues(ctx context.Context) ([]venue.Venue, error) {
	snap, err := s.RequireVenueManager()
	if err != nil {
		return nil, err
	}
	return s.remote.ProfileVenues(ctx, snap.Token, snap.User.Name)
}
