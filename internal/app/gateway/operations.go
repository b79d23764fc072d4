package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"holidaze/internal/app/user"
	"holidaze/internal/app/venue"
)

// LoginResult is a successful sign-in.
type LoginResult struct {
	Profile     user.Profile
	AccessToken string
}

// RegisterInput is the body of a registration.
type RegisterInput struct {
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Password     string      `json:"password"`
	Bio          string      `json:"bio,omitempty"`
	Avatar       *user.Media `json:"avatar,omitempty"`
	Banner       *user.Media `json:"banner,omitempty"`
	VenueManager bool        `json:"venueManager"`
}

// ListOptions pages and sorts venue listings.
type ListOptions struct {
	Page      int
	Limit     int
	Sort      string
	SortOrder string
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	q.Set("_owner", "true")
	q.Set("_bookings", "true")
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
	}
	if o.SortOrder != "" {
		q.Set("sortOrder", o.SortOrder)
	}
	return q
}

// Login exchanges credentials for a token and the holidaze profile.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var raw json.RawMessage
	err := c.do(ctx, call{
		op:     "auth.login",
		method: http.MethodPost,
		path:   "/auth/login",
		query:  url.Values{"_holidaze": {"true"}},
		body:   map[string]string{"email": email, "password": password},
	}, &raw)
	if err != nil {
		return LoginResult{}, err
	}

	var res LoginResult
	var tok struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(raw, &res.Profile); err != nil {
		return LoginResult{}, fmt.Errorf("auth.login: %w: %v", ErrMalformedBody, err)
	}
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return LoginResult{}, fmt.Errorf("auth.login: %w: no access token", ErrMalformedBody)
	}
	res.AccessToken = tok.AccessToken
	return res, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, in RegisterInput) (user.Profile, error) {
	var p user.Profile
	err := c.do(ctx, call{
		op:     "auth.register",
		method: http.MethodPost,
		path:   "/auth/register",
		body:   in,
	}, &p)
	return p, err
}

// GetProfile reads the profile of name.
func (c *Client) GetProfile(ctx context.Context, token, name string) (user.Profile, error) {
	var p user.Profile
	err := c.do(ctx, call{
		op:       "profiles.get",
		method:   http.MethodGet,
		path:     "/profiles/" + url.PathEscape(name),
		token:    token,
		prefixed: true,
	}, &p)
	return p, err
}

// UpdateProfile applies a partial update to the profile of name and returns the result.
func (c *Client) UpdateProfile(ctx context.Context, token, name string, patch user.ProfilePatch) (user.Profile, error) {
	var p user.Profile
	err := c.do(ctx, call{
		op:       "profiles.update",
		method:   http.MethodPut,
		path:     "/profiles/" + url.PathEscape(name),
		token:    token,
		body:     patch,
		prefixed: true,
	}, &p)
	return p, err
}

// ListVenues returns a page of venues with their owners and bookings.
func (c *Client) ListVenues(ctx context.Context, opts ListOptions) ([]venue.Venue, error) {
	var venues []venue.Venue
	err := c.do(ctx, call{
		op:       "venues.list",
		method:   http.MethodGet,
		path:     "/venues",
		query:    opts.query(),
		prefixed: true,
	}, &venues)
	return venues, err
}

// SearchVenues returns venues whose name or description matches q.
func (c *Client) SearchVenues(ctx context.Context, q string, opts ListOptions) ([]venue.Venue, error) {
	query := opts.query()
	query.Set("q", q)

	var venues []venue.Venue
	err := c.do(ctx, call{
		op:       "venues.search",
		method:   http.MethodGet,
		path:     "/venues/search",
		query:    query,
		prefixed: true,
	}, &venues)
	return venues, err
}

// GetVenue returns one venue with its owner and bookings.
func (c *Client) GetVenue(ctx context.Context, id string) (venue.Venue, error) {
	var v venue.Venue
	err := c.do(ctx, call{
		op:       "venues.get",
		method:   http.MethodGet,
		path:     "/venues/" + url.PathEscape(id),
		query:    url.Values{"_owner": {"true"}, "_bookings": {"true"}},
		prefixed: true,
	}, &v)
	return v, notFound(err, venue.ErrNotFound)
}

// ProfileVenues lists the venues name manages.
func (c *Client) ProfileVenues(ctx context.Context, token, name string) ([]venue.Venue, error) {
	var venues []venue.Venue
	err := c.do(ctx, call{
		op:       "profiles.venues",
		method:   http.MethodGet,
		path:     "/profiles/" + url.PathEscape(name) + "/venues",
		query:    url.Values{"_bookings": {"true"}},
		token:    token,
		prefixed: true,
	}, &venues)
	return venues, err
}

// ProfileBookings lists the bookings name made.
func (c *Client) ProfileBookings(ctx context.Context, token, name string) ([]venue.Booking, error) {
	var bookings []venue.Booking
	err := c.do(ctx, call{
		op:       "profiles.bookings",
		method:   http.MethodGet,
		path:     "/profiles/" + url.PathEscape(name) + "/bookings",
		query:    url.Values{"_venue": {"true"}},
		token:    token,
		prefixed: true,
	}, &bookings)
	return bookings, err
}

// CreateBooking books a stay.
func (c *Client) CreateBooking(ctx context.Context, token string, in venue.BookingInput) (venue.Booking, error) {
	var b venue.Booking
	err := c.do(ctx, call{
		op:       "bookings.create",
		method:   http.MethodPost,
		path:     "/bookings",
		token:    token,
		body:     in,
		prefixed: true,
	}, &b)
	return b, err
}

// CreateVenue lists a new venue owned by the token's user.
func (c *Client) CreateVenue(ctx context.Context, token string, in venue.VenueInput) (venue.Venue, error) {
	var v venue.Venue
	err := c.do(ctx, call{
		op:       "venues.create",
		method:   http.MethodPost,
		path:     "/venues",
		token:    token,
		body:     in,
		prefixed: true,
	}, &v)
	return v, err
}

// DeleteVenue removes a venue owned by the token's user.
func (c *Client) DeleteVenue(ctx context.Context, token, id string) error {
	err := c.do(ctx, call{
		op:       "venues.delete",
		method:   http.MethodDelete,
		path:     "/venues/" + url.PathEscape(id),
		token:    token,
		prefixed: true,
	}, nil)
	return notFound(err, venue.ErrNotFound)
}

// notFound marks a 404 answer with sentinel while keeping the API error in the chain.
func notFound(err, sentinel error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}
