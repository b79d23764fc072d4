/*
Package gatewaytest runs an in-memory booking API for tests of code built on the gateway.

It speaks the same routes and envelopes as the real service closely enough for the client:
auth under /auth, everything else under the /holidaze resource prefix, JSON error bodies with
an errors array, and bearer tokens that decode as JWTs carrying the profile name.
*/
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt"

	"holidaze/internal/app/user"
	"holidaze/internal/app/venue"
	"holidaze/internal/configs"
)

// APIKey is the key the fake expects on every request.
const APIKey = "test-api-key"

type account struct {
	profile  user.Profile
	password string
}

// Server is a fake booking API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*account // by name
	tokens   map[string]string   // token -> name
	venues   map[string]*venue.Venue
	order    []string
	seq      int
	calls    map[string]int

	profilesDown bool
}

// NewServer starts a fake booking API that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		venues:   make(map[string]*venue.Venue),
		calls:    make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Config points a gateway client at the fake.
func (s *Server) Config() configs.APIConfig {
	return configs.APIConfig{
		BaseURL:        s.URL,
		ResourcePrefix: "/holidaze",
		Key:            APIKey,
		Timeout:        5 * time.Second,
	}
}

// AddUser registers a profile that can sign in with email and password.
func (s *Server) AddUser(p user.Profile, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[p.Name] = &account{profile: p, password: password}
}

// Profile returns the stored profile of name.
func (s *Server) Profile(name string) (user.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[name]
	if !ok {
		return user.Profile{}, false
	}
	return a.profile, true
}

// AddVenue stores v, assigning an id when it has none, and returns the id.
func (s *Server) AddVenue(v venue.Venue) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addVenue(v)
}

// Venue returns the stored venue with id.
func (s *Server) Venue(id string) (venue.Venue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[id]
	if !ok {
		return venue.Venue{}, false
	}
	return *v, true
}

// Calls returns how often the route pattern was hit, e.g. "PUT /holidaze/profiles/{name}".
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

// SetProfilesDown makes every profile route answer 503 while down is true.
func (s *Server) SetProfilesDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profilesDown = down
}

// Token issues a bearer token for name, as a successful login would.
func (s *Server) Token(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue(name)
}

func (s *Server) issue(name string) string {
	s.seq++
	claims := jwt.MapClaims{
		"name": name,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
		"jti":  s.seq,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("gatewaytest"))
	if err != nil {
		panic(err)
	}
	s.tokens[signed] = name
	return signed
}

func (s *Server) addVenue(v venue.Venue) string {
	if v.ID == "" {
		s.seq++
		v.ID = fmt.Sprintf("v-%d", s.seq)
	}
	if _, ok := s.venues[v.ID]; !ok {
		s.order = append(s.order, v.ID)
	}
	s.venues[v.ID] = &v
	return v.ID
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count, s.requireKey)

	r.Post("/auth/login", s.login)
	r.Post("/auth/register", s.register)

	r.Route("/holidaze", func(r chi.Router) {
		r.Get("/venues", s.listVenues)
		r.Get("/venues/search", s.searchVenues)
		r.Get("/venues/{id}", s.getVenue)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)

			r.Get("/profiles/{name}", s.getProfile)
			r.Put("/profiles/{name}", s.updateProfile)
			r.Get("/profiles/{name}/venues", s.profileVenues)
			r.Get("/profiles/{name}/bookings", s.profileBookings)

			r.Post("/venues", s.createVenue)
			r.Delete("/venues/{id}", s.deleteVenue)
			r.Post("/bookings", s.createBooking)
		})
	})
	return r
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := r.Method + " " + chi.RouteContext(r.Context()).RoutePattern()
		s.mu.Lock()
		s.calls[pattern]++
		s.mu.Unlock()
	})
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Noroff-API-Key") != APIKey {
			fail(w, http.StatusUnauthorized, "No API key header was found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		name, ok := s.tokens[tok]
		down := s.profilesDown
		s.mu.Unlock()

		if !ok {
			fail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		if down && strings.HasPrefix(r.URL.Path, "/holidaze/profiles/") {
			fail(w, http.StatusServiceUnavailable, "Profiles are unavailable")
			return
		}
		r.Header.Set("X-Test-User", name)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.profile.Email, in.Email) && a.password == in.Password {
			body := struct {
				user.Profile
				AccessToken string `json:"accessToken"`
			}{a.profile, s.issue(a.profile.Name)}
			respond(w, http.StatusOK, body)
			return
		}
	}
	fail(w, http.StatusUnauthorized, "Invalid email or password")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name         string      `json:"name"`
		Email        string      `json:"email"`
		Password     string      `json:"password"`
		Bio          string      `json:"bio"`
		Avatar       *user.Media `json:"avatar"`
		Banner       *user.Media `json:"banner"`
		VenueManager bool        `json:"venueManager"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Name == "" || in.Email == "" || len(in.Password) < 8 {
		fail(w, http.StatusBadRequest, "Name, email and a password of at least 8 characters are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[in.Name]; ok {
		fail(w, http.StatusBadRequest, "Profile already exists")
		return
	}
	p := user.Profile{
		Name:         in.Name,
		Email:        in.Email,
		Bio:          in.Bio,
		Avatar:       in.Avatar,
		Banner:       in.Banner,
		VenueManager: in.VenueManager,
	}
	s.accounts[in.Name] = &account{profile: p, password: in.Password}
	respond(w, http.StatusCreated, p)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[chi.URLParam(r, "name")]
	if !ok {
		fail(w, http.StatusNotFound, "No profile with this name")
		return
	}
	respond(w, http.StatusOK, a.profile)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if r.Header.Get("X-Test-User") != name {
		fail(w, http.StatusForbidden, "You can only update your own profile")
		return
	}

	var patch user.ProfilePatch
	if !decode(w, r, &patch) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[name]
	if !ok {
		fail(w, http.StatusNotFound, "No profile with this name")
		return
	}
	a.profile = patch.Apply(a.profile)
	respond(w, http.StatusOK, a.profile)
}

func (s *Server) profileVenues(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []venue.Venue{}
	for _, id := range s.order {
		if v := s.venues[id]; v.Owner != nil && v.Owner.Name == name {
			out = append(out, *v)
		}
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) profileBookings(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []venue.Booking{}
	for _, id := range s.order {
		v := s.venues[id]
		for _, b := range v.Bookings {
			if b.Customer != nil && b.Customer.Name == name {
				b.Venue = &venue.Venue{ID: v.ID, Name: v.Name}
				out = append(out, b)
			}
		}
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) listVenues(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []venue.Venue{}
	for _, id := range s.order {
		out = append(out, *s.venues[id])
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) searchVenues(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []venue.Venue{}
	for _, id := range s.order {
		v := s.venues[id]
		if strings.Contains(strings.ToLower(v.Name), q) || strings.Contains(strings.ToLower(v.Description), q) {
			out = append(out, *v)
		}
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) getVenue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[chi.URLParam(r, "id")]
	if !ok {
		fail(w, http.StatusNotFound, "No venue with such ID")
		return
	}
	respond(w, http.StatusOK, v)
}

func (s *Server) createVenue(w http.ResponseWriter, r *http.Request) {
	var in venue.VenueInput
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.accounts[r.Header.Get("X-Test-User")]
	if owner == nil || !owner.profile.VenueManager {
		fail(w, http.StatusForbidden, "Only venue managers can create venues")
		return
	}

	profile := owner.profile
	id := s.addVenue(venue.Venue{
		Name:        in.Name,
		Description: in.Description,
		Media:       in.Media,
		Price:       in.Price,
		MaxGuests:   in.MaxGuests,
		Rating:      in.Rating,
		Meta:        in.Meta,
		Location:    in.Location,
		Owner:       &profile,
		Created:     time.Now().UTC(),
	})
	respond(w, http.StatusCreated, s.venues[id])
}

func (s *Server) deleteVenue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[id]
	if !ok {
		fail(w, http.StatusNotFound, "No venue with such ID")
		return
	}
	if v.Owner == nil || v.Owner.Name != r.Header.Get("X-Test-User") {
		fail(w, http.StatusForbidden, "You do not own this venue")
		return
	}
	delete(s.venues, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	var in venue.BookingInput
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[in.VenueID]
	if !ok {
		fail(w, http.StatusNotFound, "No venue with such ID")
		return
	}
	if err := venue.CheckAvailability(*v, in.DateFrom, in.DateTo, in.Guests); err != nil {
		fail(w, http.StatusConflict, "The selected dates are not available")
		return
	}

	customer := s.accounts[r.Header.Get("X-Test-User")].profile
	s.seq++
	b := venue.Booking{
		ID:       fmt.Sprintf("b-%d", s.seq),
		DateFrom: in.DateFrom,
		DateTo:   in.DateTo,
		Guests:   in.Guests,
		Created:  time.Now().UTC(),
		Customer: &customer,
	}
	v.Bookings = append(v.Bookings, b)
	respond(w, http.StatusCreated, b)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "meta": map[string]any{}})
}

func fail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors":     []map[string]string{{"message": message}},
		"status":     http.StatusText(status),
		"statusCode": status,
	})
}
