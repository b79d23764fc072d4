package account

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holidaze/internal/app/gateway"
	"holidaze/internal/app/gateway/gatewaytest"
	"holidaze/internal/app/kv"
	"holidaze/internal/app/session"
	"holidaze/internal/app/user"
	"holidaze/internal/app/venue"
	"holidaze/internal/configs"
	"holidaze/internal/pkg/errs"
)

const password = "correct-horse"

func newService(t *testing.T, api *gatewaytest.Server, store kv.Store) *Service {
	t.Helper()
	svc := New(store, gateway.New(api.Config()))
	require.NoError(t, svc.Start(context.Background()))
	return svc
}

func seedAlice(api *gatewaytest.Server) {
	api.AddUser(user.Profile{
		Name:  "alice",
		Email: "alice@stud.noroff.no",
		Bio:   `Hello [FAVORITES]["v1"][/FAVORITES]`,
	}, password)
}

func seedManager(api *gatewaytest.Server) {
	api.AddUser(user.Profile{
		Name:         "marta",
		Email:        "marta@stud.noroff.no",
		VenueManager: true,
	}, password)
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestStartWithoutSession(t *testing.T) {
	api := gatewaytest.NewServer(t)
	svc := newService(t, api, kv.NewMemoryStore())

	snap := svc.Session.Snapshot()
	assert.Equal(t, session.StateAnonymous, snap.State)
	assert.Equal(t, "", svc.Favorites.Owner())
	assert.Empty(t, svc.Favorites.List())
}

func TestLoginStartsSessionWithCleanBio(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	svc := newService(t, api, kv.NewMemoryStore())

	snap, err := svc.Login(context.Background(), " alice@stud.noroff.no ", password)
	require.NoError(t, err)

	assert.True(t, snap.IsAuthenticated())
	assert.False(t, snap.IsVenueManager())
	assert.Equal(t, "Hello", snap.User.Bio, "the favorites block never reaches the session")
	assert.Equal(t, "alice", svc.Favorites.Owner())
	assert.Equal(t, []string{"v1"}, svc.Favorites.List())
}

func TestLoginRejected(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	svc := newService(t, api, kv.NewMemoryStore())

	_, err := svc.Login(context.Background(), "alice@stud.noroff.no", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	assert.Equal(t, errs.ErrInvalidCredentials, errs.CodeOf(err))
	assert.Equal(t, session.StateAnonymous, svc.Session.Snapshot().State)
}

func TestLoginWithRemoteDown(t *testing.T) {
	dead := httptest.NewServer(nil)
	dead.Close()

	store := kv.NewMemoryStore()
	svc := New(store, gateway.New(configs.APIConfig{BaseURL: dead.URL, Timeout: time.Second}))
	require.NoError(t, svc.Start(context.Background()))

	_, err := svc.Login(context.Background(), "alice@stud.noroff.no", password)
	assert.True(t, errors.Is(err, gateway.ErrRemoteUnavailable))
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
}

func TestRegisterThenLoginConsumesIntent(t *testing.T) {
	api := gatewaytest.NewServer(t)
	store := kv.NewMemoryStore()
	svc := newService(t, api, store)
	ctx := context.Background()

	p, err := svc.Register(ctx, gateway.RegisterInput{
		Name:         "marta",
		Email:        "marta@stud.noroff.no",
		Password:     password,
		VenueManager: true,
	})
	require.NoError(t, err)
	assert.True(t, p.VenueManager)

	raw, err := store.Get(ctx, kv.RegistrationIntentKey("marta"))
	require.NoError(t, err)
	assert.Equal(t, string(user.RoleVenueManager), string(raw))

	snap, err := svc.Login(ctx, "marta@stud.noroff.no", password)
	require.NoError(t, err)
	assert.True(t, snap.IsVenueManager())

	_, err = store.Get(ctx, kv.RegistrationIntentKey("marta"))
	assert.True(t, errors.Is(err, kv.ErrNotFound), "the intent is consumed by the first sign-in")
}

func TestRegistrationIntentGrantsMissingRole(t *testing.T) {
	api := gatewaytest.NewServer(t)
	api.AddUser(user.Profile{Name: "bob", Email: "bob@stud.noroff.no"}, password)
	store := kv.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, kv.RegistrationIntentKey("bob"), []byte(user.RoleVenueManager)))

	svc := newService(t, api, store)
	snap, err := svc.Login(ctx, "bob@stud.noroff.no", password)
	require.NoError(t, err)

	assert.True(t, snap.IsVenueManager())
	remote, _ := api.Profile("bob")
	assert.True(t, remote.VenueManager)
}

func TestRegisterDuplicate(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	svc := newService(t, api, kv.NewMemoryStore())

	_, err := svc.Register(context.Background(), gateway.RegisterInput{
		Name:     "alice",
		Email:    "other@stud.noroff.no",
		Password: password,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRegistrationFailed))

	customErr := errs.From(err)
	assert.Equal(t, errs.ErrRegistrationFailed, customErr.Code)
	assert.Equal(t, "Registration failed: Profile already exists", customErr.Message)
}

func TestUpdateProfileKeepsFavoritesBlock(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	svc := newService(t, api, kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice@stud.noroff.no", password)
	require.NoError(t, err)

	bio := "New bio"
	p, err := svc.UpdateProfile(ctx, ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "New bio", p.Bio)
	assert.Equal(t, "New bio", svc.Session.Snapshot().User.Bio)

	remote, _ := api.Profile("alice")
	assert.Equal(t, `New bio [FAVORITES]["v1"][/FAVORITES]`, remote.Bio)
}

func TestUpdateProfileWritesOverridesFirst(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	svc := newService(t, api, kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice@stud.noroff.no", password)
	require.NoError(t, err)

	api.SetProfilesDown(true)
	_, err = svc.UpdateProfile(ctx, ProfileUpdate{AvatarURL: "https://img.example/a.png"})
	assert.True(t, errors.Is(err, gateway.ErrRemoteUnavailable))

	got, err := svc.Appearance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/a.png", got.AvatarURL, "the override survives a failed remote write")
	assert.Equal(t, "A", got.Initial)
	assert.Equal(t, user.RoleCustomer, got.Role)
}

func TestUpdateProfileWithNothingToChange(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	svc := newService(t, api, kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice@stud.noroff.no", password)
	require.NoError(t, err)

	p, err := svc.UpdateProfile(ctx, ProfileUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.Zero(t, api.Calls("PUT /holidaze/profiles/{name}"))
}

func TestRoleGates(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	svc := newService(t, api, kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.RequireAuthenticated()
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
	_, err = svc.UpdateProfile(ctx, ProfileUpdate{})
	assert.Equal(t, errs.ErrUnauthorized, errs.CodeOf(err))

	_, err = svc.Login(ctx, "alice@stud.noroff.no", password)
	require.NoError(t, err)

	_, err = svc.RequireAuthenticated()
	assert.NoError(t, err)
	_, err = svc.RequireVenueManager()
	assert.True(t, errors.Is(err, ErrNotVenueManager))

	_, err = svc.CreateVenue(ctx, venue.VenueInput{Name: "Loft", Description: "Bright", MaxGuests: 2})
	assert.Equal(t, errs.ErrNotVenueManager, errs.CodeOf(err))
	assert.Zero(t, api.Calls("POST /holidaze/venues"), "the gate stops the call before the network")
}

func TestBookChecksAvailabilityFirst(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	id := api.AddVenue(venue.Venue{
		Name:      "Cabin",
		MaxGuests: 4,
		Price:     100,
		Bookings:  []venue.Booking{{ID: "b0", DateFrom: day("2026-11-10"), DateTo: day("2026-11-15"), Guests: 2}},
	})
	svc := newService(t, api, kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Book(ctx, venue.BookingInput{VenueID: id, DateFrom: day("2026-11-01"), DateTo: day("2026-11-03"), Guests: 1})
	assert.True(t, errors.Is(err, ErrNotAuthenticated))

	_, err = svc.Login(ctx, "alice@stud.noroff.no", password)
	require.NoError(t, err)

	_, err = svc.Book(ctx, venue.BookingInput{VenueID: id, DateFrom: day("2026-11-12"), DateTo: day("2026-11-16"), Guests: 1})
	assert.True(t, errors.Is(err, venue.ErrUnavailable))
	assert.Zero(t, api.Calls("POST /holidaze/bookings"))

	b, err := svc.Book(ctx, venue.BookingInput{VenueID: id, DateFrom: day("2026-11-15"), DateTo: day("2026-11-18"), Guests: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)

	mine, err := svc.MyBookings(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, b.ID, mine[0].ID)

	_, err = svc.Book(ctx, venue.BookingInput{VenueID: "missing", DateFrom: day("2026-12-01"), DateTo: day("2026-12-02"), Guests: 1})
	assert.True(t, errors.Is(err, venue.ErrNotFound))
}

func TestVenueManagerListsAndDeletes(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedManager(api)
	svc := newService(t, api, kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Login(ctx, "marta@stud.noroff.no", password)
	require.NoError(t, err)

	_, err = svc.CreateVenue(ctx, venue.VenueInput{Name: "Loft"})
	assert.True(t, errors.Is(err, venue.ErrInvalidVenue))

	v, err := svc.CreateVenue(ctx, venue.VenueInput{Name: "Loft", Description: "Bright", Price: 90, MaxGuests: 2})
	require.NoError(t, err)

	mine, err := svc.MyVenues(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Loft", mine[0].Name)

	require.NoError(t, svc.DeleteVenue(ctx, v.ID))
	assert.True(t, errors.Is(svc.DeleteVenue(ctx, v.ID), venue.ErrNotFound))
}

func TestLogoutSwitchesFavoritesToAnonymous(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	store := kv.NewMemoryStore()
	svc := newService(t, api, store)
	ctx := context.Background()

	require.NoError(t, svc.Favorites.Add(ctx, "guest-pick"))

	_, err := svc.Login(ctx, "alice@stud.noroff.no", password)
	require.NoError(t, err)
	require.NoError(t, svc.Overrides.SetAvatar(ctx, "alice", user.RoleCustomer, "https://img.example/a.png"))

	require.NoError(t, svc.Logout(ctx))

	assert.Equal(t, session.StateAnonymous, svc.Session.Snapshot().State)
	assert.Equal(t, "", svc.Favorites.Owner())
	assert.Equal(t, []string{"guest-pick"}, svc.Favorites.List())

	avatar, err := svc.Overrides.Avatar(ctx, "alice", user.RoleCustomer)
	require.NoError(t, err)
	assert.Empty(t, avatar, "overrides leave with the user")

	require.NoError(t, svc.Logout(ctx), "logging out twice is fine")
}

func TestServicesSharingAStoreConverge(t *testing.T) {
	api := gatewaytest.NewServer(t)
	seedAlice(api)
	store := kv.NewMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	follower := newService(t, api, store)
	go follower.Run(ctx)

	leader := newService(t, api, store)
	_, err := leader.Login(ctx, "alice@stud.noroff.no", password)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return follower.Session.Snapshot().Handle() == "alice" && follower.Favorites.Owner() == "alice"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"v1"}, follower.Favorites.List())

	require.NoError(t, leader.Favorites.Add(ctx, "v2"))
	require.Eventually(t, func() bool {
		return follower.Favorites.IsFavorite("v2")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, leader.Logout(ctx))
	require.Eventually(t, func() bool {
		return follower.Session.Snapshot().State == session.StateAnonymous && follower.Favorites.Owner() == ""
	}, 2*time.Second, 10*time.Millisecond)
}
