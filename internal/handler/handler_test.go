package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holidaze/internal/app/account"
	"holidaze/internal/app/gateway"
	"holidaze/internal/app/gateway/gatewaytest"
	"holidaze/internal/app/kv"
	"holidaze/internal/app/session"
	"holidaze/internal/app/storage"
	"holidaze/internal/app/tabs"
	"holidaze/internal/app/user"
	"holidaze/internal/app/venue"
	"holidaze/internal/configs"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/metrics"
)

const password = "correct-horse"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fakeBackend struct{}

func (fakeBackend) PresignUpload(_ context.Context, key, _ string, _ int64, _ time.Duration) (string, error) {
	return "https://uploads.example/" + key + "?sig=1", nil
}

func (fakeBackend) Delete(context.Context, string) error { return nil }

func (fakeBackend) GetObjectMetadata(_ context.Context, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, ContentType: "image/png", Size: 2048}, nil
}

type fixture struct {
	api   *gatewaytest.Server
	svc   *account.Service
	store kv.Store
	m     *metrics.Metrics
	srv   *httptest.Server
}

func newFixture(t *testing.T, media *storage.Service, tweaks ...func(*configs.AppConfig)) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	api := gatewaytest.NewServer(t)
	api.AddUser(user.Profile{Name: "alice", Email: "alice@stud.noroff.no", Bio: `Hi [FAVORITES]["v1"][/FAVORITES]`}, password)
	api.AddUser(user.Profile{Name: "marta", Email: "marta@stud.noroff.no", VenueManager: true}, password)

	m := metrics.New()
	client := gateway.New(api.Config(), gateway.WithMetrics(m))
	store := kv.NewMemoryStore()
	svc := account.New(store, client, account.WithMetrics(m))
	require.NoError(t, svc.Start(ctx))

	hub := tabs.NewHub(TabState(svc), tabs.WithMetrics(m))
	svc.Session.Subscribe(hub.SessionListener())
	go hub.Run(ctx)

	if media == nil {
		media = storage.NewService(nil, "")
	}

	cfg := configs.Defaults()
	for _, tweak := range tweaks {
		tweak(cfg)
	}
	srv := httptest.NewServer(Router(ctx, &AppDeps{
		Config:  cfg,
		Account: svc,
		Catalog: client,
		Storage: media,
		Hub:     hub,
		Metrics: m,
	}))
	t.Cleanup(srv.Close)

	return &fixture{api: api, svc: svc, store: store, m: m, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(data)
		}
		reader = strings.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	return res.StatusCode, env
}

func (f *fixture) login(t *testing.T, email string) {
	t.Helper()
	status, env := f.do(t, http.MethodPost, "/api/auth/login", LoginInput{Email: email, Password: password})
	require.Equal(t, http.StatusOK, status, env.Message)
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	status, env := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, env.Code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
}

func TestLoginAndSession(t *testing.T) {
	f := newFixture(t, nil)

	status, env := f.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, session.StateAnonymous, decodeData[session.Snapshot](t, env).State)

	status, env = f.do(t, http.MethodPost, "/api/auth/login", LoginInput{Email: "alice@stud.noroff.no", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrInvalidCredentials, env.Code)

	f.login(t, "alice@stud.noroff.no")

	status, env = f.do(t, http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, status)
	profile := decodeData[user.Profile](t, env)
	assert.Equal(t, "alice", profile.Name)
	assert.Equal(t, "Hi", profile.Bio)

	status, env = f.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, session.StateAuthenticated, decodeData[session.Snapshot](t, env).State)
	assert.NotContains(t, string(env.Data), "token")

	status, _ = f.do(t, http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = f.do(t, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrUnauthorized, env.Code)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, nil)

	status, env := f.do(t, http.MethodPost, "/api/auth/login", LoginInput{Email: " "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidParams, env.Code)

	status, env = f.do(t, http.MethodPost, "/api/auth/register", `{"name":"bob","unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidJSONFormat, env.Code)

	status, env = f.do(t, http.MethodPost, "/api/auth/register", `{"name":"bob"} {}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrExtraContentInBody, env.Code)

	req, err := http.NewRequest(http.MethodPut, f.srv.URL+"/api/profile", bytes.NewBufferString("bio=x"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, res.StatusCode)

	status, env = f.do(t, http.MethodGet, "/api/venues?limit=1000", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidParams, env.Code)
}

func TestRegister(t *testing.T) {
	f := newFixture(t, nil)

	status, env := f.do(t, http.MethodPost, "/api/auth/register", gateway.RegisterInput{
		Name: "bob", Email: "bob@stud.noroff.no", Password: "long-enough", VenueManager: true,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.Equal(t, "bob", decodeData[user.Profile](t, env).Name)

	status, env = f.do(t, http.MethodPost, "/api/auth/register", gateway.RegisterInput{
		Name: "bob", Email: "bob@stud.noroff.no", Password: "long-enough",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrRegistrationFailed, env.Code)
	assert.True(t, strings.HasPrefix(env.Message, "Registration failed: "), env.Message)
}

func TestFavoritesRoutes(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, "alice@stud.noroff.no")

	status, env := f.do(t, http.MethodPut, "/api/favorites/v2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[FavoriteView](t, env).Favorite)

	status, env = f.do(t, http.MethodGet, "/api/favorites", nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeData[FavoritesView](t, env)
	assert.Equal(t, "alice", list.Owner)
	assert.Equal(t, []string{"v1", "v2"}, list.IDs)

	remote, ok := f.api.Profile("alice")
	require.True(t, ok)
	assert.Equal(t, `Hi [FAVORITES]["v1","v2"][/FAVORITES]`, remote.Bio)

	status, _ = f.do(t, http.MethodDelete, "/api/favorites/v1", nil)
	require.Equal(t, http.StatusOK, status)

	_, env = f.do(t, http.MethodGet, "/api/favorites/v1", nil)
	assert.False(t, decodeData[FavoriteView](t, env).Favorite)
	_, env = f.do(t, http.MethodGet, "/api/favorites/v2", nil)
	assert.True(t, decodeData[FavoriteView](t, env).Favorite)
}

func TestVenueRoutes(t *testing.T) {
	f := newFixture(t, nil)
	id := f.api.AddVenue(venue.Venue{Name: "Seaside Cabin", MaxGuests: 4, Price: 120})
	f.api.AddVenue(venue.Venue{Name: "City Loft", MaxGuests: 2, Price: 90})

	status, env := f.do(t, http.MethodGet, "/api/venues", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]venue.Venue](t, env), 2)

	status, env = f.do(t, http.MethodGet, "/api/venues?q=cabin", nil)
	require.Equal(t, http.StatusOK, status)
	found := decodeData[[]venue.Venue](t, env)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	status, env = f.do(t, http.MethodGet, "/api/venues/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Seaside Cabin", decodeData[venue.Venue](t, env).Name)

	status, env = f.do(t, http.MethodGet, "/api/venues/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errs.ErrVenueNotFound, env.Code)
}

func TestVenueManagementIsGated(t *testing.T) {
	f := newFixture(t, nil)
	input := venue.VenueInput{Name: "Barn", Description: "Quiet", Price: 50, MaxGuests: 3}

	status, env := f.do(t, http.MethodPost, "/api/venues", input)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrUnauthorized, env.Code)

	f.login(t, "alice@stud.noroff.no")
	status, env = f.do(t, http.MethodPost, "/api/venues", input)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, errs.ErrNotVenueManager, env.Code)
	assert.Zero(t, f.api.Calls("POST /holidaze/venues"))

	f.do(t, http.MethodPost, "/api/auth/logout", nil)
	f.login(t, "marta@stud.noroff.no")

	status, env = f.do(t, http.MethodPost, "/api/venues", input)
	require.Equal(t, http.StatusCreated, status, env.Message)
	created := decodeData[venue.Venue](t, env)

	status, env = f.do(t, http.MethodGet, "/api/profile/venues", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]venue.Venue](t, env), 1)

	status, _ = f.do(t, http.MethodDelete, "/api/venues/"+created.ID, nil)
	require.Equal(t, http.StatusOK, status)
	_, ok := f.api.Venue(created.ID)
	assert.False(t, ok)
}

func TestBookingRoute(t *testing.T) {
	f := newFixture(t, nil)
	id := f.api.AddVenue(venue.Venue{
		Name:      "Cabin",
		MaxGuests: 2,
		Price:     100,
		Bookings: []venue.Booking{{
			ID:       "b0",
			DateFrom: time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC),
			DateTo:   time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC),
			Guests:   1,
		}},
	})
	f.login(t, "alice@stud.noroff.no")

	status, env := f.do(t, http.MethodPost, "/api/bookings", `{"venueId":"`+id+`","dateFrom":"2026-11-12T00:00:00Z","dateTo":"2026-11-14T00:00:00Z","guests":1}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, errs.ErrVenueUnavailable, env.Code)

	status, env = f.do(t, http.MethodPost, "/api/bookings", `{"venueId":"`+id+`","dateFrom":"2026-11-20T00:00:00Z","dateTo":"2026-11-22T00:00:00Z","guests":5}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidBooking, env.Code)

	status, env = f.do(t, http.MethodPost, "/api/bookings", `{"venueId":"`+id+`","dateFrom":"2026-11-15T00:00:00Z","dateTo":"2026-11-17T00:00:00Z","guests":2}`)
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.NotEmpty(t, decodeData[venue.Booking](t, env).ID)

	status, env = f.do(t, http.MethodGet, "/api/profile/bookings", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]venue.Booking](t, env), 1)
}

func TestProfileUpdateAndAppearance(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, "alice@stud.noroff.no")

	status, env := f.do(t, http.MethodPut, "/api/profile", UpdateProfileInput{AvatarURL: "https://img.example/a.png"})
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, "https://img.example/a.png", decodeData[user.Profile](t, env).AvatarURL())

	status, env = f.do(t, http.MethodGet, "/api/profile/appearance", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), "https://img.example/a.png")
}

func TestMediaDisabled(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, "alice@stud.noroff.no")

	status, env := f.do(t, http.MethodPost, "/api/media/presign", storage.UploadRequest{
		Kind: storage.KindAvatar, FileName: "me.png", MimeType: "image/png", Size: 1024,
	})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, errs.ErrStorageNotConfigured, env.Code)
}

func TestMediaPresignAndConfirm(t *testing.T) {
	f := newFixture(t, storage.NewService(fakeBackend{}, "https://cdn.example/media"))

	status, _ := f.do(t, http.MethodPost, "/api/media/presign", storage.UploadRequest{
		Kind: storage.KindAvatar, FileName: "me.png", MimeType: "image/png", Size: 1024,
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	f.login(t, "alice@stud.noroff.no")

	status, env := f.do(t, http.MethodPost, "/api/media/presign", storage.UploadRequest{
		Kind: storage.KindAvatar, FileName: "me.bmp", MimeType: "image/bmp", Size: 1024,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrFileTypeInvalid, env.Code)

	status, env = f.do(t, http.MethodPost, "/api/media/presign", storage.UploadRequest{
		Kind: storage.KindAvatar, FileName: "me.png", MimeType: "image/png", Size: 1024,
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	upload := decodeData[storage.Upload](t, env)
	assert.True(t, strings.HasPrefix(upload.Key, "avatar/alice/"), upload.Key)

	status, env = f.do(t, http.MethodPost, "/api/media/confirm", ConfirmImageInput{Kind: storage.KindAvatar, FileKey: upload.Key, Alt: "me"})
	require.Equal(t, http.StatusOK, status, env.Message)
	profile := decodeData[user.Profile](t, env)
	assert.Equal(t, upload.PublicURL, profile.AvatarURL())

	status, env = f.do(t, http.MethodPost, "/api/media/confirm", ConfirmImageInput{Kind: storage.KindAvatar, FileKey: "avatar/marta/x.png"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotZero(t, env.Code)
}

func TestAuthRateLimit(t *testing.T) {
	f := newFixture(t, nil)

	var status int
	var env envelope
	for i := 0; i < AuthBurst+1; i++ {
		status, env = f.do(t, http.MethodPost, "/api/auth/login", LoginInput{})
	}
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, errs.ErrRateLimitExceeded, env.Code)

	res, err := f.srv.Client().Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `holidaze_ratelimit_rejections_total{scope="auth"} 1`)
}

func TestWebSocketTab(t *testing.T) {
	f := newFixture(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Type    tabs.EventType   `json:"type"`
		Payload tabs.InitPayload `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, tabs.TypeInit, ev.Type)
	assert.Equal(t, session.StateAnonymous, ev.Payload.Session.State)
	assert.NotEmpty(t, ev.Payload.TabID)

	f.login(t, "alice@stud.noroff.no")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var changed struct {
		Type    tabs.EventType             `json:"type"`
		Payload tabs.SessionChangedPayload `json:"payload"`
	}
	for changed.Type != tabs.TypeSessionChanged {
		require.NoError(t, conn.ReadJSON(&changed))
	}
	assert.Equal(t, "alice", changed.Payload.Session.Handle())
}

func preflight(t *testing.T, f *fixture, method, path, origin string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	res, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	return res
}

func TestCrossOriginPreflight(t *testing.T) {
	t.Run("foreign origin in development", func(t *testing.T) {
		f := newFixture(t, nil)
		res := preflight(t, f, http.MethodDelete, "/api/venues/abc", "https://evil.example")
		assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
		assert.Empty(t, res.Header.Get("Access-Control-Allow-Methods"))
	})

	t.Run("loopback page in development", func(t *testing.T) {
		f := newFixture(t, nil)
		res := preflight(t, f, http.MethodDelete, "/api/venues/abc", "http://localhost:5173")
		assert.Equal(t, "http://localhost:5173", res.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("production without allowed origins", func(t *testing.T) {
		f := newFixture(t, nil, func(c *configs.AppConfig) { c.Environment = "production" })
		for _, origin := range []string{"https://evil.example", "http://localhost:5173"} {
			res := preflight(t, f, http.MethodDelete, "/api/venues/abc", origin)
			assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"), origin)
		}
	})

	t.Run("configured origin in production", func(t *testing.T) {
		f := newFixture(t, nil, func(c *configs.AppConfig) {
			c.Environment = "production"
			c.AllowedOrigins = []string{"https://holidaze.example"}
		})
		res := preflight(t, f, http.MethodPut, "/api/profile", "https://holidaze.example")
		assert.Equal(t, "https://holidaze.example", res.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestForeignOriginCannotActAsUser(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, "alice@stud.noroff.no")

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/auth/logout", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	res, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, errs.ErrOriginNotAllowed, env.Code)
	assert.True(t, f.svc.Session.Snapshot().IsAuthenticated(), "session must survive")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, wsRes, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http")+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, wsRes)
	assert.Equal(t, http.StatusForbidden, wsRes.StatusCode)
}
