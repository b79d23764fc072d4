package tabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holidaze/internal/app/kv"
	"holidaze/internal/app/session"
	"holidaze/internal/app/user"
	"holidaze/internal/pkg/metrics"
	"holidaze/internal/pkg/randx"
)

type received struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type fixture struct {
	store kv.Store
	sess  *session.Store
	hub   *Hub
	m     *metrics.Metrics
	url   string
}

func newFixture(t *testing.T, ctx context.Context) *fixture {
	t.Helper()

	store := kv.NewMemoryStore()
	sess := session.New(store)
	require.NoError(t, sess.Initialize(ctx))

	m := metrics.New()
	hub := NewHub(func(ctx context.Context) (InitPayload, error) {
		return InitPayload{Session: sess.Snapshot(), Favorites: []string{"v1"}}, nil
	}, WithMetrics(m))
	sess.Subscribe(hub.SessionListener())

	go hub.Run(ctx)
	go hub.Follow(store.Watch(ctx))

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		id, err := randx.TabID()
		if err != nil {
			conn.Close()
			return
		}
		hub.Serve(conn, id)
	}))
	t.Cleanup(srv.Close)

	return &fixture{store: store, sess: sess, hub: hub, m: m, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev received
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestTabReceivesInit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, ctx)

	conn := dial(t, f.url)
	ev := next(t, conn)
	require.Equal(t, TypeInit, ev.Type)

	var init InitPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &init))
	assert.True(t, randx.IsValidTabID(init.TabID))
	assert.Equal(t, session.StateAnonymous, init.Session.State)
	assert.Equal(t, []string{"v1"}, init.Favorites)

	assert.Equal(t, 1, f.hub.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.TabsConnected))
}

func TestTabsFollowStoreAndSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, ctx)

	a := dial(t, f.url)
	b := dial(t, f.url)
	require.Equal(t, TypeInit, next(t, a).Type)
	require.Equal(t, TypeInit, next(t, b).Type)

	require.NoError(t, f.store.Set(ctx, kv.FavoritesKey("alice"), []byte(`["v2"]`)))
	for _, conn := range []*websocket.Conn{a, b} {
		ev := next(t, conn)
		require.Equal(t, TypeStorageChanged, ev.Type)
		var p StorageChangedPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &p))
		assert.Equal(t, kv.FavoritesKey("alice"), p.Key)
	}

	require.NoError(t, f.sess.Login(ctx, "tok", user.Profile{Name: "alice"}))

	types := map[EventType]json.RawMessage{}
	for i := 0; i < 2; i++ {
		ev := next(t, a)
		types[ev.Type] = ev.Payload
	}
	require.Contains(t, types, TypeStorageChanged)
	require.Contains(t, types, TypeSessionChanged)

	var p SessionChangedPayload
	require.NoError(t, json.Unmarshal(types[TypeSessionChanged], &p))
	assert.Equal(t, session.StateAuthenticated, p.Session.State)
	assert.Equal(t, "alice", p.Session.Handle())
	assert.NotContains(t, string(types[TypeSessionChanged]), "tok", "the token never leaves the process")
}

func TestSyncResendsInit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, ctx)

	conn := dial(t, f.url)
	first := next(t, conn)
	require.Equal(t, TypeInit, first.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "PING_ME"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": string(TypeSync)}))

	again := next(t, conn)
	require.Equal(t, TypeInit, again.Type)
	assert.JSONEq(t, string(first.Payload), string(again.Payload))
}

func TestDisconnectedTabLeaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, ctx)

	conn := dial(t, f.url)
	next(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.m.TabsConnected))
}

func TestStoppingHubClosesTabs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, ctx)

	conn := dial(t, f.url)
	next(t, conn)

	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	f.hub.Publish(NewEvent(TypeStorageChanged, StorageChangedPayload{Key: "k"}))
}

func TestSlowTabIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(func(context.Context) (InitPayload, error) { return InitPayload{}, nil }, WithSendBuffer(1))
	go hub.Run(ctx)

	c := newClient(hub, nil, "tab_slow0001")
	hub.register <- c

	hub.Publish(NewEvent(TypeStorageChanged, StorageChangedPayload{Key: "k"}))

	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	first, ok := <-c.send
	require.True(t, ok)
	assert.Contains(t, string(first), `"INIT"`)
	_, ok = <-c.send
	assert.False(t, ok, "the queue of a dropped tab is closed")
}

func TestInitFailureIsReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(func(context.Context) (InitPayload, error) { return InitPayload{}, errors.New("store down") })
	go hub.Run(ctx)

	c := newClient(hub, nil, "tab_fail0001")
	hub.register <- c

	data := <-c.send
	var ev struct {
		Type    EventType    `json:"type"`
		Payload ErrorPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, TypeError, ev.Type)
	assert.NotZero(t, ev.Payload.Code)
}
