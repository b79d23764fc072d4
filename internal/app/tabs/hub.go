package tabs

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"holidaze/internal/app/kv"
	"holidaze/internal/app/session"
	"holidaze/internal/pkg/logx"
	"holidaze/internal/pkg/metrics"
)

const (
	broadcastChannelBuffer = 1024

	defaultSendBuffer = 64
)

// StateFunc returns the state a tab starts from. TabID is filled in by the hub.
type StateFunc func(ctx context.Context) (InitPayload, error)

// Option configures a Hub.
type Option func(*Hub)

// WithMetrics records connected tabs and broadcast events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithSendBuffer sets how many events may queue for one tab before it is dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// Hub fans events out to every connected tab.
type Hub struct {
	state StateFunc

	// a map of connected tabs, keyed by tab id. Owned by the Run loop.
	clients map[string]*Client

	// mu protects count, which mirrors len(clients) for readers outside the loop.
	mu    sync.RWMutex
	count int

	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	resync     chan *Client

	// done is closed when Run returns.
	done     chan struct{}
	stopOnce sync.Once

	sendBuffer int
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewHub creates a hub that greets tabs with state.
func NewHub(state StateFunc, opts ...Option) *Hub {
	h := &Hub{
		state:      state,
		clients:    make(map[string]*Client),
		broadcast:  make(chan Event, broadcastChannelBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		resync:     make(chan *Client),
		done:       make(chan struct{}),
		sendBuffer: defaultSendBuffer,
		logger:     logx.Component("tabs"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run is the hub's event loop. It returns when ctx is done, closing every tab.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.stopOnce.Do(func() { close(h.done) })

		for id, c := range h.clients {
			delete(h.clients, id)
			close(c.send)
			h.metrics.TabConnected(-1)
		}
		h.setCount(0)
		h.logger.Info().Msg("Tab hub stopped.")
	}()

	for {
		select {
		case c := <-h.register:
			h.clients[c.id] = c
			h.setCount(len(h.clients))
			h.metrics.TabConnected(1)
			h.logger.Info().Str("tab_id", c.id).Int("total_tabs", len(h.clients)).Msg("Tab connected.")
			h.sendInit(ctx, c)

		case c := <-h.unregister:
			if current, ok := h.clients[c.id]; ok && current == c {
				h.drop(c)
				h.logger.Info().Str("tab_id", c.id).Int("total_tabs", len(h.clients)).Msg("Tab disconnected.")
			}

		case c := <-h.resync:
			if _, ok := h.clients[c.id]; ok {
				h.sendInit(ctx, c)
			}

		case ev := <-h.broadcast:
			h.fanOut(ev)

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) fanOut(ev Event) {
	data, err := encode(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("Error marshaling event for broadcast.")
		return
	}
	h.metrics.IncTabEvent(string(ev.Type))

	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Str("tab_id", c.id).Msg("Tab send queue full, dropping tab.")
			h.drop(c)
		}
	}
}

func (h *Hub) sendInit(ctx context.Context, c *Client) {
	payload, err := h.state(ctx)
	if err != nil {
		h.logger.Error().Err(err).Str("tab_id", c.id).Msg("Failed to build INIT state.")
		c.queueError(err)
		return
	}
	payload.TabID = c.id

	if !c.queue(NewEvent(TypeInit, payload)) {
		h.drop(c)
	}
}

// drop removes c and closes its queue. Must run on the loop goroutine.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c.id)
	close(c.send)
	h.setCount(len(h.clients))
	h.metrics.TabConnected(-1)
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Len returns the number of connected tabs.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Publish queues ev for every tab. It never blocks; events are dropped when the hub is
// stopped or its queue is full.
func (h *Hub) Publish(ev Event) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn().Str("type", string(ev.Type)).Msg("Broadcast channel full, dropping event.")
	}
}

// SessionListener returns a session listener that publishes SESSION_CHANGED.
func (h *Hub) SessionListener() session.Listener {
	return func(_ context.Context, snap session.Snapshot) {
		h.Publish(NewEvent(TypeSessionChanged, SessionChangedPayload{Session: snap}))
	}
}

// Follow publishes STORAGE_CHANGED for every change read from changes, typically a
// kv.Store Watch channel, until it is closed.
func (h *Hub) Follow(changes <-chan kv.Change) {
	for c := range changes {
		h.Publish(NewEvent(TypeStorageChanged, StorageChangedPayload{Key: c.Key, Deleted: c.Deleted}))
	}
}

// Serve runs the tab on conn until it disconnects or the hub stops.
func (h *Hub) Serve(conn *websocket.Conn, id string) {
	c := newClient(h, conn, id)

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

func (h *Hub) requestSync(c *Client) {
	select {
	case h.resync <- c:
	case <-h.done:
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
