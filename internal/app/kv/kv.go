/*
Package kv is the persistent key-value store shared by every process of one installation.

It plays the part a browser's local storage plays for a web front end: the CLI, the
companion daemon and every tab connected to the daemon read and write the same keys, and
every effective write is announced to all watchers, including the writer itself. Writes are
last-write-wins per key. DeleteIfEqual is the one conditional write.
*/
package kv

import (
	"context"
	"sync"

	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/logx"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errs.Define(errs.ErrLocalStore, "kv: key not found")

// Change announces one effective write.
type Change struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

// Store is a persistent key-value store with change notifications.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes keys. Absent keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeleteIfEqual removes key only while it still holds expected, atomically with respect
	// to every writer sharing the backend. It reports whether the key was removed.
	DeleteIfEqual(ctx context.Context, key string, expected []byte) (bool, error)

	// Watch returns a channel of changes made by any writer sharing the backend.
	// The channel is closed when ctx is done or the store is closed.
	Watch(ctx context.Context) <-chan Change

	// Close releases the backend.
	Close() error
}

// watchBuffer is the per-watcher backlog; a watcher that falls further behind misses changes.
const watchBuffer = 64

// notifier fans changes out to watchers.
type notifier struct {
	mu     sync.Mutex
	subs   map[chan Change]struct{}
	closed bool
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[chan Change]struct{})}
}

func (n *notifier) subscribe(ctx context.Context) <-chan Change {
	ch := make(chan Change, watchBuffer)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch
	}
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.unsubscribe(ch)
	}()

	return ch
}

func (n *notifier) unsubscribe(ch chan Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[ch]; ok {
		delete(n.subs, ch)
		close(ch)
	}
}

func (n *notifier) publish(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs {
		select {
		case ch <- c:
		default:
			logx.Warn("kv watcher is lagging, change dropped", "key", c.Key)
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true

	for ch := range n.subs {
		delete(n.subs, ch)
		close(ch)
	}
}
