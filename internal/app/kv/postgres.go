package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"holidaze/internal/pkg/logx"
)

// NotifyChannel is the Postgres channel the kv_entries trigger notifies on.
const NotifyChannel = "holidaze_kv"

const (
	listenRetryDelay = 2 * time.Second
	listenReadyWait  = 5 * time.Second
)

// PostgresStore keeps values in the kv_entries table. A trigger announces every row change
// with pg_notify, so writes from any process reach every watcher.
type PostgresStore struct {
	pool     *pgxpool.Pool
	ownsPool bool

	n      *notifier
	log    zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

// NewPostgresStore serves the store from pool, whose schema must be migrated.
// When ownsPool is set, Close also closes the pool. It waits briefly for the change listener
// so that writes made right after it returns are announced.
func NewPostgresStore(pool *pgxpool.Pool, ownsPool bool) *PostgresStore {
	ctx, cancel := context.WithCancel(context.Background())

	s := &PostgresStore{
		pool:     pool,
		ownsPool: ownsPool,
		n:        newNotifier(),
		log:      logx.Component("kv.postgres"),
		cancel:   cancel,
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
	}

	go s.listenLoop(ctx)

	select {
	case <-s.ready:
	case <-time.After(listenReadyWait):
		s.log.Warn().Msg("Change listener not ready, continuing without it")
	}

	return s
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: reading %q: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("kv: writing %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("kv: deleting keys: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteIfEqual(ctx context.Context, key string, expected []byte) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1 AND value = $2`, key, expected)
	if err != nil {
		return false, fmt.Errorf("kv: deleting %q: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Watch(ctx context.Context) <-chan Change {
	return s.n.subscribe(ctx)
}

func (s *PostgresStore) Close() error {
	s.cancel()
	<-s.done
	s.n.close()

	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

// listenLoop holds one pooled connection in LISTEN mode, reconnecting until ctx is done.
func (s *PostgresStore) listenLoop(ctx context.Context) {
	defer close(s.done)

	for {
		err := s.listen(ctx)
		if ctx.Err() != nil {
			return
		}

		s.log.Warn().Err(err).Dur("retry_in", listenRetryDelay).Msg("Change listener disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetryDelay):
		}
	}
}

func (s *PostgresStore) listen(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("subscribing to %s: %w", NotifyChannel, err)
	}
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var c Change
		if err := json.Unmarshal([]byte(notification.Payload), &c); err != nil || c.Key == "" {
			s.log.Warn().Str("payload", notification.Payload).Msg("Ignoring malformed change notification")
			continue
		}
		s.n.publish(c)
	}
}
