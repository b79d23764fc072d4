package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"holidaze/internal/pkg/logx"
)

// RedisStore keeps values under a key prefix and announces every write on a pub/sub channel.
type RedisStore struct {
	client     *redis.Client
	ownsClient bool
	prefix     string
	channel    string

	n      *notifier
	log    zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisStore serves the store from client. Keys are stored as prefix+key and changes are
// published on prefix+"changes". When ownsClient is set, Close also closes the client.
func NewRedisStore(client *redis.Client, prefix string, ownsClient bool) *RedisStore {
	ctx, cancel := context.WithCancel(context.Background())

	s := &RedisStore{
		client:     client,
		ownsClient: ownsClient,
		prefix:     prefix,
		channel:    prefix + "changes",
		n:          newNotifier(),
		log:        logx.Component("kv.redis"),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	pubsub := client.Subscribe(ctx, s.channel)

	// Wait for the subscription so that writes made right after this returns are announced.
	if _, err := pubsub.Receive(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Subscribing to change channel failed")
	}

	go s.subscribeLoop(ctx, pubsub)

	return s
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: reading %q: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	payload, err := json.Marshal(Change{Key: key})
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.prefix+key, value, 0)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("kv: writing %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		removed, err := s.client.Del(ctx, s.prefix+key).Result()
		if err != nil {
			return fmt.Errorf("kv: deleting %q: %w", key, err)
		}
		if removed == 0 {
			continue
		}

		payload, err := json.Marshal(Change{Key: key, Deleted: true})
		if err != nil {
			return err
		}
		if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
			return fmt.Errorf("kv: announcing deletion of %q: %w", key, err)
		}
	}
	return nil
}

// deleteIfEqualScript removes KEYS[1] when it holds ARGV[1] and announces the deletion.
var deleteIfEqualScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("PUBLISH", ARGV[2], ARGV[3])
	return 1
end
return 0
`)

func (s *RedisStore) DeleteIfEqual(ctx context.Context, key string, expected []byte) (bool, error) {
	payload, err := json.Marshal(Change{Key: key, Deleted: true})
	if err != nil {
		return false, err
	}

	removed, err := deleteIfEqualScript.Run(ctx, s.client, []string{s.prefix + key}, expected, s.channel, payload).Int()
	if err != nil {
		return false, fmt.Errorf("kv: deleting %q: %w", key, err)
	}
	return removed == 1, nil
}

func (s *RedisStore) Watch(ctx context.Context) <-chan Change {
	return s.n.subscribe(ctx)
}

func (s *RedisStore) Close() error {
	s.cancel()
	<-s.done
	s.n.close()

	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStore) subscribeLoop(ctx context.Context, pubsub *redis.PubSub) {
	defer close(s.done)
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil || c.Key == "" {
				s.log.Warn().Str("payload", msg.Payload).Msg("Ignoring malformed change message")
				continue
			}
			s.n.publish(c)
		}
	}
}
