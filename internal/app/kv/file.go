package kv

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/logx"
)

var (
	// ErrSealed is returned when the store file is sealed and no passphrase was configured.
	ErrSealed = errs.Define(errs.ErrLocalStore, "kv: store file is sealed, a passphrase is required")

	// ErrBadPassphrase is returned when the store file cannot be opened with the configured passphrase.
	ErrBadPassphrase = errs.Define(errs.ErrLocalStore, "kv: wrong passphrase or corrupted store file")
)

const (
	fileFormatVersion = 1
	saltSize          = 16
	nonceSize         = 24

	lockRetryDelay = 10 * time.Millisecond

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// fileDocument is the on-disk layout. Exactly one of Entries or Sealed is used.
type fileDocument struct {
	Version int               `json:"version"`
	Entries map[string][]byte `json:"entries,omitempty"`
	Salt    []byte            `json:"salt,omitempty"`
	Sealed  []byte            `json:"sealed,omitempty"`
}

// FileStore keeps every value in one JSON document on disk, replaced atomically on write.
// With a passphrase the entries are sealed with secretbox under an argon2id-derived key.
// Writers in every process serialize on a sidecar lock file, so a read-modify-write never
// drops keys another process just wrote. Other processes' writes are picked up by polling.
type FileStore struct {
	path       string
	passphrase []byte
	lock       *flock.Flock

	mu       sync.Mutex
	raw      []byte
	snapshot map[string][]byte
	salt     []byte
	key      *[argonKeyLen]byte

	n    *notifier
	log  zerolog.Logger
	stop chan struct{}
	done chan struct{}
}

// NewFileStore opens (or creates on first write) the store at path.
// A positive poll interval enables change detection for writes made by other processes.
func NewFileStore(path, passphrase string, poll time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("kv: creating store directory: %w", err)
	}

	s := &FileStore{
		path:       path,
		passphrase: []byte(passphrase),
		lock:       flock.New(path + ".lock"),
		snapshot:   make(map[string][]byte),
		n:          newNotifier(),
		log:        logx.Component("kv.file").With().Str("path", path).Logger(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	if _, err := s.refresh(); err != nil {
		return nil, err
	}

	if poll > 0 {
		go s.pollLoop(poll)
	} else {
		close(s.done)
	}

	return s, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	changes, err := s.refresh()
	v, ok := s.snapshot[key]
	v = bytes.Clone(v)
	s.mu.Unlock()

	s.publish(changes)

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	return s.mutate(ctx, func(entries map[string][]byte) []Change {
		entries[key] = bytes.Clone(value)
		return []Change{{Key: key}}
	})
}

func (s *FileStore) Delete(ctx context.Context, keys ...string) error {
	return s.mutate(ctx, func(entries map[string][]byte) []Change {
		var changes []Change
		for _, key := range keys {
			if _, ok := entries[key]; ok {
				delete(entries, key)
				changes = append(changes, Change{Key: key, Deleted: true})
			}
		}
		return changes
	})
}

func (s *FileStore) DeleteIfEqual(ctx context.Context, key string, expected []byte) (bool, error) {
	removed := false
	err := s.mutate(ctx, func(entries map[string][]byte) []Change {
		if v, ok := entries[key]; !ok || !bytes.Equal(v, expected) {
			return nil
		}
		delete(entries, key)
		removed = true
		return []Change{{Key: key, Deleted: true}}
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *FileStore) Watch(ctx context.Context) <-chan Change {
	return s.n.subscribe(ctx)
}

func (s *FileStore) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	s.n.close()
	return s.lock.Close()
}

// mutate applies fn to the freshest entries and writes them back when fn reports changes.
// Changes other processes made since the last read are announced along with fn's own.
func (s *FileStore) mutate(ctx context.Context, fn func(entries map[string][]byte) []Change) error {
	s.mu.Lock()
	changes, err := s.mutateLocked(ctx, fn)
	s.mu.Unlock()

	s.publish(changes)
	return err
}

// mutateLocked holds the file lock from the read to the rename. The caller holds mu, which
// also keeps a second goroutine from reusing the already-held file lock.
func (s *FileStore) mutateLocked(ctx context.Context, fn func(entries map[string][]byte) []Change) ([]Change, error) {
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err == nil && !locked {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("kv: locking store file: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn().Err(err).Msg("Unlocking store file failed")
		}
	}()

	external, err := s.refresh()
	if err != nil {
		return external, err
	}

	entries := make(map[string][]byte, len(s.snapshot))
	for k, v := range s.snapshot {
		entries[k] = v
	}

	own := fn(entries)
	if len(own) == 0 {
		return external, nil
	}

	raw, err := s.encode(entries)
	if err == nil {
		err = writeAtomic(s.path, raw)
	}
	if err != nil {
		return external, fmt.Errorf("kv: writing store file: %w", err)
	}

	s.raw = raw
	s.snapshot = entries
	return append(external, own...), nil
}

// refresh reloads the document when the file content changed and returns what changed.
// The caller holds mu.
func (s *FileStore) refresh() ([]Change, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		raw, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: reading store file: %w", err)
	}

	if bytes.Equal(raw, s.raw) {
		return nil, nil
	}

	entries, err := s.decode(raw)
	if err != nil {
		return nil, err
	}

	changes := diffEntries(s.snapshot, entries)
	s.raw = raw
	s.snapshot = entries
	return changes, nil
}

func (s *FileStore) pollLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			changes, err := s.refresh()
			s.mu.Unlock()

			if err != nil {
				s.log.Warn().Err(err).Msg("Polling store file failed")
				continue
			}
			s.publish(changes)
		}
	}
}

func (s *FileStore) publish(changes []Change) {
	for _, c := range changes {
		s.n.publish(c)
	}
}

func (s *FileStore) decode(raw []byte) (map[string][]byte, error) {
	entries := make(map[string][]byte)
	if len(bytes.TrimSpace(raw)) == 0 {
		return entries, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("kv: parsing store file: %w", err)
	}

	if doc.Sealed == nil {
		for k, v := range doc.Entries {
			entries[k] = v
		}
		return entries, nil
	}

	if len(s.passphrase) == 0 {
		return nil, ErrSealed
	}
	if len(doc.Sealed) < nonceSize {
		return nil, ErrBadPassphrase
	}

	var nonce [nonceSize]byte
	copy(nonce[:], doc.Sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, doc.Sealed[nonceSize:], &nonce, s.keyFor(doc.Salt))
	if !ok {
		return nil, ErrBadPassphrase
	}

	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("kv: parsing sealed entries: %w", err)
	}
	return entries, nil
}

func (s *FileStore) encode(entries map[string][]byte) ([]byte, error) {
	doc := fileDocument{Version: fileFormatVersion}

	if len(s.passphrase) == 0 {
		doc.Entries = entries
		return json.MarshalIndent(doc, "", "  ")
	}

	if s.salt == nil {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generating salt: %w", err)
		}
		s.keyFor(salt)
	}

	plain, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	doc.Salt = s.salt
	doc.Sealed = secretbox.Seal(nonce[:], plain, &nonce, s.key)
	return json.MarshalIndent(doc, "", "  ")
}

// keyFor derives the sealing key for salt, reusing the last derivation when the salt is unchanged.
func (s *FileStore) keyFor(salt []byte) *[argonKeyLen]byte {
	if s.key != nil && bytes.Equal(salt, s.salt) {
		return s.key
	}

	var key [argonKeyLen]byte
	copy(key[:], argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen))

	s.salt = bytes.Clone(salt)
	s.key = &key
	return s.key
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".store-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func diffEntries(before, after map[string][]byte) []Change {
	var changes []Change

	for k, v := range after {
		if old, ok := before[k]; !ok || !bytes.Equal(old, v) {
			changes = append(changes, Change{Key: k})
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			changes = append(changes, Change{Key: k, Deleted: true})
		}
	}

	slices.SortFunc(changes, func(a, b Change) int {
		return strings.Compare(a.Key, b.Key)
	})
	return changes
}
