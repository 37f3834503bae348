package auth

import (
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// Code lifecycle failures. The API boundary collapses all three into one
// user-facing message so callers cannot distinguish non-existence from
// expiry.
var (
	ErrCodeNotFound = errors.New("no verification code found")
	ErrCodeExpired  = errors.New("verification code expired")
	ErrCodeMismatch = errors.New("verification code mismatch")
)

// CodeStore is a keyed store of one-time verification codes with TTL and
// single-use consumption. Implementations must be safe for concurrent use
// and must linearize Put/Validate calls for the same email.
type CodeStore interface {
	// Put unconditionally replaces any existing entry for the email, so at
	// most one code is live per email at any instant.
	Put(email, code string, ttl time.Duration)
	// Validate consumes the entry on exact match before expiry. It removes
	// the entry when expired; a mismatch leaves it in place.
	Validate(email, code string) error
}

type codeEntry struct {
	code      string
	expiresAt time.Time
}

const codeShardCount = 32

type codeShard struct {
	mu      sync.Mutex
	entries map[string]codeEntry
}

// MemoryCodeStore is the in-process CodeStore. State is sharded by email so
// racing calls for the same email serialize on one shard while calls for
// different emails proceed independently. Expiry is checked lazily at
// validation time; a background janitor bounds memory by evicting expired
// entries. Lifetime is the process lifetime; a restart drops all pending
// codes and affected users simply re-request one.
type MemoryCodeStore struct {
	shards [codeShardCount]*codeShard
	stop   chan struct{}
	done   chan struct{}
}

// NewMemoryCodeStore creates a store and starts the eviction janitor with
// the given sweep interval (0 disables sweeping; expiry then relies on lazy
// checks alone, which is correct but unbounded).
func NewMemoryCodeStore(sweepInterval time.Duration) *MemoryCodeStore {
	s := &MemoryCodeStore{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &codeShard{entries: make(map[string]codeEntry)}
	}
	if sweepInterval > 0 {
		go s.janitor(sweepInterval)
	} else {
		close(s.done)
	}
	return s
}

// Close stops the eviction janitor.
func (s *MemoryCodeStore) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *MemoryCodeStore) shard(email string) *codeShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(email))
	return s.shards[h.Sum32()%codeShardCount]
}

// Put replaces any live code for the email.
func (s *MemoryCodeStore) Put(email, code string, ttl time.Duration) {
	sh := s.shard(email)
	sh.mu.Lock()
	sh.entries[email] = codeEntry{code: code, expiresAt: time.Now().Add(ttl)}
	sh.mu.Unlock()
}

// Validate checks the supplied code against the stored entry. The lookup,
// comparison, and removal happen under the shard lock so a code can be
// consumed by exactly one successful validation.
func (s *MemoryCodeStore) Validate(email, code string) error {
	sh := s.shard(email)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[email]
	if !ok {
		return ErrCodeNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(sh.entries, email)
		return ErrCodeExpired
	}
	if entry.code != code {
		return ErrCodeMismatch
	}
	delete(sh.entries, email)
	return nil
}

// Len returns the number of live entries across all shards.
func (s *MemoryCodeStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

func (s *MemoryCodeStore) janitor(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			evicted := s.evictExpired(time.Now())
			if evicted > 0 {
				slog.Debug("evicted expired verification codes", "count", evicted)
			}
		}
	}
}

func (s *MemoryCodeStore) evictExpired(now time.Time) int {
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for email, entry := range sh.entries {
			if now.After(entry.expiresAt) {
				delete(sh.entries, email)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}
