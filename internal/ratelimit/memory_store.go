package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

const defaultShards = 32

// Record is one fixed-window counter.
type Record struct {
	Count           int
	WindowExpiresAt time.Time
}

type shard struct {
	mu      sync.Mutex
	records map[string]*Record
}

// MemoryStore keeps counters in process memory, spread over mutex-guarded
// shards picked by a murmur3 hash of the key. Counters vanish on restart.
type MemoryStore struct {
	shards []*shard
	now    func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithShards sets the shard count; values below 1 are ignored.
func WithShards(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shards = newShards(n)
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		shards: newShards(defaultShards),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{records: make(map[string]*Record)}
	}
	return shards
}

func (s *MemoryStore) shardFor(key string) *shard {
	return s.shards[murmur3.Sum32([]byte(key))%uint32(len(s.shards))]
}

func (s *MemoryStore) Admit(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	now := s.now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok || !rec.WindowExpiresAt.After(now) {
		sh.records[key] = &Record{Count: 1, WindowExpiresAt: now.Add(window)}
		return true, nil
	}
	if rec.Count >= max {
		return false, nil
	}
	rec.Count++
	return true, nil
}

// Snapshot returns a copy of the record for key, if one exists.
func (s *MemoryStore) Snapshot(key string) (Record, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Cleanup drops records whose window has elapsed.
func (s *MemoryStore) Cleanup() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, rec := range sh.records {
			if !rec.WindowExpiresAt.After(now) {
				delete(sh.records, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len counts live and expired-but-not-yet-collected records.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}

// StartJanitor runs Cleanup every period until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
