package streamindex

import (
	"errors"
	"hash/crc32"
	"sync"
)

// ErrStateConflict is returned by Commit when the stored state no longer
// matches the prior state the caller decided on.
var ErrStateConflict = errors.New("streamindex: stream state changed concurrently")

// DefaultShards is used when no shard count is configured.
const DefaultShards = 64

// Store holds the current state of every stream that has been written.
type Store struct {
	shards []*shard
}

type shard struct {
	mu sync.RWMutex
	m  map[string]StreamState
}

// New returns an empty in-memory store.
func New(shards int) *Store {
	if shards <= 0 {
		shards = DefaultShards
	}
	s := &Store{shards: make([]*shard, shards)}
	for i := range s.shards {
		s.shards[i] = &shard{m: make(map[string]StreamState)}
	}
	return s
}

func (s *Store) shardFor(name string) *shard {
	h := crc32.ChecksumIEEE([]byte(name))
	return s.shards[h%uint32(len(s.shards))]
}

// Get returns the state of name, or Initial() for an unseen name. It never
// creates an entry.
func (s *Store) Get(name string) StreamState {
	sh := s.shardFor(name)
	sh.mu.RLock()
	st, ok := sh.m[name]
	sh.mu.RUnlock()
	if !ok {
		return Initial()
	}
	return st
}

// Commit replaces the state of name with next if it still equals prior.
func (s *Store) Commit(name string, prior, next StreamState) error {
	sh := s.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.m[name]
	if !ok {
		cur = Initial()
	}
	if cur != prior {
		return ErrStateConflict
	}
	sh.m[name] = next
	return nil
}

// Len returns the number of streams with an entry.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry until fn returns false. Entries committed
// concurrently may or may not be visited.
func (s *Store) Range(fn func(name string, st StreamState) bool) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		snapshot := make(map[string]StreamState, len(sh.m))
		for k, v := range sh.m {
			snapshot[k] = v
		}
		sh.mu.RUnlock()
		for k, v := range snapshot {
			if !fn(k, v) {
				return
			}
		}
	}
}

func (s *Store) set(name string, st StreamState) {
	sh := s.shardFor(name)
	sh.mu.Lock()
	sh.m[name] = st
	sh.mu.Unlock()
}
