package log

import (
	"log/slog"
	"sync"
	"time"
)

type sampleKey struct {
	level slog.Level
	msg   string
}

// sampler counts records per level and message within one-second windows.
type sampler struct {
	initial    uint64
	thereafter uint64
	now        func() time.Time

	mu     sync.Mutex
	window int64
	counts map[sampleKey]uint64
}

func newSampler(initial, thereafter int) *sampler {
	if initial < 0 {
		initial = 0
	}
	if thereafter < 1 {
		thereafter = 1
	}
	return &sampler{
		initial:    uint64(initial),
		thereafter: uint64(thereafter),
		now:        time.Now,
		counts:     make(map[sampleKey]uint64),
	}
}

func (s *sampler) allow(level slog.Level, msg string) bool {
	sec := s.now().Unix()
	k := sampleKey{level, msg}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec != s.window {
		s.window = sec
		clear(s.counts)
	}
	n := s.counts[k]
	s.counts[k] = n + 1
	if n < s.initial {
		return true
	}
	return (n-s.initial)%s.thereafter == 0
}
