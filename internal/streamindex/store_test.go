package streamindex

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestGetUnseenDoesNotCreate(t *testing.T) {
	s := New(4)
	if got := s.Get("missing"); got != Initial() {
		t.Fatalf("unexpected state: %+v", got)
	}
	if s.Len() != 0 {
		t.Fatalf("Get must not create entries")
	}
}

func TestCommitCompareAndSet(t *testing.T) {
	s := New(4)
	next := StreamState{Revision: 0, LastRevision: NoRevision}
	if err := s.Commit("a", Initial(), next); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Commit("a", Initial(), StreamState{Revision: 5}); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("want ErrStateConflict, got %v", err)
	}
	if got := s.Get("a"); got != next {
		t.Fatalf("state changed by failed commit: %+v", got)
	}
}

func TestConcurrentCommitsOnDistinctStreams(t *testing.T) {
	s := New(8)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("s-%d", i)
			prior := Initial()
			for r := int64(0); r < 20; r++ {
				next := prior
				next.Revision = r
				if err := s.Commit(name, prior, next); err != nil {
					t.Errorf("commit %s: %v", name, err)
					return
				}
				prior = next
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Fatalf("want 50 streams, got %d", s.Len())
	}
	s.Range(func(name string, st StreamState) bool {
		if st.Revision != 19 {
			t.Fatalf("%s at revision %d", name, st.Revision)
		}
		return true
	})
}

func TestEffectiveRevision(t *testing.T) {
	cases := []struct {
		st     StreamState
		eff    int64
		exists bool
	}{
		{Initial(), NoRevision, false},
		{StreamState{Revision: 3}, 3, true},
		{StreamState{Revision: 3, Deletion: SoftDeleted}, NoRevision, false},
		{StreamState{Revision: 3, Deletion: HardDeleted}, 3, false},
	}
	for _, c := range cases {
		if got := c.st.EffectiveRevision(); got != c.eff {
			t.Fatalf("%+v: effective %d want %d", c.st, got, c.eff)
		}
		if got := c.st.Exists(); got != c.exists {
			t.Fatalf("%+v: exists %v want %v", c.st, got, c.exists)
		}
	}
}

func TestStateEncoding(t *testing.T) {
	in := StreamState{Revision: 41, Deletion: SoftDeleted, Incarnation: 3, LastRevision: 40}
	out, err := decodeState(encodeState(in))
	if err != nil || out != in {
		t.Fatalf("got %+v, %v", out, err)
	}
	if _, err := decodeState([]byte{9}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
