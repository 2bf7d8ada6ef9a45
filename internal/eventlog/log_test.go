package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	pebblestore "github.com/rzbill/esdb/internal/storage/pebble"
)

func openTestDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return db
}

func newTestLog(t *testing.T, opts Options) (*Log, *pebblestore.DB) {
	t.Helper()
	db := openTestDB(t, t.TempDir())
	l, err := OpenLog(db, opts)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() {
		_ = l.Close()
		_ = db.Close()
	})
	return l, db
}

func appendReq(stream string, first int64, n int) WriteRequest {
	evs := make([]PrepareRecord, n)
	for i := range evs {
		evs[i] = PrepareRecord{Stream: stream, EventNumber: first + int64(i), EventType: "t", Data: []byte(fmt.Sprint(i))}
	}
	return WriteRequest{
		Events: evs,
		Commit: CommitRecord{Kind: KindCommit, Stream: stream, FirstEventNumber: first, Revision: first + int64(n) - 1},
	}
}

func TestWriteAssignsPositions(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	ctx := context.Background()

	r1, err := l.Write(ctx, appendReq("a", 0, 3))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if r1.PreparePosition != 1 || r1.CommitPosition != 4 {
		t.Fatalf("unexpected positions: %+v", r1)
	}
	r2, err := l.Write(ctx, appendReq("a", 3, 1))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if r2.PreparePosition <= r1.CommitPosition || r2.CommitPosition <= r2.PreparePosition {
		t.Fatalf("positions not increasing: %+v then %+v", r1, r2)
	}
	if l.LastPosition() != r2.CommitPosition {
		t.Fatalf("last position %d want %d", l.LastPosition(), r2.CommitPosition)
	}
}

func TestWriteWithoutEvents(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	res, err := l.Write(context.Background(), WriteRequest{Commit: CommitRecord{Kind: KindTombstone, Stream: "gone", Revision: -1}})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.PreparePosition != res.CommitPosition || res.CommitPosition == 0 {
		t.Fatalf("unexpected positions: %+v", res)
	}
}

func TestConcurrentWritesAreOrdered(t *testing.T) {
	l, _ := newTestLog(t, Options{MaxGroupSize: 8})
	ctx := context.Background()

	const writers = 32
	var wg sync.WaitGroup
	results := make([]WriteResult, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Write(ctx, appendReq(fmt.Sprintf("s-%d", i), 0, 1+i%3))
		}(i)
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for i, r := range results {
		if errs[i] != nil {
			t.Fatalf("write %d: %v", i, errs[i])
		}
		if seen[r.CommitPosition] || seen[r.PreparePosition] && r.PreparePosition != r.CommitPosition {
			t.Fatalf("position reused: %+v", r)
		}
		seen[r.CommitPosition] = true
		seen[r.PreparePosition] = true
	}

	batches, _, err := l.Read(ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(batches) != writers {
		t.Fatalf("want %d batches, got %d", writers, len(batches))
	}
	var prev uint64
	for _, b := range batches {
		if b.CommitPosition <= prev {
			t.Fatalf("commit positions not increasing: %d after %d", b.CommitPosition, prev)
		}
		prev = b.CommitPosition
		if len(b.Events) != b.Commit.EventCount {
			t.Fatalf("batch %d has %d events, commit says %d", b.CommitPosition, len(b.Events), b.Commit.EventCount)
		}
		for _, ev := range b.Events {
			if ev.Position >= b.CommitPosition || ev.Stream != b.Commit.Stream {
				t.Fatalf("prepare %d does not belong to commit %d", ev.Position, b.CommitPosition)
			}
		}
	}
}

func TestFailedCommitLeavesPreparesInvisible(t *testing.T) {
	boom := errors.New("disk full")
	var fail bool
	var mu sync.Mutex
	l, _ := newTestLog(t, Options{Knobs: TestingKnobs{BeforeWrite: func(p Phase) error {
		mu.Lock()
		defer mu.Unlock()
		if fail && p == PhaseCommit {
			return boom
		}
		return nil
	}}})
	ctx := context.Background()

	ok1, err := l.Write(ctx, appendReq("a", 0, 1))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	mu.Lock()
	fail = true
	mu.Unlock()
	if _, err := l.Write(ctx, appendReq("a", 1, 2)); !errors.Is(err, boom) {
		t.Fatalf("want injected failure, got %v", err)
	}
	mu.Lock()
	fail = false
	mu.Unlock()
	ok2, err := l.Write(ctx, appendReq("b", 0, 1))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if ok2.PreparePosition <= ok1.CommitPosition+3 {
		t.Fatalf("positions of the failed write were reused: %+v", ok2)
	}

	batches, _, err := l.Read(ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("want 2 visible batches, got %d", len(batches))
	}
	if batches[0].Commit.Stream != "a" || batches[1].Commit.Stream != "b" {
		t.Fatalf("unexpected batches: %+v", batches)
	}
}

func TestReopenRestoresPositions(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	l, err := OpenLog(db, Options{})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	ctx := context.Background()
	r1, err := l.Write(ctx, appendReq("x", 0, 2))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = l.Close()
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2 := openTestDB(t, dir)
	t.Cleanup(func() { _ = db2.Close() })
	l2, err := OpenLog(db2, Options{})
	if err != nil {
		t.Fatalf("reopen log: %v", err)
	}
	t.Cleanup(func() { _ = l2.Close() })
	if l2.LastPosition() != r1.CommitPosition {
		t.Fatalf("last position %d want %d", l2.LastPosition(), r1.CommitPosition)
	}
	r2, err := l2.Write(ctx, appendReq("x", 2, 1))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if r2.PreparePosition <= r1.CommitPosition {
		t.Fatalf("expected next position > previous: prev=%d next=%d", r1.CommitPosition, r2.PreparePosition)
	}
}

func TestReadPagingAndFilter(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		stream := "even"
		if i%2 == 1 {
			stream = "odd"
		}
		if _, err := l.Write(ctx, appendReq(stream, int64(i), 1)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	page, next, err := l.Read(ReadOptions{Limit: 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page) != 2 || next == 0 {
		t.Fatalf("want 2 items and a resume position, got %d next=%d", len(page), next)
	}
	rest, next2, err := l.Read(ReadOptions{From: next})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rest) != 3 || next2 != 0 {
		t.Fatalf("want remaining 3 items, got %d next=%d", len(rest), next2)
	}

	odd, _, err := l.Read(ReadOptions{Filter: func(b Batch) bool { return b.Commit.Stream == "odd" }})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(odd) != 2 {
		t.Fatalf("want 2 odd batches, got %d", len(odd))
	}
}

func TestReadStopsAfterMaxExamined(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := l.Write(ctx, appendReq("s", int64(i), 1)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	none := func(Batch) bool { return false }
	var from uint64
	pages := 0
	for {
		page, next, err := l.Read(ReadOptions{From: from, Filter: none, MaxExamined: 2})
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(page) != 0 {
			t.Fatalf("filter matched %d batches", len(page))
		}
		pages++
		if next == 0 {
			break
		}
		if next <= from {
			t.Fatalf("resume position did not advance: %d after %d", next, from)
		}
		from = next
	}
	if pages != 3 {
		t.Fatalf("want 3 bounded reads over 5 commits, got %d", pages)
	}
}

func TestWriteAfterClose(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	_ = l.Close()
	if _, err := l.Write(context.Background(), appendReq("a", 0, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

func TestWaitForCommitWake(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	done := make(chan struct{})
	go func() {
		if !l.WaitForCommit(context.Background(), 2*time.Second) {
			t.Errorf("expected wake by commit")
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := l.Write(context.Background(), appendReq("a", 0, 1)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for waiter to wake")
	}
}

func TestWaitForCommitTimeout(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	if l.WaitForCommit(context.Background(), 50*time.Millisecond) {
		t.Fatalf("expected timeout")
	}
}
