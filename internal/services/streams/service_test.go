package streamsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/esdb/internal/config"
	"github.com/rzbill/esdb/internal/eventlog"
	"github.com/rzbill/esdb/internal/runtime"
	pebblestore "github.com/rzbill/esdb/internal/storage/pebble"
	"github.com/rzbill/esdb/internal/streamindex"
	logpkg "github.com/rzbill/esdb/pkg/log"
)

func quietLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel), logpkg.WithOutput(logpkg.NullOutput{}))
}

func openRuntime(t *testing.T, dir string, knobs eventlog.TestingKnobs) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{
		DataDir: dir,
		Fsync:   pebblestore.FsyncModeAlways,
		Config:  cfgpkg.Default(),
		Logger:  quietLogger(),
		Knobs:   knobs,
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	return rt
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	rt := openRuntime(t, t.TempDir(), eventlog.TestingKnobs{})
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt, WithLogger(quietLogger()))
}

func events(n int) []EventData {
	out := make([]EventData, n)
	for i := range out {
		out[i] = EventData{Type: "TestEvent", Data: []byte(fmt.Sprintf(`{"i":%d}`, i)), IsJSON: true}
	}
	return out
}

func mustAppend(t *testing.T, svc *Service, stream string, ev ExpectedVersion, n int) AppendResult {
	t.Helper()
	res, err := svc.Append(context.Background(), AppendRequest{Stream: stream, ExpectedVersion: ev, Events: events(n)})
	if err != nil {
		t.Fatalf("append %s %s x%d: %v", stream, ev, n, err)
	}
	return res
}

func TestScenarioExplicitRevisions(t *testing.T) {
	svc := newTestService(t)
	if res := mustAppend(t, svc, "s1", NoStream(), 1); res.NextExpectedVersion != 0 {
		t.Fatalf("first append next=%d", res.NextExpectedVersion)
	}
	if res := mustAppend(t, svc, "s1", Exact(0), 1); res.NextExpectedVersion != 1 {
		t.Fatalf("second append next=%d", res.NextExpectedVersion)
	}
	_, err := svc.Append(context.Background(), AppendRequest{Stream: "s1", ExpectedVersion: Exact(5), Events: events(1)})
	var wev *WrongExpectedVersionError
	if !errors.As(err, &wev) {
		t.Fatalf("want WrongExpectedVersionError, got %v", err)
	}
	if wev.Expected != Exact(5) || wev.ActualRevision != 1 || wev.Deletion != streamindex.Active {
		t.Fatalf("unexpected rejection: %+v", wev)
	}
	if !errors.Is(err, ErrWrongExpectedVersion) {
		t.Fatalf("errors.Is should match sentinel")
	}
	if info, _ := svc.StreamState(context.Background(), "s1"); info.Revision != 1 {
		t.Fatalf("rejection mutated state: %+v", info)
	}
}

func TestScenarioHardDeletedEmptyStream(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.HardDelete(context.Background(), "s2", EmptyStream()); err != nil {
		t.Fatalf("hard delete of never-created stream: %v", err)
	}
	for _, ev := range []ExpectedVersion{NoStream(), Any(), Exact(5), StreamExists()} {
		_, err := svc.Append(context.Background(), AppendRequest{Stream: "s2", ExpectedVersion: ev, Events: events(1)})
		var sde *StreamDeletedError
		if !errors.As(err, &sde) || sde.Stream != "s2" {
			t.Fatalf("append with %s: want StreamDeletedError, got %v", ev, err)
		}
	}
	if _, err := svc.SoftDelete(context.Background(), "s2", Any()); !errors.Is(err, ErrStreamDeleted) {
		t.Fatalf("soft delete after hard delete: %v", err)
	}
	if _, err := svc.HardDelete(context.Background(), "s2", Any()); !errors.Is(err, ErrStreamDeleted) {
		t.Fatalf("second hard delete: %v", err)
	}
}

func TestScenarioConcurrentNoStream(t *testing.T) {
	for round := 0; round < 10; round++ {
		svc := newTestService(t)
		var wg sync.WaitGroup
		start := make(chan struct{})
		results := make([]AppendResult, 2)
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i], errs[i] = svc.Append(context.Background(), AppendRequest{Stream: "s3", ExpectedVersion: NoStream(), Events: events(1)})
			}(i)
		}
		close(start)
		wg.Wait()

		ok, rejected := 0, 0
		for i := range errs {
			switch {
			case errs[i] == nil:
				ok++
				if results[i].NextExpectedVersion != 0 {
					t.Fatalf("winner next=%d", results[i].NextExpectedVersion)
				}
			default:
				var wev *WrongExpectedVersionError
				if !errors.As(errs[i], &wev) || wev.Expected != NoStream() || wev.ActualRevision != 0 {
					t.Fatalf("loser error: %v", errs[i])
				}
				rejected++
			}
		}
		if ok != 1 || rejected != 1 {
			t.Fatalf("round %d: ok=%d rejected=%d", round, ok, rejected)
		}
	}
}

func TestConcurrentExactAppendsAreGapFree(t *testing.T) {
	svc := newTestService(t)
	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for done := 0; done < perWriter; {
				info, err := svc.StreamState(context.Background(), "gapless")
				if err != nil {
					t.Errorf("state: %v", err)
					return
				}
				ev := NoStream()
				if info.Revision >= 0 {
					ev = Exact(info.Revision)
				}
				_, err = svc.Append(context.Background(), AppendRequest{Stream: "gapless", ExpectedVersion: ev, Events: events(1)})
				switch {
				case err == nil:
					done++
				case errors.Is(err, ErrWrongExpectedVersion):
				default:
					t.Errorf("append: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	scan, err := svc.ScanLog(context.Background(), ScanOptions{Limit: maxScanLimit})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var numbers []int64
	for _, b := range scan.Batches {
		for _, ev := range b.Events {
			numbers = append(numbers, ev.EventNumber)
		}
	}
	if len(numbers) != writers*perWriter {
		t.Fatalf("want %d events, got %d", writers*perWriter, len(numbers))
	}
	for i, n := range numbers {
		if n != int64(i) {
			t.Fatalf("event %d has number %d", i, n)
		}
	}
}

func TestConcurrentDistinctStreams(t *testing.T) {
	svc := newTestService(t)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stream := fmt.Sprintf("stream-%d", i)
			for r := int64(0); r < 5; r++ {
				ev := Exact(r - 1)
				if r == 0 {
					ev = NoStream()
				}
				res, err := svc.Append(context.Background(), AppendRequest{Stream: stream, ExpectedVersion: ev, Events: events(1)})
				if err != nil || res.NextExpectedVersion != r {
					t.Errorf("%s: next=%d err=%v", stream, res.NextExpectedVersion, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestBatchNumbering(t *testing.T) {
	svc := newTestService(t)
	if res := mustAppend(t, svc, "big", EmptyStream(), 100); res.NextExpectedVersion != 99 {
		t.Fatalf("next=%d", res.NextExpectedVersion)
	}
	if res := mustAppend(t, svc, "big", Exact(99), 3); res.NextExpectedVersion != 102 {
		t.Fatalf("next=%d", res.NextExpectedVersion)
	}
	scan, err := svc.ScanLog(context.Background(), ScanOptions{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	last := scan.Batches[len(scan.Batches)-1]
	for i, ev := range last.Events {
		if ev.EventNumber != 100+int64(i) {
			t.Fatalf("event %d numbered %d", i, ev.EventNumber)
		}
	}
}

func TestEmptyBatch(t *testing.T) {
	svc := newTestService(t)
	res := mustAppend(t, svc, "empty", NoStream(), 0)
	if res.NextExpectedVersion != -1 || res.LogPosition != (LogPosition{}) {
		t.Fatalf("unexpected result: %+v", res)
	}
	// The stream must still look absent.
	if res := mustAppend(t, svc, "empty", NoStream(), 0); res.NextExpectedVersion != -1 {
		t.Fatalf("second empty append: %+v", res)
	}
	if res := mustAppend(t, svc, "empty", NoStream(), 1); res.NextExpectedVersion != 0 {
		t.Fatalf("first real append: %+v", res)
	}
	if _, err := svc.Append(context.Background(), AppendRequest{Stream: "empty", ExpectedVersion: NoStream()}); !errors.Is(err, ErrWrongExpectedVersion) {
		t.Fatalf("empty batch must still check the claim: %v", err)
	}
}

func TestLogPositionsIncrease(t *testing.T) {
	svc := newTestService(t)
	var prev LogPosition
	for i := 0; i < 20; i++ {
		res := mustAppend(t, svc, fmt.Sprintf("p-%d", i%3), Any(), 1+i%4)
		lp := res.LogPosition
		if lp.PreparePosition == 0 || lp.CommitPosition == 0 {
			t.Fatalf("positions must be > 0: %+v", lp)
		}
		if lp.CommitPosition <= lp.PreparePosition {
			t.Fatalf("commit must follow prepare: %+v", lp)
		}
		if lp.PreparePosition <= prev.CommitPosition {
			t.Fatalf("positions not increasing: %+v after %+v", lp, prev)
		}
		prev = lp
	}
}

func TestSoftDeleteAndRecreate(t *testing.T) {
	svc := newTestService(t)
	mustAppend(t, svc, "sd", NoStream(), 3)
	if _, err := svc.SoftDelete(context.Background(), "sd", Exact(1)); !errors.Is(err, ErrWrongExpectedVersion) {
		t.Fatalf("soft delete with stale claim: %v", err)
	}
	if info, _ := svc.StreamState(context.Background(), "sd"); info.Deletion != streamindex.Active {
		t.Fatalf("failed delete changed state: %+v", info)
	}
	del, err := svc.SoftDelete(context.Background(), "sd", Exact(2))
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if del.LogPosition.CommitPosition == 0 {
		t.Fatalf("delete must be logged")
	}
	info, _ := svc.StreamState(context.Background(), "sd")
	if info.Revision != -1 || info.Deletion != streamindex.SoftDeleted || info.LastRevision != 2 {
		t.Fatalf("after soft delete: %+v", info)
	}
	if _, err := svc.SoftDelete(context.Background(), "sd", Any()); !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("second soft delete: %v", err)
	}

	if res := mustAppend(t, svc, "sd", NoStream(), 2); res.NextExpectedVersion != 1 {
		t.Fatalf("recreated stream next=%d", res.NextExpectedVersion)
	}
	info, _ = svc.StreamState(context.Background(), "sd")
	if info.Deletion != streamindex.Active || info.Incarnation != 1 {
		t.Fatalf("after recreate: %+v", info)
	}

	if _, err := svc.HardDelete(context.Background(), "sd", Exact(1)); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := svc.Append(context.Background(), AppendRequest{Stream: "sd", ExpectedVersion: NoStream(), Events: events(1)}); !errors.Is(err, ErrStreamDeleted) {
		t.Fatalf("append after hard delete: %v", err)
	}
}

func TestSoftDeleteMissingStream(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.SoftDelete(context.Background(), "nothing", Any())
	var nf *StreamNotFoundError
	if !errors.As(err, &nf) || nf.Revision != -1 {
		t.Fatalf("want StreamNotFoundError, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	svc := newTestService(t)
	svc.limits = Limits{MaxBatchEvents: 2, MaxEventBytes: 8}
	ctx := context.Background()
	cases := []AppendRequest{
		{Stream: "", Events: events(1)},
		{Stream: "x", ExpectedVersion: Exact(-2), Events: events(1)},
		{Stream: "x", Events: events(3)},
		{Stream: "x", Events: []EventData{{Type: "t", Data: []byte("0123456789")}}},
		{Stream: "x", Events: []EventData{{Data: []byte("{}")}}},
	}
	for i, req := range cases {
		if _, err := svc.Append(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: want ErrInvalidRequest, got %v", i, err)
		}
	}
	if _, err := svc.Delete(ctx, DeleteRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("delete without name: %v", err)
	}
}

func TestStorageFailureLeavesStateUnchanged(t *testing.T) {
	var mu sync.Mutex
	var failPhase eventlog.Phase
	rt := openRuntime(t, t.TempDir(), eventlog.TestingKnobs{BeforeWrite: func(p eventlog.Phase) error {
		mu.Lock()
		defer mu.Unlock()
		if p == failPhase {
			return errors.New("disk full")
		}
		return nil
	}})
	t.Cleanup(func() { _ = rt.Close() })
	svc := New(rt, WithLogger(quietLogger()))

	first := mustAppend(t, svc, "f", NoStream(), 1)
	for _, phase := range []eventlog.Phase{eventlog.PhasePrepare, eventlog.PhaseCommit} {
		mu.Lock()
		failPhase = phase
		mu.Unlock()
		_, err := svc.Append(context.Background(), AppendRequest{Stream: "f", ExpectedVersion: Exact(0), Events: events(2)})
		var se *StorageError
		if !errors.As(err, &se) || !errors.Is(err, ErrStorageFailure) {
			t.Fatalf("%s failure: want StorageError, got %v", phase, err)
		}
		if info, _ := svc.StreamState(context.Background(), "f"); info.Revision != 0 {
			t.Fatalf("%s failure advanced revision: %+v", phase, info)
		}
	}
	mu.Lock()
	failPhase = ""
	mu.Unlock()

	res := mustAppend(t, svc, "f", Exact(0), 1)
	if res.NextExpectedVersion != 1 || res.LogPosition.PreparePosition <= first.LogPosition.CommitPosition {
		t.Fatalf("unexpected result after recovery: %+v", res)
	}
	scan, err := svc.ScanLog(context.Background(), ScanOptions{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Batches) != 2 {
		t.Fatalf("failed writes must be invisible, got %d batches", len(scan.Batches))
	}
}

func TestRestartPreservesState(t *testing.T) {
	dir := t.TempDir()
	rt := openRuntime(t, dir, eventlog.TestingKnobs{})
	svc := New(rt, WithLogger(quietLogger()))
	mustAppend(t, svc, "keep", NoStream(), 4)
	mustAppend(t, svc, "trunc", NoStream(), 2)
	if _, err := svc.SoftDelete(context.Background(), "trunc", Any()); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := svc.HardDelete(context.Background(), "gone", Any()); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	last := mustAppend(t, svc, "keep", Exact(3), 1)
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt2 := openRuntime(t, dir, eventlog.TestingKnobs{})
	t.Cleanup(func() { _ = rt2.Close() })
	svc2 := New(rt2, WithLogger(quietLogger()))
	ctx := context.Background()
	if info, _ := svc2.StreamState(ctx, "keep"); info.Revision != 4 {
		t.Fatalf("keep after restart: %+v", info)
	}
	if info, _ := svc2.StreamState(ctx, "trunc"); info.Deletion != streamindex.SoftDeleted {
		t.Fatalf("trunc after restart: %+v", info)
	}
	if _, err := svc2.Append(ctx, AppendRequest{Stream: "gone", Events: events(1)}); !errors.Is(err, ErrStreamDeleted) {
		t.Fatalf("hard delete lost on restart: %v", err)
	}
	res := mustAppend(t, svc2, "keep", Exact(4), 1)
	if res.LogPosition.PreparePosition <= last.LogPosition.CommitPosition {
		t.Fatalf("positions reused after restart: %+v <= %+v", res.LogPosition, last.LogPosition)
	}

	rebuilt, err := streamindex.Rebuild(rt2.Log(), 4)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	rt2.Index().Range(func(name string, st streamindex.StreamState) bool {
		if got := rebuilt.Get(name); got != st {
			t.Fatalf("%s: persisted %+v rebuilt %+v", name, st, got)
		}
		return true
	})
}

func TestAbandonedWaitStillCommits(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var once sync.Once
	rt := openRuntime(t, t.TempDir(), eventlog.TestingKnobs{BeforeWrite: func(p eventlog.Phase) error {
		if p == eventlog.PhaseCommit {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}
		return nil
	}})
	t.Cleanup(func() {
		once.Do(func() { close(release) })
		_ = rt.Close()
	})
	svc := New(rt, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Append(ctx, AppendRequest{Stream: "slow", ExpectedVersion: NoStream(), Events: events(1)})
		errCh <- err
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("write never reached the commit phase")
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if info, _ := svc.StreamState(context.Background(), "slow"); info.Revision != -1 {
		t.Fatalf("state visible before the write was durable: %+v", info)
	}
	once.Do(func() { close(release) })

	// The abandoned write finishes and its state becomes visible.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info, _ := svc.StreamState(context.Background(), "slow"); info.Revision == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("abandoned write never committed its state")
}

func TestLimitsRequestBytes(t *testing.T) {
	cases := []struct {
		name string
		l    Limits
		want int64
	}{
		{"unlimited", Limits{}, 0},
		{"request cap only", Limits{MaxRequestBytes: 1 << 20}, 1 << 20},
		{"batch bound", Limits{MaxBatchEvents: 2, MaxEventBytes: 100}, 400 + requestOverhead},
		{"request cap wins", Limits{MaxBatchEvents: 4096, MaxEventBytes: 1 << 20, MaxRequestBytes: 64 << 20}, 64 << 20},
		{"batch bound wins", Limits{MaxBatchEvents: 1, MaxEventBytes: 10, MaxRequestBytes: 64 << 20}, 20 + requestOverhead},
	}
	for _, tc := range cases {
		if got := tc.l.RequestBytes(); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}
