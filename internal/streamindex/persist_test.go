package streamindex

import (
	"context"
	"testing"

	"github.com/rzbill/esdb/internal/eventlog"
	pebblestore "github.com/rzbill/esdb/internal/storage/pebble"
)

func openStore(t *testing.T, dir string) (*pebblestore.DB, *eventlog.Log) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	l, err := eventlog.OpenLog(db, eventlog.Options{})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return db, l
}

func writeState(t *testing.T, l *eventlog.Log, name string, kind eventlog.Kind, st StreamState, events int) {
	t.Helper()
	evs := make([]eventlog.PrepareRecord, events)
	for i := range evs {
		evs[i] = eventlog.PrepareRecord{Stream: name, EventNumber: st.Revision - int64(events) + 1 + int64(i), EventType: "t"}
	}
	_, err := l.Write(context.Background(), eventlog.WriteRequest{
		Events: evs,
		Commit: eventlog.CommitRecord{
			Kind: kind, Stream: name, Incarnation: st.Incarnation,
			Revision: st.Revision, Deletion: uint8(st.Deletion), LastRevision: st.LastRevision,
		},
		Mutations: []eventlog.Mutation{Mutation(name, st)},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestOpenRebuildsAndReloads(t *testing.T) {
	dir := t.TempDir()
	db, l := openStore(t, dir)

	a1 := StreamState{Revision: 1, LastRevision: NoRevision}
	b := StreamState{Revision: 0, LastRevision: NoRevision}
	aDel := StreamState{Revision: 1, Deletion: SoftDeleted, LastRevision: 1}
	c := StreamState{Revision: NoRevision, Deletion: HardDeleted, LastRevision: NoRevision}
	writeState(t, l, "a", eventlog.KindCommit, a1, 2)
	writeState(t, l, "b", eventlog.KindCommit, b, 1)
	writeState(t, l, "a", eventlog.KindTruncate, aDel, 0)
	writeState(t, l, "c", eventlog.KindTombstone, c, 0)

	// No marker yet: Open rebuilds from commit records.
	s, err := Open(db, l, Options{Shards: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := map[string]StreamState{"a": aDel, "b": b, "c": c}
	for name, st := range want {
		if got := s.Get(name); got != st {
			t.Fatalf("rebuilt %s = %+v want %+v", name, got, st)
		}
	}

	_ = l.Close()
	_ = db.Close()

	db2, l2 := openStore(t, dir)
	defer func() {
		_ = l2.Close()
		_ = db2.Close()
	}()
	if ok, err := db2.Has(KeyMeta()); err != nil || !ok {
		t.Fatalf("marker missing after open: %v %v", ok, err)
	}
	loaded, err := Open(db2, l2, Options{Shards: 4})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rebuilt, err := Rebuild(l2, 4)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if loaded.Len() != len(want) || rebuilt.Len() != len(want) {
		t.Fatalf("unexpected sizes loaded=%d rebuilt=%d", loaded.Len(), rebuilt.Len())
	}
	for name, st := range want {
		if loaded.Get(name) != st || rebuilt.Get(name) != st {
			t.Fatalf("%s: loaded %+v rebuilt %+v want %+v", name, loaded.Get(name), rebuilt.Get(name), st)
		}
	}
}

func TestLoadSeesSideMutations(t *testing.T) {
	db, l := openStore(t, t.TempDir())
	defer func() {
		_ = l.Close()
		_ = db.Close()
	}()
	if err := Persist(db, New(1)); err != nil {
		t.Fatalf("persist: %v", err)
	}
	st := StreamState{Revision: 4, LastRevision: NoRevision}
	writeState(t, l, "x", eventlog.KindCommit, st, 5)
	s, err := Load(db, 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := s.Get("x"); got != st {
		t.Fatalf("got %+v want %+v", got, st)
	}
}
