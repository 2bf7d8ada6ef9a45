package pebblestore

import (
	"fmt"
	"strings"
)

// FsyncMode selects when committed batches reach stable storage.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL before every commit returns.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble group WAL syncs issued within
	// Options.FsyncInterval. Commits still wait for their sync.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to the OS. A commit may be lost on crash.
	FsyncModeNever
)

var fsyncModeNames = map[FsyncMode]string{
	FsyncModeAlways:   "always",
	FsyncModeInterval: "interval",
	FsyncModeNever:    "never",
}

// ParseFsyncMode accepts always, interval or never. Empty means always.
func ParseFsyncMode(s string) (FsyncMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FsyncModeAlways, nil
	}
	for m, name := range fsyncModeNames {
		if name == s {
			return m, nil
		}
	}
	return FsyncModeUnspecified, fmt.Errorf("invalid fsync mode %q; use always|interval|never", s)
}

func (m FsyncMode) String() string {
	if name, ok := fsyncModeNames[m]; ok {
		return name
	}
	return "unspecified"
}

// waitsForSync reports whether commits block until the WAL is synced.
func (m FsyncMode) waitsForSync() bool {
	return m == FsyncModeAlways || m == FsyncModeInterval
}
