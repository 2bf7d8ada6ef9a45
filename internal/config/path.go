package config

import (
	"os"
	"path/filepath"
)

// DataDirEnv names the environment variable that overrides the default data
// directory.
const DataDirEnv = "ESDB_DATA_DIR"

// storeSubdir holds the Pebble database inside a data directory.
const storeSubdir = "store"

// DefaultDataDir returns where esdb keeps its data when none is configured.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return resolveDataDir(os.Getenv, home, isDir)
}

// resolveDataDir picks the first match of: $ESDB_DATA_DIR, $XDG_DATA_HOME/esdb,
// /var/lib/esdb, the macOS application support dir, the Windows local app data
// dir, ~/.esdb. Without a home directory it falls back to ./data.
func resolveDataDir(getenv func(string) string, home string, dirExists func(string) bool) string {
	if d := getenv(DataDirEnv); d != "" {
		return d
	}
	if home == "" {
		return "./data"
	}
	if xdg := getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "esdb")
	}
	switch {
	case dirExists("/var/lib"):
		return "/var/lib/esdb"
	case dirExists(filepath.Join(home, "Library")):
		return filepath.Join(home, "Library", "Application Support", "esdb")
	case dirExists(filepath.Join(home, "AppData")):
		return filepath.Join(home, "AppData", "Local", "esdb")
	}
	return filepath.Join(home, ".esdb")
}

// StoreDir is the Pebble directory under dataDir, or under DefaultDataDir
// when dataDir is empty.
func StoreDir(dataDir string) string {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	return filepath.Join(dataDir, storeSubdir)
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
