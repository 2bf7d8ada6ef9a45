// Package config loads esdb server configuration with viper: built-in
// defaults, an optional YAML or JSON file, and ESDB_* environment overrides
// (nested keys joined by underscores, e.g. ESDB_LIMITS_MAX_BATCH_EVENTS).
//
// Example:
//
//	cfg, err := config.Load("/etc/esdb.yaml")
//	if err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(runtime.Options{DataDir: cfg.DataDir, Config: cfg})
//	defer rt.Close()
package config
