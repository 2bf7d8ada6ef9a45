package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clientcmd "github.com/rzbill/esdb/internal/cmd/client"
	serverrun "github.com/rzbill/esdb/internal/cmd/server"
	cfgpkg "github.com/rzbill/esdb/internal/config"
	"github.com/rzbill/esdb/internal/runtime"
	"github.com/rzbill/esdb/internal/streamindex"
	logpkg "github.com/rzbill/esdb/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// CLI logger; the server builds its own from configuration.
	level, err := logpkg.ParseLevel(os.Getenv("ESDB_LOG_LEVEL"))
	if err != nil {
		level = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	rootCmd := clientcmd.NewRoot(apiURL)
	rootCmd.Short = "esdb event store"
	rootCmd.Long = "esdb is a single-node event store. This CLI runs the server and issues stream writes."
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().String("config", os.Getenv("ESDB_CONFIG"), "Config file (yaml or json)")

	rootCmd.AddCommand(newServerCommand(), newReindexCommand(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start esdb server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	addStoreFlags(serverStartCmd)
	serverStartCmd.Flags().String("grpc", "", "gRPC listen address (default :1113)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :2113)")
	serverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "", "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	return serverCmd
}

// newReindexCommand rebuilds the stream index from the log's commit records.
// The server must not be running on the same data dir.
func newReindexCommand(logger logpkg.Logger) *cobra.Command {
	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the stream index from the transaction log (offline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := runtime.Open(runtime.Options{
				DataDir:       cfgpkg.StoreDir(cfg.DataDir),
				Fsync:         cfg.FsyncMode(),
				FsyncInterval: cfg.FsyncInterval(),
				Config:        cfg,
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			defer rt.Close()
			idx, err := streamindex.Reindex(rt.DB(), rt.Log(), cfg.Index.Shards)
			if err != nil {
				return err
			}
			logger.Info("stream index rebuilt",
				logpkg.Int("streams", idx.Len()),
				logpkg.Uint64("last_position", rt.Log().LastPosition()))
			return nil
		},
	}
	addStoreFlags(reindexCmd)
	return reindexCmd
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	cmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	cmd.Flags().Int("fsync-interval-ms", 0, "When --fsync=interval, group-commit window in ms (default 5)")
}

// loadConfig reads --config and ESDB_* env, then applies explicitly set flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	flags := cmd.Flags()
	setString := func(name string, dst *string) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setString("data-dir", &cfg.DataDir)
	setString("fsync", &cfg.Fsync)
	setString("grpc", &cfg.GRPCAddr)
	setString("http", &cfg.HTTPAddr)
	setString("log-level", &cfg.Log.Level)
	setString("log-format", &cfg.Log.Format)
	if flags.Changed("fsync-interval-ms") {
		cfg.FsyncIntervalMS, _ = flags.GetInt("fsync-interval-ms")
	}
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}

func apiURL() string {
	if v := os.Getenv("ESDB_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:2113"
}
