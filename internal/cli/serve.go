package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"riskai/internal/analysis"
	"riskai/internal/cache"
	"riskai/internal/config"
	"riskai/internal/errors"
	"riskai/internal/llm"
	"riskai/internal/server"
)

var (
	flagPort     int
	flagLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := buildOverrides()
		if flagPort > 0 {
			overrides["port"] = fmt.Sprintf("%d", flagPort)
		}
		if flagLogLevel != "" {
			overrides["logLevel"] = flagLogLevel
		}
		cfg, err := config.Load(overrides)
		if err != nil {
			return err
		}

		log, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		client, err := llm.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitAuthError
			return nil
		}

		store, err := openStore(cfg, log)
		if err != nil {
			// The cache is advisory. Run without it rather than refuse to start.
			log.Warn("cache unavailable, continuing without it", zap.Error(err))
			store = nil
		}
		if store != nil {
			defer store.Close()
			if n, err := store.PurgeExpired(cmd.Context()); err == nil && n > 0 {
				log.Info("purged expired cache records", zap.Int("removed", n))
			}
		}

		engine := analysis.NewEngine(client, store, cfg, log)
		formatter := analysis.NewFormatter(client, log)
		srv := server.New(engine, formatter, store, cfg, log)

		if err := srv.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
		}
		return nil
	},
}

// newLogger builds a production zap logger at the given level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// openStore opens the artifact cache configured in cfg, or returns a nil
// store when caching is disabled.
func openStore(cfg config.Config, log *zap.Logger) (*cache.Store, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	dir := cfg.Cache.Dir
	if dir == "" {
		var err error
		dir, err = config.DefaultCacheDir()
		if err != nil {
			return nil, err
		}
	}
	backend, err := cache.OpenSQLite(dir)
	if err != nil {
		return nil, errors.NewStorage("open", err)
	}
	opts := []cache.StoreOption{cache.WithLogger(log)}
	if cfg.Cache.TTLDays > 0 {
		opts = append(opts, cache.WithTTL(time.Duration(cfg.Cache.TTLDays)*24*time.Hour))
	}
	return cache.NewStore(backend, opts...), nil
}

func init() {
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}
