package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/autograde/internal/grading"
	"github.com/pavelanni/autograde/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autograde",
		Short: "Automatic exam grading service",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), gradeCmd(), regradeCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `autograde --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "autograde.db", "SQLite database path or PostgreSQL DSN")
}

func addGradingFlags(f *pflag.FlagSet) {
	f.String("redis-addr", "", "Redis address for the shared grade cache (empty = in-process cache)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("cache-ttl", grading.DefaultTTL, "How long graded answers stay cached")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("AUTOGRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("autograde")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/autograde")
	v.AddConfigPath("/etc/autograde")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	driver := store.Driver(strings.ToLower(v.GetString("driver")))
	db, err := store.Open(ctx, driver, v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// redisKeyPrefix namespaces cache keys; grading.Fingerprint adds the "grade:" part.
const redisKeyPrefix = "autograde:"

// newDispatcher builds the grading dispatcher. With --redis-addr set the
// result cache lives in Redis and is shared by every server process.
// The returned func releases the cache connection.
func newDispatcher(ctx context.Context, v *viper.Viper) (*grading.Dispatcher, func(), error) {
	ttl := v.GetDuration("cache-ttl")
	if ttl <= 0 {
		ttl = grading.DefaultTTL
	}

	addr := v.GetString("redis-addr")
	if addr == "" {
		slog.Debug("using in-process grade cache", "ttl", ttl)
		return grading.NewDispatcher(grading.WithCache(grading.NewMemoryCache()), grading.WithTTL(ttl)), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis health check: %w", err)
	}
	slog.Info("redis grade cache OK", "addr", addr, "ttl", ttl)

	cache := grading.NewRedisCache(rdb, redisKeyPrefix)
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	return grading.NewDispatcher(grading.WithCache(cache), grading.WithTTL(ttl)), closeFn, nil
}
