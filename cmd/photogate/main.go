// PhotoGate watches a chat for photo uploads, suppresses duplicates and
// floods, and republishes accepted photos on a schedule.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/picstream/photogate/internal/album"
	"github.com/picstream/photogate/internal/api"
	"github.com/picstream/photogate/internal/dedup"
	"github.com/picstream/photogate/internal/flood"
	"github.com/picstream/photogate/internal/hashing"
	"github.com/picstream/photogate/internal/lockfile"
	"github.com/picstream/photogate/internal/pipeline"
	"github.com/picstream/photogate/internal/publish"
	"github.com/picstream/photogate/internal/store"
	"github.com/picstream/photogate/internal/telegram"
	"github.com/picstream/photogate/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PhotoGate state data
	DefaultStateDir = "/var/lib/photogate"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "photogate.db"
)

// Config holds environment configuration
type Config struct {
	BotToken         string
	AdminUserID      int64
	ChatID           int64
	PublishChatID    int64
	StateDir         string
	DBDriver         string
	DBDSN            string
	APIAddr          string
	FloodWindow      time.Duration
	SenderThreshold  int
	AlbumThreshold   int
	WarnCooldown     time.Duration
	AlbumDebounce    time.Duration
	PublishInterval  time.Duration
	HashStrategy     string
	HammingThreshold int
	Debug            bool
}

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	flag.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for PhotoGate data (overrides $PHOTOGATE_STATE_DIR)")
	flag.StringVar(&config.DBDriver, "db-driver", config.DBDriver, "database driver: sqlite3 or postgres (overrides $PHOTOGATE_DB_DRIVER)")
	flag.StringVar(&config.DBDSN, "db-dsn", config.DBDSN, "database DSN (overrides $PHOTOGATE_DB_DSN)")
	flag.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "admin API listen address (overrides $API_ADDR)")
	flag.StringVar(&config.HashStrategy, "hash-strategy", config.HashStrategy, "duplicate matching strategy: exact or hamming (overrides $HASH_STRATEGY)")
	flag.Parse()

	// Only unrecoverable startup misconfiguration is fatal; once events flow,
	// nothing is allowed to terminate the process.
	if config.BotToken == "" {
		slog.Error("BOT_TOKEN not set; refusing to start")
		os.Exit(1)
	}

	if err := run(config); err != nil {
		slog.Error("PhotoGate failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("PhotoGate exited successfully")
}

func run(config Config) error {
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, closeStore, err := openStore(config)
	if err != nil {
		return err
	}
	defer closeStore()

	tg, err := telegram.New(telegram.Config{
		Token:  config.BotToken,
		ChatID: config.ChatID,
	})
	if err != nil {
		return err
	}

	matcher, err := hashing.NewMatcher(config.HashStrategy, config.HammingThreshold)
	if err != nil {
		return err
	}

	guard := flood.NewGuard(flood.Config{
		Window:          config.FloodWindow,
		SenderThreshold: config.SenderThreshold,
		AlbumThreshold:  config.AlbumThreshold,
		WarnCooldown:    config.WarnCooldown,
	})

	engine := dedup.NewEngine(st, hashing.AverageHasher{}, matcher, tg)

	publishChat := config.PublishChatID
	if publishChat == 0 {
		publishChat = config.ChatID
	}
	scheduler := publish.NewScheduler(st, st, func(ctx context.Context, mediaRef string) error {
		return tg.SendPhoto(ctx, publishChat, mediaRef)
	}, config.PublishInterval)

	coordinator := pipeline.NewCoordinator(pipeline.Config{
		AdminUserID: config.AdminUserID,
		SenderLimit: config.SenderThreshold - 1,
		AlbumLimit:  config.AlbumThreshold,
	}, guard, engine, scheduler, tg)

	aggregator := album.NewAggregator(config.AlbumDebounce, coordinator.FlushAlbum)
	coordinator.SetAggregator(aggregator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	if err := tg.Start(ctx); err != nil {
		return err
	}

	apiServer := api.NewServer(config.APIAddr, scheduler, aggregator)
	apiServer.Start()

	go coordinator.Run(ctx)

	slog.Info("PhotoGate running", "chatID", config.ChatID, "hashStrategy", config.HashStrategy, "publishInterval", config.PublishInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down", "signal", sig.String())

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Error("Admin API shutdown failed", "error", err)
	}
	if err := tg.Stop(); err != nil {
		slog.Error("Telegram client shutdown failed", "error", err)
	}
	aggregator.Stop()
	scheduler.Stop()
	return nil
}

// openStore selects the storage backend. SQLite in the state directory is the
// default; Postgres is used when configured.
func openStore(config Config) (storeBackend, func(), error) {
	switch config.DBDriver {
	case "postgres":
		pg, err := store.NewPostgresStore(store.WithDSN(config.DBDSN))
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { pg.Close() }, nil
	default:
		dsn := config.DBDSN
		if dsn == "" {
			dsn = filepath.Join(config.StateDir, DefaultDBFileName)
		}
		sq, err := store.NewSQLiteStore(store.WithDSN(dsn))
		if err != nil {
			return nil, nil, err
		}
		return sq, func() { sq.Close() }, nil
	}
}

// storeBackend is the union of store interfaces the pipeline needs.
type storeBackend interface {
	store.HashRepo
	store.QueueRepo
	store.SchedulerStateRepo
}

// initializeLogger sets up structured logging on stdout.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		BotToken:         os.Getenv("BOT_TOKEN"),
		AdminUserID:      util.ParseInt64Env("ADMIN_USER_ID", 0),
		ChatID:           util.ParseInt64Env("CHAT_ID", 0),
		PublishChatID:    util.ParseInt64Env("PUBLISH_CHAT_ID", 0),
		StateDir:         os.Getenv("PHOTOGATE_STATE_DIR"),
		DBDriver:         os.Getenv("PHOTOGATE_DB_DRIVER"),
		DBDSN:            os.Getenv("PHOTOGATE_DB_DSN"),
		APIAddr:          os.Getenv("API_ADDR"),
		FloodWindow:      util.ParseDurationEnv("FLOOD_WINDOW", flood.DefaultWindow),
		SenderThreshold:  util.ParseIntEnv("FLOOD_SENDER_THRESHOLD", flood.DefaultSenderThreshold),
		AlbumThreshold:   util.ParseIntEnv("FLOOD_ALBUM_THRESHOLD", flood.DefaultAlbumThreshold),
		WarnCooldown:     util.ParseDurationEnv("FLOOD_WARN_COOLDOWN", 0),
		AlbumDebounce:    util.ParseDurationEnv("ALBUM_DEBOUNCE", album.DefaultDebounce),
		PublishInterval:  util.ParseDurationEnv("PUBLISH_INTERVAL", publish.DefaultInterval),
		HashStrategy:     os.Getenv("HASH_STRATEGY"),
		HammingThreshold: util.ParseIntEnv("HASH_HAMMING_THRESHOLD", hashing.DefaultHammingThreshold),
		Debug:            util.ParseBoolEnv("PHOTOGATE_DEBUG", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	return config
}
