package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/AniJ15/timbr/config"
	"github.com/AniJ15/timbr/internal/acquisition"
	"github.com/AniJ15/timbr/internal/cache"
	"github.com/AniJ15/timbr/internal/database"
	"github.com/AniJ15/timbr/internal/deck"
	"github.com/AniJ15/timbr/internal/geocoding"
	"github.com/AniJ15/timbr/internal/listings"
	"github.com/AniJ15/timbr/internal/location"
	"github.com/AniJ15/timbr/internal/normalizer"
	"github.com/AniJ15/timbr/internal/preferences"
	"github.com/AniJ15/timbr/internal/processor"
	"github.com/AniJ15/timbr/internal/usage"
)

// backend is what either storage option provides
type backend interface {
	cache.Store
	processor.Committer
	usage.Store
	Close() error
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.Log.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.WithError(err).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func openBackend(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (backend, error) {
	if cfg.Cache.Backend == config.BackendRedis {
		store := cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, logger)
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, err
		}
		logger.WithField("addr", cfg.Cache.RedisAddr).Info("Using redis cache")
		return store, nil
	}

	logger.WithField("path", cfg.Cache.DatabasePath).Info("Using sqlite cache")
	db, err := database.NewDatabase(cfg.Cache.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func main() {
	showUsage := flag.Bool("usage", false, "print listings API usage for the current period and exit")
	flag.Parse()

	// A missing .env file is fine; the environment may be set directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open cache backend")
	}
	defer store.Close()

	tracker, err := usage.NewTracker(ctx, store, cfg.Listings.MonthlyQuota, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize usage tracker")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if *showUsage {
		if err := encoder.Encode(tracker.Snapshot(ctx)); err != nil {
			logger.WithError(err).Fatal("Failed to write usage")
		}
		return
	}

	prefsStore := preferences.NewFileStore(cfg.Preferences.Path)
	prefs, err := prefsStore.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load preferences")
	}
	if !prefs.HasCompletedOnboarding {
		logger.WithField("path", cfg.Preferences.Path).Warn("Onboarding not completed, nothing to show")
		return
	}

	batchProcessor := processor.NewBatchProcessor(store, cfg, logger)
	defer batchProcessor.Stop()

	listingCache := cache.NewListingCache(store, batchProcessor, logger,
		cache.WithMaxAge(cfg.Cache.MaxAge),
		cache.WithRetentionCap(cfg.Cache.RetentionCap),
	)

	geocoder := geocoding.NewGeocoder(geocoding.Options{
		BaseURL:           cfg.Geocoding.BaseURL,
		CacheDir:          cfg.Geocoding.CacheDir,
		UserAgent:         cfg.Geocoding.UserAgent,
		ReuseRadiusMeters: cfg.Geocoding.ReuseRadiusMeters,
		RetryMax:          2,
	}, logger)

	client := listings.NewClient(listings.Options{
		BaseURL:            cfg.Listings.BaseURL,
		Path:               cfg.Listings.Path,
		APIKey:             cfg.Listings.APIKey,
		Timeout:            cfg.Listings.Timeout,
		MinRequestInterval: cfg.Listings.MinRequestInterval,
	}, tracker, logger)

	service := acquisition.NewService(acquisition.Dependencies{
		Cache:       listingCache,
		Resolver:    location.NewResolver(geocoder, logger),
		Client:      client,
		Quota:       tracker,
		Normalizer:  normalizer.New(),
		Preferences: prefsStore,
	}, cfg.Listings.FetchLimit, logger)

	start := time.Now()
	result := service.Acquire(ctx, &prefs)
	result.Properties = deck.Assemble(result.Properties, prefs, deck.NewLedger())

	fields := logrus.Fields{
		"source":     result.Source,
		"properties": len(result.Properties),
		"duration":   time.Since(start).String(),
	}
	if result.Err != nil {
		logger.WithError(result.Err).WithFields(fields).Warn("Acquisition degraded")
	} else {
		logger.WithFields(fields).Info("Acquisition complete")
	}

	if err := encoder.Encode(result); err != nil {
		logger.WithError(err).Error("Failed to write deck")
	}
}
