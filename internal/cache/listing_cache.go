package cache

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AniJ15/timbr/internal/models"
)

const (
	DefaultMaxAge       = 24 * time.Hour
	DefaultRetentionCap = 100
)

// Store is the persistence behind a ListingCache
type Store interface {
	LoadProperties(ctx context.Context, limit int) ([]models.Property, error)
	LastRefreshed(ctx context.Context) (*time.Time, error)
}

// Writer commits a refresh batch together with its timestamp
type Writer interface {
	Commit(ctx context.Context, batch []models.Property, refreshedAt time.Time) error
}

// ListingCache holds normalized properties and the time of the last
// successful refresh
type ListingCache struct {
	store        Store
	writer       Writer
	maxAge       time.Duration
	retentionCap int
	now          func() time.Time
	logger       *logrus.Logger
}

type Option func(*ListingCache)

func WithClock(now func() time.Time) Option {
	return func(c *ListingCache) { c.now = now }
}

func WithMaxAge(d time.Duration) Option {
	return func(c *ListingCache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

func WithRetentionCap(n int) Option {
	return func(c *ListingCache) {
		if n > 0 {
			c.retentionCap = n
		}
	}
}

func NewListingCache(store Store, writer Writer, logger *logrus.Logger, opts ...Option) *ListingCache {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	c := &ListingCache{
		store:        store,
		writer:       writer,
		maxAge:       DefaultMaxAge,
		retentionCap: DefaultRetentionCap,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsStale reports whether a fetch is needed. A cache that was never
// refreshed from the API is always stale, as is one whose timestamp cannot
// be read.
func (c *ListingCache) IsStale(ctx context.Context) bool {
	ts, err := c.store.LastRefreshed(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Could not read cache timestamp, treating cache as stale")
		return true
	}
	if ts == nil {
		return true
	}
	return c.now().Sub(*ts) > c.maxAge
}

// LastRefreshed returns the time of the last committed refresh, if any
func (c *ListingCache) LastRefreshed(ctx context.Context) (*time.Time, error) {
	return c.store.LastRefreshed(ctx)
}

// Load returns the most recent properties up to the retention cap
func (c *ListingCache) Load(ctx context.Context) ([]models.Property, error) {
	return c.store.LoadProperties(ctx, c.retentionCap)
}

// Upsert writes properties keyed by id and stamps the refresh time. The
// write completes even if ctx is canceled first.
func (c *ListingCache) Upsert(ctx context.Context, properties []models.Property) error {
	refreshedAt := c.now()
	if err := c.writer.Commit(ctx, properties, refreshedAt); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"properties":   len(properties),
		"refreshed_at": refreshedAt,
	}).Debug("Cache refreshed")
	return nil
}
