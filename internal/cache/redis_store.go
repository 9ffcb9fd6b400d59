package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/AniJ15/timbr/internal/models"
)

const (
	propertyKeyPrefix = "timbr:property:"
	createdIndexKey   = "timbr:properties:by_created"
	lastRefreshedKey  = "timbr:cache:last_refreshed"
	usageKey          = "timbr:usage"
)

// RedisStore keeps one JSON document per property plus a sorted set of ids
// scored by creation time. It also stores the usage counter as a hash.
type RedisStore struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

func NewRedisStore(addr, password string, db int, logger *logrus.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return NewRedisStoreFromClient(rdb, logger)
}

func NewRedisStoreFromClient(rdb *redis.Client, logger *logrus.Logger) *RedisStore {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &RedisStore{rdb: rdb, logger: logger}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func propertyKey(id string) string {
	return propertyKeyPrefix + id
}

// LoadProperties returns up to limit properties, newest first
func (s *RedisStore) LoadProperties(ctx context.Context, limit int) ([]models.Property, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.rdb.ZRevRange(ctx, createdIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read property index: %w", err)
	}
	if len(ids) == 0 {
		return []models.Property{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = propertyKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read properties: %w", err)
	}

	properties := make([]models.Property, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.WithField("id", ids[i]).Warn("Indexed property has no document")
			continue
		}
		var p models.Property
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.logger.WithError(err).WithField("id", ids[i]).Warn("Skipping unreadable property document")
			continue
		}
		properties = append(properties, p)
	}
	return properties, nil
}

func (s *RedisStore) LastRefreshed(ctx context.Context) (*time.Time, error) {
	raw, err := s.rdb.Get(ctx, lastRefreshedKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache timestamp: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid cache timestamp %q: %w", raw, err)
	}
	return &ts, nil
}

// CommitRefresh writes the batch and the refresh time in one MULTI/EXEC.
// Stored creation times and optional fields missing from the new records
// are carried over.
func (s *RedisStore) CommitRefresh(ctx context.Context, properties []models.Property, refreshedAt time.Time) error {
	merged, err := s.mergeExisting(ctx, properties)
	if err != nil {
		return err
	}

	docs := make([][]byte, len(merged))
	for i, p := range merged {
		if docs[i], err = json.Marshal(p); err != nil {
			return fmt.Errorf("failed to encode property %s: %w", p.ID, err)
		}
	}

	cmds, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, p := range merged {
			pipe.Set(ctx, propertyKey(p.ID), docs[i], 0)
			pipe.ZAdd(ctx, createdIndexKey, redis.Z{
				Score:  float64(p.CreatedAt.UnixMilli()),
				Member: p.ID,
			})
		}
		pipe.Set(ctx, lastRefreshedKey, refreshedAt.UTC().Format(time.RFC3339Nano), 0)
		return nil
	})
	if err != nil {
		failed := 0
		for _, cmd := range cmds {
			if cmd.Err() != nil {
				failed++
			}
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"properties":      len(merged),
			"commands":        len(cmds),
			"failed_commands": failed,
		}).Error("Cache batch write discrepancy")
		return fmt.Errorf("failed to commit refresh: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"properties":   len(merged),
		"refreshed_at": refreshedAt,
	}).Info("Committed cache refresh")
	return nil
}

func (s *RedisStore) mergeExisting(ctx context.Context, properties []models.Property) ([]models.Property, error) {
	merged := append([]models.Property(nil), properties...)
	if len(merged) == 0 {
		return merged, nil
	}

	keys := make([]string, len(merged))
	for i, p := range merged {
		keys[i] = propertyKey(p.ID)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read existing properties: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var old models.Property
		if err := json.Unmarshal([]byte(raw), &old); err != nil {
			continue
		}
		merged[i] = mergeProperty(old, merged[i])
	}
	return merged, nil
}

func mergeProperty(old, next models.Property) models.Property {
	if !old.CreatedAt.IsZero() {
		next.CreatedAt = old.CreatedAt
	}
	if next.SquareFeet == nil {
		next.SquareFeet = old.SquareFeet
	}
	if next.LotSizeAcres == nil {
		next.LotSizeAcres = old.LotSizeAcres
	}
	if next.YearBuilt == nil {
		next.YearBuilt = old.YearBuilt
	}
	if next.Latitude == nil {
		next.Latitude = old.Latitude
	}
	if next.Longitude == nil {
		next.Longitude = old.Longitude
	}
	return next
}

// LoadUsage implements usage.Store
func (s *RedisStore) LoadUsage(ctx context.Context) (models.UsageCounter, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, usageKey).Result()
	if err != nil {
		return models.UsageCounter{}, false, fmt.Errorf("failed to read usage counter: %w", err)
	}
	if len(fields) == 0 {
		return models.UsageCounter{}, false, nil
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return models.UsageCounter{}, false, fmt.Errorf("invalid usage count %q: %w", fields["count"], err)
	}
	periodEnd, err := time.Parse(time.RFC3339Nano, fields["period_end"])
	if err != nil {
		return models.UsageCounter{}, false, fmt.Errorf("invalid usage period end %q: %w", fields["period_end"], err)
	}
	return models.UsageCounter{Count: count, PeriodEnd: periodEnd}, true, nil
}

// SaveUsage implements usage.Store
func (s *RedisStore) SaveUsage(ctx context.Context, counter models.UsageCounter) error {
	err := s.rdb.HSet(ctx, usageKey,
		"count", counter.Count,
		"period_end", counter.PeriodEnd.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save usage counter: %w", err)
	}
	return nil
}
