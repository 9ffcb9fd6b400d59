package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AniJ15/timbr/internal/models"
)

const (
	cacheMetaID    = 1
	usageCounterID = 1
	upsertBatch    = 100
)

// Columns replaced on every refresh. created_at is never overwritten.
var overwriteColumns = []string{
	"address", "city", "state", "zip_code", "price", "property_type",
	"bedrooms", "bathrooms", "image_urls", "description", "features", "updated_at",
}

// Optional columns keep their stored value when the incoming record has none
var mergeColumns = []string{
	"square_feet", "lot_size_acres", "year_built", "latitude", "longitude",
}

type Database struct {
	db     *sql.DB
	gorm   *gorm.DB
	logger *logrus.Logger
}

func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection serializes writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	gdb, err := gorm.Open(sqlite.New(sqlite.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	return &Database{db: db, gorm: gdb, logger: logger}, nil
}

// NewTestDB opens a migrated in-memory database
func NewTestDB() (*Database, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)

	d, err := NewDatabase(":memory:", logger)
	if err != nil {
		return nil, err
	}
	if err := d.RunMigrations(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) GetDB() *gorm.DB {
	return d.gorm
}

// LoadProperties returns up to limit properties, newest first
func (d *Database) LoadProperties(ctx context.Context, limit int) ([]models.Property, error) {
	var properties []models.Property
	q := d.gorm.WithContext(ctx).Order("created_at desc").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&properties).Error; err != nil {
		return nil, fmt.Errorf("failed to load properties: %w", err)
	}
	return properties, nil
}

// LastRefreshed returns nil when no refresh has ever been committed
func (d *Database) LastRefreshed(ctx context.Context) (*time.Time, error) {
	var meta models.CacheMeta
	err := d.gorm.WithContext(ctx).First(&meta, cacheMetaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache metadata: %w", err)
	}
	ts := meta.LastRefreshedAt
	return &ts, nil
}

// CommitRefresh upserts a refresh cycle's properties and stamps the refresh
// time in one transaction, so a failed batch leaves the previous cycle intact
func (d *Database) CommitRefresh(ctx context.Context, properties []models.Property, refreshedAt time.Time) error {
	err := d.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := UpsertProperties(tx, properties); err != nil {
			return fmt.Errorf("failed to upsert properties batch: %w", err)
		}
		meta := models.CacheMeta{ID: cacheMetaID, LastRefreshedAt: refreshedAt}
		if err := tx.Save(&meta).Error; err != nil {
			return fmt.Errorf("failed to stamp refresh time: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"properties":   len(properties),
		"refreshed_at": refreshedAt,
	}).Info("Committed cache refresh")
	return nil
}

// UpsertProperties inserts or updates properties keyed by id
func UpsertProperties(tx *gorm.DB, properties []models.Property) error {
	if len(properties) == 0 {
		return nil
	}

	assignments := clause.AssignmentColumns(overwriteColumns)
	for _, col := range mergeColumns {
		assignments = append(assignments, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(fmt.Sprintf("COALESCE(excluded.%s, properties.%s)", col, col)),
		})
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: assignments,
	}).CreateInBatches(properties, upsertBatch).Error
}

// LoadUsage implements usage.Store
func (d *Database) LoadUsage(ctx context.Context) (models.UsageCounter, bool, error) {
	var counter models.UsageCounter
	err := d.gorm.WithContext(ctx).First(&counter, usageCounterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.UsageCounter{}, false, nil
	}
	if err != nil {
		return models.UsageCounter{}, false, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return counter, true, nil
}

// SaveUsage implements usage.Store
func (d *Database) SaveUsage(ctx context.Context, counter models.UsageCounter) error {
	counter.ID = usageCounterID
	if err := d.gorm.WithContext(ctx).Save(&counter).Error; err != nil {
		return fmt.Errorf("failed to save usage counter: %w", err)
	}
	return nil
}
