package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniJ15/timbr/internal/database"
	"github.com/AniJ15/timbr/internal/models"
)

func setupTestDB(t testing.TB) *database.Database {
	// Setup test database connection
	db, err := database.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func generateTestProperties(prefix string, count int, createdAt time.Time) []models.Property {
	properties := make([]models.Property, count)
	for i := range properties {
		properties[i] = models.Property{
			ID:        fmt.Sprintf("%s-%d", prefix, i),
			Address:   fmt.Sprintf("Test Address %d", i),
			Price:     500000 + (i * 1000),
			City:      "Austin",
			State:     "TX",
			ZipCode:   "78701",
			CreatedAt: createdAt,
		}
	}
	return properties
}

func TestBatchProcessingIntegration(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := setupTestDB(t)
	logger := logrus.New()
	processor := NewBatchProcessor(db, testConfig(3), logger)
	refreshedAt := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	// Write the same refresh twice; the second is an idempotent upsert
	batch := generateTestProperties("p", 2, refreshedAt)
	require.NoError(t, processor.Commit(ctx, batch, refreshedAt))
	require.NoError(t, processor.Commit(ctx, batch, refreshedAt))
	processor.Stop()

	// Verify properties were stored once
	stored, err := db.LoadProperties(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	ts, err := db.LastRefreshed(ctx)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, refreshedAt.Equal(*ts))
}

func TestBatchProcessingWithConcurrency(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := setupTestDB(t)
	processor := NewBatchProcessor(db, testConfig(3), logrus.New())
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	// Overlapping writers, last writer wins per id
	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := generateTestProperties("shared", 10, base)
			err := processor.Commit(ctx, batch, base.Add(time.Duration(w)*time.Minute))
			assert.NoError(t, err)
		}(w)
	}
	wg.Wait()
	processor.Stop()

	stored, err := db.LoadProperties(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, stored, 10)
}

func BenchmarkBatchProcessing(b *testing.B) {
	db := setupTestDB(b)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // Reduce logging noise during benchmarks
	processor := NewBatchProcessor(db, testConfig(0), logger)

	for _, size := range []int{10, 50, 100} {
		b.Run(fmt.Sprintf("BatchSize_%d", size), func(b *testing.B) {
			batch := generateTestProperties(fmt.Sprintf("bench%d", size), size, time.Now())
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := processor.Commit(context.Background(), batch, time.Now()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
