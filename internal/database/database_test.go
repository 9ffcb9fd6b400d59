package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniJ15/timbr/internal/models"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestDatabase_LastRefreshedEmpty(t *testing.T) {
	db := setupTestDB(t)

	ts, err := db.LastRefreshed(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestDatabase_CommitRefresh(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	refreshedAt := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

	props := []models.Property{
		{ID: "a", City: "Austin", State: "TX", Price: 300000, ImageURLs: []string{"x.jpg"}, Features: []string{"3 Beds"}, CreatedAt: refreshedAt},
		{ID: "b", City: "Austin", State: "TX", Price: 400000, CreatedAt: refreshedAt.Add(time.Minute)},
	}
	require.NoError(t, db.CommitRefresh(ctx, props, refreshedAt))

	ts, err := db.LastRefreshed(ctx)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, refreshedAt.Equal(*ts))

	loaded, err := db.LoadProperties(ctx, 100)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "b", loaded[0].ID, "newest first")
	assert.Equal(t, []string{"x.jpg"}, loaded[1].ImageURLs)
	assert.Equal(t, []string{"3 Beds"}, loaded[1].Features)
}

func TestDatabase_UpsertIsIdempotentAndMerges(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	first := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)

	original := models.Property{
		ID:         "a",
		Price:      300000,
		SquareFeet: intPtr(1500),
		Latitude:   floatPtr(30.1),
		Longitude:  floatPtr(-97.1),
		CreatedAt:  first,
	}
	require.NoError(t, db.CommitRefresh(ctx, []models.Property{original}, first))

	// Same listing again, cheaper and without optional fields
	update := models.Property{ID: "a", Price: 280000, CreatedAt: second}
	require.NoError(t, db.CommitRefresh(ctx, []models.Property{update}, second))

	loaded, err := db.LoadProperties(ctx, 100)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, 280000, got.Price)
	require.NotNil(t, got.SquareFeet)
	assert.Equal(t, 1500, *got.SquareFeet)
	require.NotNil(t, got.Latitude)
	assert.Equal(t, 30.1, *got.Latitude)
	assert.True(t, first.Equal(got.CreatedAt), "created_at is never overwritten")

	ts, err := db.LastRefreshed(ctx)
	require.NoError(t, err)
	assert.True(t, second.Equal(*ts))
}

func TestDatabase_LoadPropertiesCap(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	var props []models.Property
	for i := 0; i < 120; i++ {
		props = append(props, models.Property{
			ID:        time.Duration(i).String(),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, db.CommitRefresh(ctx, props, base))

	loaded, err := db.LoadProperties(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, loaded, 100)
	assert.True(t, base.Add(119*time.Minute).Equal(loaded[0].CreatedAt))
}

func TestDatabase_Usage(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	_, found, err := db.LoadUsage(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	periodEnd := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveUsage(ctx, models.UsageCounter{Count: 7, PeriodEnd: periodEnd}))
	require.NoError(t, db.SaveUsage(ctx, models.UsageCounter{Count: 8, PeriodEnd: periodEnd}))

	counter, found, err := db.LoadUsage(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 8, counter.Count)
	assert.True(t, periodEnd.Equal(counter.PeriodEnd))
}
