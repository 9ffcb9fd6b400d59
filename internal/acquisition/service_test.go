package acquisition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AniJ15/timbr/internal/listings"
	"github.com/AniJ15/timbr/internal/location"
	"github.com/AniJ15/timbr/internal/models"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) IsStale(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockCache) Load(ctx context.Context) ([]models.Property, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Property), args.Error(1)
}

func (m *MockCache) Upsert(ctx context.Context, properties []models.Property) error {
	return m.Called(ctx, properties).Error(0)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, prefs *models.UserPreferences) (models.QueryKey, error) {
	args := m.Called(ctx, prefs)
	return args.Get(0).(models.QueryKey), args.Error(1)
}

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Fetch(ctx context.Context, key models.QueryKey, filters listings.Filters, limit int) ([]listings.RawListing, error) {
	args := m.Called(ctx, key, filters, limit)
	raw, _ := args.Get(0).([]listings.RawListing)
	return raw, args.Error(1)
}

type MockQuota struct {
	mock.Mock
}

func (m *MockQuota) CanConsume(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

type MockPreferences struct {
	mock.Mock
}

func (m *MockPreferences) SaveLocation(location string) error {
	return m.Called(location).Error(0)
}

// idNormalizer turns each raw listing into a property carrying its id and price
type idNormalizer struct{}

func (idNormalizer) NormalizeAll(raw []listings.RawListing) []models.Property {
	out := make([]models.Property, 0, len(raw))
	for _, l := range raw {
		out = append(out, models.Property{
			ID:           string(l.ID),
			Price:        l.Price.Value,
			PropertyType: models.PropertyTypeHouse,
		})
	}
	return out
}

type fixture struct {
	cache    *MockCache
	resolver *MockResolver
	client   *MockClient
	quota    *MockQuota
	prefs    *MockPreferences
	service  *Service
}

func newFixture() *fixture {
	f := &fixture{
		cache:    new(MockCache),
		resolver: new(MockResolver),
		client:   new(MockClient),
		quota:    new(MockQuota),
		prefs:    new(MockPreferences),
	}
	logger, _ := test.NewNullLogger()
	f.service = NewService(Dependencies{
		Cache:       f.cache,
		Resolver:    f.resolver,
		Client:      f.client,
		Quota:       f.quota,
		Normalizer:  idNormalizer{},
		Preferences: f.prefs,
	}, 50, logger)
	return f
}

func intPtr(v int) *int { return &v }

var austin = models.CityStateKey("Austin", "TX")

func cachedDeck() []models.Property {
	return []models.Property{
		{ID: "c1", PropertyType: models.PropertyTypeHouse, Price: 200000},
		{ID: "c2", PropertyType: models.PropertyTypeCondo, Price: 500000},
	}
}

func TestService_FreshCacheServedWithoutFetch(t *testing.T) {
	// Setup
	f := newFixture()
	f.cache.On("IsStale", mock.Anything).Return(false)
	f.cache.On("Load", mock.Anything).Return(cachedDeck(), nil)
	prefs := models.UserPreferences{Location: "Austin, TX", MaxPrice: intPtr(300000)}

	// Execute
	res := f.service.Acquire(context.Background(), &prefs)

	// Verify
	assert.Equal(t, SourceCache, res.Source)
	assert.Empty(t, res.Advisory)
	assert.NoError(t, res.Err)
	require.Len(t, res.Properties, 1)
	assert.Equal(t, "c1", res.Properties[0].ID)
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	f.client.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_StaleCacheFetchesAndWritesThrough(t *testing.T) {
	f := newFixture()
	f.cache.On("IsStale", mock.Anything).Return(true)
	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(austin, nil)
	f.quota.On("CanConsume", mock.Anything).Return(true)
	f.client.On("Fetch", mock.Anything, austin, mock.Anything, 50).Return([]listings.RawListing{
		{ID: "f1", Price: listings.Int(100000)},
		{ID: "f2", Price: listings.Int(900000)},
	}, nil)
	f.cache.On("Upsert", mock.Anything, mock.MatchedBy(func(p []models.Property) bool { return len(p) == 2 })).Return(nil)
	prefs := models.UserPreferences{Location: "Austin, TX", MinPrice: intPtr(500000)}

	res := f.service.Acquire(context.Background(), &prefs)

	assert.Equal(t, SourceFresh, res.Source)
	assert.NoError(t, res.Err)
	require.Len(t, res.Properties, 1)
	assert.Equal(t, "f2", res.Properties[0].ID)
	f.cache.AssertExpectations(t)
	f.cache.AssertNotCalled(t, "Load", mock.Anything)
}

func TestService_LocationFailure(t *testing.T) {
	tests := []struct {
		name   string
		cached []models.Property
		source Source
	}{
		{"with cache", cachedDeck(), SourceCache},
		{"empty cache", []models.Property{}, SourceEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.cache.On("IsStale", mock.Anything).Return(true)
			f.cache.On("Load", mock.Anything).Return(tt.cached, nil)
			f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(models.QueryKey{}, location.ErrNoLocationData)
			prefs := models.UserPreferences{}

			res := f.service.Acquire(context.Background(), &prefs)

			assert.Equal(t, tt.source, res.Source)
			assert.Equal(t, AdvisorySetLocation, res.Advisory)
			assert.ErrorIs(t, res.Err, ErrLocationUndeterminable)
			assert.Len(t, res.Properties, len(tt.cached))
			f.client.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_QuotaExhaustedIssuesNoRequest(t *testing.T) {
	f := newFixture()
	f.cache.On("IsStale", mock.Anything).Return(true)
	f.cache.On("Load", mock.Anything).Return(cachedDeck(), nil)
	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(austin, nil)
	f.quota.On("CanConsume", mock.Anything).Return(false)
	prefs := models.UserPreferences{Location: "Austin, TX"}

	res := f.service.Acquire(context.Background(), &prefs)

	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, AdvisoryQuotaReached, res.Advisory)
	assert.ErrorIs(t, res.Err, ErrQuotaExceeded)
	assert.Len(t, res.Properties, 2)
	f.client.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_FetchFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		cached   []models.Property
		advisory string
		wantErr  error
	}{
		{
			name:     "network with cache",
			err:      &listings.ClientError{Kind: listings.KindUnreachable},
			cached:   cachedDeck(),
			advisory: AdvisoryDegraded,
			wantErr:  ErrUpstreamUnreachable,
		},
		{
			name:     "network without cache",
			err:      &listings.ClientError{Kind: listings.KindUnreachable},
			cached:   []models.Property{},
			advisory: AdvisoryNoProperties,
			wantErr:  ErrUpstreamUnreachable,
		},
		{
			name:     "quota hit inside client",
			err:      &listings.ClientError{Kind: listings.KindRateLimitExceeded},
			cached:   cachedDeck(),
			advisory: AdvisoryQuotaReached,
			wantErr:  ErrQuotaExceeded,
		},
		{
			name:     "malformed payload",
			err:      &listings.ClientError{Kind: listings.KindDecodingError},
			cached:   cachedDeck(),
			advisory: AdvisoryDegraded,
			wantErr:  ErrMalformedUpstreamPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.cache.On("IsStale", mock.Anything).Return(true)
			f.cache.On("Load", mock.Anything).Return(tt.cached, nil)
			f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(austin, nil)
			f.quota.On("CanConsume", mock.Anything).Return(true)
			f.client.On("Fetch", mock.Anything, austin, mock.Anything, 50).Return(nil, tt.err)
			prefs := models.UserPreferences{Location: "Austin, TX"}

			res := f.service.Acquire(context.Background(), &prefs)

			assert.Equal(t, tt.advisory, res.Advisory)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.Len(t, res.Properties, len(tt.cached))
			f.cache.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
		})
	}
}

func TestService_EmptyResult(t *testing.T) {
	tests := []struct {
		name     string
		cached   []models.Property
		source   Source
		advisory string
	}{
		{"serves cache", cachedDeck(), SourceCache, ""},
		{"nothing anywhere", []models.Property{}, SourceEmpty, AdvisoryNoProperties},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.cache.On("IsStale", mock.Anything).Return(true)
			f.cache.On("Load", mock.Anything).Return(tt.cached, nil)
			f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(austin, nil)
			f.quota.On("CanConsume", mock.Anything).Return(true)
			f.client.On("Fetch", mock.Anything, austin, mock.Anything, 50).Return([]listings.RawListing{}, nil)
			prefs := models.UserPreferences{Location: "Austin, TX"}

			res := f.service.Acquire(context.Background(), &prefs)

			assert.Equal(t, tt.source, res.Source)
			assert.Equal(t, tt.advisory, res.Advisory)
			assert.NoError(t, res.Err)
			f.cache.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
		})
	}
}

func TestService_CacheWriteFailureStillServesFresh(t *testing.T) {
	f := newFixture()
	f.cache.On("IsStale", mock.Anything).Return(true)
	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(austin, nil)
	f.quota.On("CanConsume", mock.Anything).Return(true)
	f.client.On("Fetch", mock.Anything, austin, mock.Anything, 50).Return([]listings.RawListing{{ID: "f1"}}, nil)
	f.cache.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("database is locked"))
	prefs := models.UserPreferences{Location: "Austin, TX"}

	res := f.service.Acquire(context.Background(), &prefs)

	assert.Equal(t, SourceFresh, res.Source)
	assert.Len(t, res.Properties, 1)
	assert.Empty(t, res.Advisory)
	assert.ErrorIs(t, res.Err, ErrCacheUnavailable)
}

func TestService_LocationWriteBack(t *testing.T) {
	f := newFixture()
	f.cache.On("IsStale", mock.Anything).Return(true)
	f.resolver.On("Resolve", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.UserPreferences).Location = "Austin, TX"
		}).
		Return(austin, nil)
	f.prefs.On("SaveLocation", "Austin, TX").Return(nil).Once()
	f.quota.On("CanConsume", mock.Anything).Return(true)
	f.client.On("Fetch", mock.Anything, austin, mock.Anything, 50).Return([]listings.RawListing{{ID: "f1"}}, nil)
	f.cache.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	lat, lng := 30.2672, -97.7431
	prefs := models.UserPreferences{Location: models.CurrentLocation, Latitude: &lat, Longitude: &lng}

	f.service.Acquire(context.Background(), &prefs)

	assert.Equal(t, "Austin, TX", prefs.Location)
	f.prefs.AssertExpectations(t)
}

func TestService_SingleFlight(t *testing.T) {
	// Setup
	f := newFixture()
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	f.cache.On("IsStale", mock.Anything).Return(true)
	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(austin, nil)
	f.quota.On("CanConsume", mock.Anything).Return(true)
	f.client.On("Fetch", mock.Anything, austin, mock.Anything, 50).
		Run(func(args mock.Arguments) {
			once.Do(func() { close(started) })
			<-release
		}).
		Return([]listings.RawListing{{ID: "f1"}}, nil)
	f.cache.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	// Execute: the first call blocks in Fetch, the second joins it
	results := make(chan Result, 2)
	go func() {
		prefs := models.UserPreferences{Location: "Austin, TX"}
		results <- f.service.Acquire(context.Background(), &prefs)
	}()
	<-started
	go func() {
		prefs := models.UserPreferences{Location: "Austin, TX"}
		results <- f.service.Acquire(context.Background(), &prefs)
	}()

	// Give the second caller time to join before releasing the fetch
	time.Sleep(50 * time.Millisecond)
	close(release)

	// Verify
	for i := 0; i < 2; i++ {
		res := <-results
		assert.Equal(t, SourceFresh, res.Source)
		assert.Len(t, res.Properties, 1)
	}
	f.client.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestService_CanceledCallerLeavesWorkRunning(t *testing.T) {
	// Setup
	f := newFixture()
	release := make(chan struct{})
	upserted := make(chan struct{})

	f.cache.On("IsStale", mock.Anything).Return(true)
	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(austin, nil)
	f.quota.On("CanConsume", mock.Anything).Return(true)
	f.client.On("Fetch", mock.Anything, austin, mock.Anything, 50).
		Run(func(args mock.Arguments) { <-release }).
		Return([]listings.RawListing{{ID: "f1"}}, nil)
	f.cache.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			assert.NoError(t, args.Get(0).(context.Context).Err())
			close(upserted)
		}).
		Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	prefs := models.UserPreferences{Location: "Austin, TX"}

	// Execute
	done := make(chan Result, 1)
	go func() { done <- f.service.Acquire(ctx, &prefs) }()
	cancel()

	// Verify
	res := <-done
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, res.Properties)

	close(release)
	select {
	case <-upserted:
	case <-time.After(2 * time.Second):
		t.Fatal("write-through did not complete after the caller left")
	}
}
