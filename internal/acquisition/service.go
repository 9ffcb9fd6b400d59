package acquisition

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/AniJ15/timbr/internal/deck"
	"github.com/AniJ15/timbr/internal/listings"
	"github.com/AniJ15/timbr/internal/models"
)

// Advisories shown to the user in place of raw errors
const (
	AdvisorySetLocation  = "Set your location to see properties near you."
	AdvisoryQuotaReached = "Monthly listing refresh limit reached. Showing saved results."
	AdvisoryDegraded     = "Couldn't refresh listings. Showing saved results."
	AdvisoryNoProperties = "No properties found. Try adjusting your preferences."
)

// Source says where the served properties came from
type Source string

const (
	SourceCache Source = "cache"
	SourceFresh Source = "fresh"
	SourceEmpty Source = "empty"
)

// State names the steps of an acquisition, used in logs
type State string

const (
	StateIdle               State = "idle"
	StateResolvingLocation  State = "resolving_location"
	StateFetching           State = "fetching"
	StateNormalizingCaching State = "normalizing_caching"
	StateServing            State = "serving"
)

// Result is what the deck is built from. Err is the classified failure
// behind a degraded result and is never fatal; Advisory is the text to show.
type Result struct {
	Properties []models.Property `json:"properties"`
	Source     Source            `json:"source"`
	Advisory   string            `json:"advisory,omitempty"`
	Err        error             `json:"-"`
}

type Cache interface {
	IsStale(ctx context.Context) bool
	Load(ctx context.Context) ([]models.Property, error)
	Upsert(ctx context.Context, properties []models.Property) error
}

type LocationResolver interface {
	Resolve(ctx context.Context, prefs *models.UserPreferences) (models.QueryKey, error)
}

type ListingsClient interface {
	Fetch(ctx context.Context, key models.QueryKey, filters listings.Filters, limit int) ([]listings.RawListing, error)
}

type Quota interface {
	CanConsume(ctx context.Context) bool
}

type Normalizer interface {
	NormalizeAll(raw []listings.RawListing) []models.Property
}

// LocationWriter persists a location resolved from coordinates
type LocationWriter interface {
	SaveLocation(location string) error
}

type Dependencies struct {
	Cache      Cache
	Resolver   LocationResolver
	Client     ListingsClient
	Quota      Quota
	Normalizer Normalizer

	// Preferences is optional
	Preferences LocationWriter
}

// Service decides between cache and upstream and always produces a deck
type Service struct {
	deps   Dependencies
	limit  int
	group  singleflight.Group
	logger *logrus.Logger
}

func NewService(deps Dependencies, fetchLimit int, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Service{deps: deps, limit: fetchLimit, logger: logger}
}

type flightResult struct {
	result   Result
	location string
}

// Acquire produces the properties for a deck. Concurrent calls with the same
// preferences share one acquisition. The shared work runs detached from ctx;
// if ctx ends first the caller gets ctx.Err() and the work completes anyway.
//
// A location resolved from coordinates is written back into prefs.
func (s *Service) Acquire(ctx context.Context, prefs *models.UserPreferences) Result {
	key := flightKey(*prefs)
	snapshot := prefs.Clone()

	ch := s.group.DoChan(key, func() (interface{}, error) {
		p := snapshot
		res := s.acquire(context.WithoutCancel(ctx), &p)
		return flightResult{result: res, location: p.Location}, nil
	})

	select {
	case r := <-ch:
		fr := r.Val.(flightResult)
		if r.Shared {
			s.logger.WithField("flight", key).Debug("Joined in-flight acquisition")
		}
		if fr.location != "" {
			prefs.Location = fr.location
		}
		res := fr.result
		res.Properties = append([]models.Property(nil), res.Properties...)
		return res
	case <-ctx.Done():
		return Result{Properties: []models.Property{}, Source: SourceEmpty, Err: ctx.Err()}
	}
}

func (s *Service) acquire(ctx context.Context, prefs *models.UserPreferences) Result {
	log := s.logger.WithField("location", prefs.Location)
	log.WithField("state", StateIdle).Debug("Starting acquisition")

	if !s.deps.Cache.IsStale(ctx) {
		cached, err := s.deps.Cache.Load(ctx)
		if err == nil {
			log.WithFields(logrus.Fields{
				"state":      StateServing,
				"source":     SourceCache,
				"properties": len(cached),
			}).Info("Serving fresh cache")
			return s.serve(cached, *prefs, SourceCache, "", nil)
		}
		log.WithError(err).Warn("Cache is fresh but unreadable, fetching instead")
	}

	log.WithField("state", StateResolvingLocation).Debug("Resolving location")
	previous := prefs.Location
	key, err := s.deps.Resolver.Resolve(ctx, prefs)
	if err != nil {
		log.WithError(err).Warn("Could not resolve location")
		cached, _ := s.loadCached(ctx)
		return s.serve(cached, *prefs, SourceCache, AdvisorySetLocation, Classify(err))
	}
	if prefs.Location != previous {
		s.persistLocation(prefs.Location)
	}
	log = log.WithField("query", key.String())

	log.WithField("state", StateFetching).Debug("Fetching listings")
	if !s.deps.Quota.CanConsume(ctx) {
		log.Warn("Listings quota exhausted, serving cache")
		cached, _ := s.loadCached(ctx)
		return s.serve(cached, *prefs, SourceCache, AdvisoryQuotaReached, ErrQuotaExceeded)
	}

	raw, err := s.deps.Client.Fetch(ctx, key, listings.FiltersFromPreferences(*prefs), s.limit)
	if err != nil {
		classified := Classify(err)
		log.WithError(err).Warn("Listings fetch failed, serving cache")
		cached, _ := s.loadCached(ctx)

		advisory := AdvisoryDegraded
		switch {
		case errors.Is(classified, ErrQuotaExceeded):
			advisory = AdvisoryQuotaReached
		case len(cached) == 0:
			advisory = AdvisoryNoProperties
		}
		return s.serve(cached, *prefs, SourceCache, advisory, classified)
	}

	log.WithField("state", StateNormalizingCaching).Debug("Normalizing listings")
	fresh := s.deps.Normalizer.NormalizeAll(raw)
	if len(fresh) == 0 {
		log.Info("Upstream returned no listings")
		cached, _ := s.loadCached(ctx)
		advisory := ""
		if len(cached) == 0 {
			advisory = AdvisoryNoProperties
		}
		return s.serve(cached, *prefs, SourceCache, advisory, nil)
	}

	var cacheErr error
	if err := s.deps.Cache.Upsert(ctx, fresh); err != nil {
		// Fresh data is still served; the next acquisition retries the write
		cacheErr = errors.Join(ErrCacheUnavailable, err)
		log.WithError(err).Error("Failed to write listings through to cache")
	}

	log.WithFields(logrus.Fields{
		"state":      StateServing,
		"source":     SourceFresh,
		"properties": len(fresh),
	}).Info("Serving fresh listings")
	return s.serve(fresh, *prefs, SourceFresh, "", cacheErr)
}

func (s *Service) serve(properties []models.Property, prefs models.UserPreferences, source Source, advisory string, err error) Result {
	if len(properties) == 0 {
		if advisory == "" {
			advisory = AdvisoryNoProperties
		}
		return Result{Properties: []models.Property{}, Source: SourceEmpty, Advisory: advisory, Err: err}
	}
	return Result{
		Properties: deck.Filter(properties, prefs),
		Source:     source,
		Advisory:   advisory,
		Err:        err,
	}
}

func (s *Service) loadCached(ctx context.Context) ([]models.Property, error) {
	cached, err := s.deps.Cache.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load cached listings")
		return nil, errors.Join(ErrCacheUnavailable, err)
	}
	return cached, nil
}

func (s *Service) persistLocation(location string) {
	if s.deps.Preferences == nil {
		return
	}
	if err := s.deps.Preferences.SaveLocation(location); err != nil {
		s.logger.WithError(err).WithField("location", location).Warn("Failed to persist resolved location")
	}
}

// flightKey identifies a preference set for single-flight purposes
func flightKey(prefs models.UserPreferences) string {
	key, _ := json.Marshal(struct {
		Location  string                `json:"l"`
		Latitude  *float64              `json:"lat"`
		Longitude *float64              `json:"lng"`
		Types     []models.PropertyType `json:"t"`
		MinPrice  *int                  `json:"min"`
		MaxPrice  *int                  `json:"max"`
	}{prefs.Location, prefs.Latitude, prefs.Longitude, prefs.PropertyTypes, prefs.MinPrice, prefs.MaxPrice})
	return string(key)
}
