package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/AniJ15/timbr/internal/models"
)

const cacheFileName = "reverse_geocode_cache.json"

// ErrNoResult is returned when the geocoder has no city and state for a point
var ErrNoResult = errors.New("no place found for coordinates")

// Place is the result of a reverse lookup
type Place struct {
	City  string `json:"city"`
	State string `json:"state"`
}

type cachedPlace struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Place
}

type Options struct {
	BaseURL            string
	CacheDir           string
	UserAgent          string
	ReuseRadiusMeters  float64
	MinRequestInterval time.Duration
	RetryMax           int
}

type Geocoder struct {
	logger      *logrus.Logger
	baseURL     string
	userAgent   string
	cacheDir    string
	reuseRadius float64
	cache       []cachedPlace
	cacheLock   sync.RWMutex
	client      *retryablehttp.Client
	limiter     *rate.Limiter
}

func NewGeocoder(opts Options, logger *logrus.Logger) *Geocoder {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "timbr/1.0"
	}

	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.RetryMax = opts.RetryMax
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = leveledLogger{logger}

	// Nominatim allows one request per second
	limit := rate.Every(time.Second)
	if opts.MinRequestInterval > 0 {
		limit = rate.Every(opts.MinRequestInterval)
	}

	g := &Geocoder{
		logger:      logger,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		userAgent:   opts.UserAgent,
		cacheDir:    opts.CacheDir,
		reuseRadius: opts.ReuseRadiusMeters,
		client:      rc,
		limiter:     rate.NewLimiter(limit, 1),
	}

	if g.cacheDir != "" {
		if err := os.MkdirAll(g.cacheDir, 0755); err != nil {
			logger.WithError(err).Warn("Could not create geocode cache directory")
		}
		g.loadCache()
	}

	return g
}

func (g *Geocoder) loadCache() {
	data, err := os.ReadFile(filepath.Join(g.cacheDir, cacheFileName))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.logger.WithError(err).Warn("Could not load geocode cache")
		}
		return
	}

	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.WithError(err).Error("Failed to parse geocode cache")
		g.cache = nil
		return
	}

	g.logger.WithField("entries", len(g.cache)).Info("Loaded geocode cache")
}

func (g *Geocoder) saveCache() {
	if g.cacheDir == "" {
		return
	}

	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		g.logger.WithError(err).Error("Failed to marshal geocode cache")
		return
	}

	if err := os.WriteFile(filepath.Join(g.cacheDir, cacheFileName), data, 0644); err != nil {
		g.logger.WithError(err).Error("Failed to save geocode cache")
	}
}

// lookup returns the nearest cached place within the reuse radius
func (g *Geocoder) lookup(lat, lng float64) (Place, bool) {
	g.cacheLock.RLock()
	defer g.cacheLock.RUnlock()

	point := orb.Point{lng, lat}
	best := -1
	bestDistance := 0.0
	for i, c := range g.cache {
		d := geo.Distance(point, orb.Point{c.Longitude, c.Latitude})
		if d > g.reuseRadius {
			continue
		}
		if best < 0 || d < bestDistance {
			best, bestDistance = i, d
		}
	}
	if best < 0 {
		return Place{}, false
	}
	return g.cache[best].Place, true
}

type nominatimReverse struct {
	Error   string `json:"error"`
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Hamlet  string `json:"hamlet"`
		County  string `json:"county"`
		State   string `json:"state"`
		ISOCode string `json:"ISO3166-2-lvl4"`
	} `json:"address"`
}

// ReverseGeocode resolves coordinates to a city and two-letter state code
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (Place, error) {
	fields := logrus.Fields{"latitude": lat, "longitude": lng}

	if place, ok := g.lookup(lat, lng); ok {
		g.logger.WithFields(fields).WithField("source", "cache").Debug("Found place in cache")
		return place, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return Place{}, err
	}

	params := url.Values{
		"lat":            []string{strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":            []string{strconv.FormatFloat(lng, 'f', 6, 64)},
		"format":         []string{"jsonv2"},
		"zoom":           []string{"10"},
		"addressdetails": []string{"1"},
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return Place{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithFields(fields).Error("Reverse geocoding request failed")
		return Place{}, fmt.Errorf("reverse geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.WithFields(fields).WithField("status", resp.StatusCode).Error("Reverse geocoder returned an error status")
		return Place{}, fmt.Errorf("reverse geocoder returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Place{}, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimReverse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithFields(fields).Error("Failed to parse reverse geocoding response")
		return Place{}, fmt.Errorf("failed to parse response: %w", err)
	}

	place := Place{City: cityOf(result), State: stateOf(result)}
	if result.Error != "" || place.City == "" || place.State == "" {
		g.logger.WithFields(fields).WithField("error", result.Error).Warn("No place found for coordinates")
		return Place{}, ErrNoResult
	}

	g.logger.WithFields(fields).WithFields(logrus.Fields{
		"city":   place.City,
		"state":  place.State,
		"source": "nominatim",
	}).Info("Reverse geocoded coordinates")

	g.cacheLock.Lock()
	g.cache = append(g.cache, cachedPlace{Latitude: lat, Longitude: lng, Place: place})
	g.cacheLock.Unlock()
	g.saveCache()

	return place, nil
}

func cityOf(r nominatimReverse) string {
	for _, c := range []string{r.Address.City, r.Address.Town, r.Address.Village, r.Address.Hamlet} {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

func stateOf(r nominatimReverse) string {
	if code, ok := strings.CutPrefix(r.Address.ISOCode, "US-"); ok && len(code) == 2 {
		return code
	}
	if r.Address.State == "" {
		return ""
	}
	return models.StateCode(r.Address.State)
}

// leveledLogger routes retryablehttp's logging through logrus
type leveledLogger struct {
	logger *logrus.Logger
}

func (l leveledLogger) entry(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.logger.WithFields(fields)
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Debug(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Warn(msg)
}
