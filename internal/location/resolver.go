package location

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/AniJ15/timbr/internal/geocoding"
	"github.com/AniJ15/timbr/internal/models"
)

var (
	// ErrUndeterminable means coordinates were present but could not be
	// turned into a city and state
	ErrUndeterminable = errors.New("location undeterminable")

	// ErrNoLocationData means the preferences hold neither a usable
	// location string nor coordinates
	ErrNoLocationData = errors.New("no location data")
)

// ReverseGeocoder turns coordinates into a place
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (geocoding.Place, error)
}

type Resolver struct {
	geocoder ReverseGeocoder
	logger   *logrus.Logger
}

func NewResolver(geocoder ReverseGeocoder, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Resolver{geocoder: geocoder, logger: logger}
}

// Resolve turns the user's location into a query key. Rules, in order:
// a 5-digit location is a zip; a location containing a comma is split into
// city and state on the first comma; otherwise stored coordinates are
// reverse geocoded.
//
// When geocoding succeeds, "City, ST" is written back into prefs.Location so
// later calls take the comma path instead of geocoding again. This is the
// only write Resolve performs.
func (r *Resolver) Resolve(ctx context.Context, prefs *models.UserPreferences) (models.QueryKey, error) {
	loc := strings.TrimSpace(prefs.Location)

	if isZip(loc) {
		return models.ZipKey(loc), nil
	}

	if city, state, ok := splitCityState(loc); ok {
		return models.CityStateKey(city, state), nil
	}

	if !prefs.HasCoordinates() {
		return models.QueryKey{}, ErrNoLocationData
	}
	if r.geocoder == nil {
		return models.QueryKey{}, ErrUndeterminable
	}

	lat, lng := *prefs.Latitude, *prefs.Longitude
	place, err := r.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"latitude":  lat,
			"longitude": lng,
		}).Warn("Could not reverse geocode stored coordinates")
		return models.QueryKey{}, fmt.Errorf("%w: %v", ErrUndeterminable, err)
	}

	city, state := strings.TrimSpace(place.City), strings.TrimSpace(place.State)
	if city == "" || state == "" {
		return models.QueryKey{}, ErrUndeterminable
	}

	prefs.Location = fmt.Sprintf("%s, %s", city, state)
	r.logger.WithFields(logrus.Fields{
		"location": prefs.Location,
	}).Info("Resolved location from coordinates")

	return models.CityStateKey(city, state), nil
}

func isZip(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// splitCityState splits on the first comma. Both halves must be non-empty
// after trimming.
func splitCityState(s string) (string, string, bool) {
	city, state, found := strings.Cut(s, ",")
	if !found {
		return "", "", false
	}
	city, state = strings.TrimSpace(city), strings.TrimSpace(state)
	if city == "" || state == "" {
		return "", "", false
	}
	return city, state, true
}
