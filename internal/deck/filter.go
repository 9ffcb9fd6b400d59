package deck

import (
	"github.com/AniJ15/timbr/internal/models"
)

// criteria is the compiled form of a preference set
type criteria struct {
	types    map[models.PropertyType]bool
	minPrice *int
	maxPrice *int
}

func newCriteria(prefs models.UserPreferences) criteria {
	c := criteria{minPrice: prefs.MinPrice, maxPrice: prefs.MaxPrice}
	for _, t := range prefs.PropertyTypes {
		if t == models.PropertyTypeBrowsing {
			continue
		}
		if c.types == nil {
			c.types = make(map[models.PropertyType]bool)
		}
		c.types[t] = true
	}
	return c
}

// allows checks if a property matches the criteria
func (c criteria) allows(p models.Property) bool {
	// An empty type set, e.g. only "browsing", does not constrain type
	if len(c.types) > 0 && !c.types[p.PropertyType] {
		return false
	}

	// Check price range
	if c.minPrice != nil && p.Price < *c.minPrice {
		return false
	}
	if c.maxPrice != nil && p.Price > *c.maxPrice {
		return false
	}
	return true
}

// Filter keeps the properties matching prefs. It is pure and keeps input
// order.
//
// When filtering a non-empty input leaves nothing, the unfiltered input is
// returned so the deck is never empty because of preferences alone.
func Filter(properties []models.Property, prefs models.UserPreferences) []models.Property {
	if len(prefs.PropertyTypes) == 0 && prefs.MinPrice == nil && prefs.MaxPrice == nil {
		return properties
	}

	c := newCriteria(prefs)
	filtered := make([]models.Property, 0, len(properties))
	for _, p := range properties {
		if c.allows(p) {
			filtered = append(filtered, p)
		}
	}

	if len(filtered) == 0 && len(properties) > 0 {
		return properties
	}
	return filtered
}
