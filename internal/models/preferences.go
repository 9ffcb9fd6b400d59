package models

import (
	"strings"
	"time"
)

// CurrentLocation is stored in UserPreferences.Location when the stored
// coordinates should be used instead of a typed location
const CurrentLocation = "Current Location"

type UserIntent string

const (
	IntentBuying    UserIntent = "buying"
	IntentInvesting UserIntent = "investing"
	IntentBrowsing  UserIntent = "browsing"
)

// UserPreferences is the per-user document written by onboarding
type UserPreferences struct {
	Intents                []UserIntent   `json:"intents"`
	PropertyTypes          []PropertyType `json:"propertyTypes"`
	MinPrice               *int           `json:"minPrice,omitempty"`
	MaxPrice               *int           `json:"maxPrice,omitempty"`
	Location               string         `json:"location,omitempty"`
	Latitude               *float64       `json:"latitude,omitempty"`
	Longitude              *float64       `json:"longitude,omitempty"`
	HasCompletedOnboarding bool           `json:"hasCompletedOnboarding"`
	CreatedAt              time.Time      `json:"createdAt"`
	UpdatedAt              time.Time      `json:"updatedAt"`
}

// SetPriceRange stores the budget, swapping the bounds when min exceeds max
func (p *UserPreferences) SetPriceRange(minPrice, maxPrice *int) {
	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		minPrice, maxPrice = maxPrice, minPrice
	}
	p.MinPrice = minPrice
	p.MaxPrice = maxPrice
}

// HasCoordinates reports whether both latitude and longitude are stored
func (p UserPreferences) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// UsesCurrentLocation reports whether Location is the coordinates sentinel
func (p UserPreferences) UsesCurrentLocation() bool {
	return strings.EqualFold(strings.TrimSpace(p.Location), CurrentLocation)
}

// Clone returns a deep copy so callers can mutate it without sharing slices
// or pointers with the original
func (p UserPreferences) Clone() UserPreferences {
	out := p
	out.Intents = append([]UserIntent(nil), p.Intents...)
	out.PropertyTypes = append([]PropertyType(nil), p.PropertyTypes...)
	out.MinPrice = cloneInt(p.MinPrice)
	out.MaxPrice = cloneInt(p.MaxPrice)
	out.Latitude = cloneFloat(p.Latitude)
	out.Longitude = cloneFloat(p.Longitude)
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
