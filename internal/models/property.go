package models

import (
	"fmt"
	"time"
)

// PropertyType is the canonical listing category
type PropertyType string

const (
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeApartment  PropertyType = "apartment"
	PropertyTypeCondo      PropertyType = "condo"
	PropertyTypeTownhouse  PropertyType = "townhouse"
	PropertyTypeCommercial PropertyType = "commercial"
	PropertyTypeWarehouse  PropertyType = "warehouse"
	PropertyTypeLand       PropertyType = "land"

	// PropertyTypeBrowsing is a preference-only value that never constrains the deck
	PropertyTypeBrowsing PropertyType = "browsing"
)

type Property struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	Address      string       `json:"address"`
	City         string       `json:"city"`
	State        string       `json:"state"`
	ZipCode      string       `json:"zipCode"`
	Price        int          `json:"price"`
	PropertyType PropertyType `json:"propertyType"`
	Bedrooms     int          `json:"bedrooms"`
	Bathrooms    float64      `json:"bathrooms"`
	SquareFeet   *int         `json:"squareFeet,omitempty"`
	LotSizeAcres *float64     `json:"lotSizeAcres,omitempty"`
	YearBuilt    *int         `json:"yearBuilt,omitempty"`
	ImageURLs    []string     `json:"imageUrls" gorm:"column:image_urls;type:text;serializer:json"`
	Latitude     *float64     `json:"latitude,omitempty"`
	Longitude    *float64     `json:"longitude,omitempty"`
	Description  string       `json:"description"`
	Features     []string     `json:"features" gorm:"type:text;serializer:json"`
	CreatedAt    time.Time    `json:"createdAt" gorm:"index"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// FullAddress renders the street, city, state and zip on one line
func (p Property) FullAddress() string {
	return fmt.Sprintf("%s, %s, %s %s", p.Address, p.City, p.State, p.ZipCode)
}

// CacheMeta is the single row holding the last successful refresh time
type CacheMeta struct {
	ID              uint      `gorm:"primaryKey"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// UsageCounter tracks upstream calls made in the current quota period
type UsageCounter struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	Count     int       `json:"count"`
	PeriodEnd time.Time `json:"period_end"`
}
