package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestUserPreferences_SetPriceRange(t *testing.T) {
	tests := []struct {
		name    string
		min     *int
		max     *int
		wantMin *int
		wantMax *int
	}{
		{"ordered bounds", intPtr(100), intPtr(200), intPtr(100), intPtr(200)},
		{"swapped bounds", intPtr(500), intPtr(200), intPtr(200), intPtr(500)},
		{"min only", intPtr(100), nil, intPtr(100), nil},
		{"max only", nil, intPtr(100), nil, intPtr(100)},
		{"no budget", nil, nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p UserPreferences
			p.SetPriceRange(tt.min, tt.max)
			assert.Equal(t, tt.wantMin, p.MinPrice)
			assert.Equal(t, tt.wantMax, p.MaxPrice)
		})
	}
}

func TestUserPreferences_Clone(t *testing.T) {
	lat := 40.7
	p := UserPreferences{
		PropertyTypes: []PropertyType{PropertyTypeCondo},
		MinPrice:      intPtr(1),
		Latitude:      &lat,
	}

	c := p.Clone()
	c.PropertyTypes[0] = PropertyTypeLand
	*c.MinPrice = 99
	*c.Latitude = 0

	assert.Equal(t, PropertyTypeCondo, p.PropertyTypes[0])
	assert.Equal(t, 1, *p.MinPrice)
	assert.Equal(t, 40.7, *p.Latitude)
}

func TestUserPreferences_UsesCurrentLocation(t *testing.T) {
	assert.True(t, UserPreferences{Location: "Current Location"}.UsesCurrentLocation())
	assert.True(t, UserPreferences{Location: " current location "}.UsesCurrentLocation())
	assert.False(t, UserPreferences{Location: "Austin, TX"}.UsesCurrentLocation())
}

func TestQueryKey_Keyword(t *testing.T) {
	assert.Equal(t, "10001", ZipKey("10001").Keyword())
	assert.Equal(t, "Austin, TX", CityStateKey("Austin", "TX").Keyword())
	assert.True(t, ZipKey("10001").IsZip())
	assert.False(t, CityStateKey("Austin", "TX").IsZip())
	assert.True(t, QueryKey{}.IsZero())
}
