package normalizer

import (
	"strings"

	"github.com/AniJ15/timbr/internal/listings"
)

// Each table lists the places a logical field may appear in a raw listing,
// highest priority first. The first accessor reporting ok wins.

type stringAccessor func(l listings.RawListing) (string, bool)

type intAccessor func(l listings.RawListing) (int, bool)

type floatAccessor func(l listings.RawListing) (float64, bool)

func text(s listings.FlexString) (string, bool) {
	v := strings.TrimSpace(string(s))
	return v, v != ""
}

func fromAddress(pick func(a *listings.RawAddress) listings.FlexString) stringAccessor {
	return func(l listings.RawListing) (string, bool) {
		if l.Address == nil {
			return "", false
		}
		return text(pick(l.Address))
	}
}

func flat(pick func(l listings.RawListing) listings.FlexString) stringAccessor {
	return func(l listings.RawListing) (string, bool) {
		return text(pick(l))
	}
}

func flexInt(pick func(l listings.RawListing) listings.FlexInt) intAccessor {
	return func(l listings.RawListing) (int, bool) {
		v := pick(l)
		return v.Value, v.Valid
	}
}

func flexFloat(pick func(l listings.RawListing) listings.FlexFloat) floatAccessor {
	return func(l listings.RawListing) (float64, bool) {
		v := pick(l)
		return v.Value, v.Valid
	}
}

func fromLocation(pick func(loc *listings.RawLocation) listings.FlexFloat) floatAccessor {
	return func(l listings.RawListing) (float64, bool) {
		if l.Location == nil {
			return 0, false
		}
		v := pick(l.Location)
		return v.Value, v.Valid
	}
}

var (
	idFields = []stringAccessor{
		flat(func(l listings.RawListing) listings.FlexString { return l.ID }),
		flat(func(l listings.RawListing) listings.FlexString { return listings.FlexString(l.URL) }),
	}

	streetFields = []stringAccessor{
		fromAddress(func(a *listings.RawAddress) listings.FlexString { return a.Street }),
		flat(func(l listings.RawListing) listings.FlexString { return l.StreetAddress }),
	}

	cityFields = []stringAccessor{
		fromAddress(func(a *listings.RawAddress) listings.FlexString { return a.City }),
		flat(func(l listings.RawListing) listings.FlexString { return l.City }),
	}

	stateFields = []stringAccessor{
		fromAddress(func(a *listings.RawAddress) listings.FlexString { return a.State }),
		flat(func(l listings.RawListing) listings.FlexString { return l.State }),
	}

	zipFields = []stringAccessor{
		fromAddress(func(a *listings.RawAddress) listings.FlexString { return a.ZipCode }),
		fromAddress(func(a *listings.RawAddress) listings.FlexString { return a.Zip }),
		flat(func(l listings.RawListing) listings.FlexString { return l.ZipCode }),
	}

	priceFields = []intAccessor{
		flexInt(func(l listings.RawListing) listings.FlexInt { return l.Price }),
	}

	bedFields = []intAccessor{
		flexInt(func(l listings.RawListing) listings.FlexInt { return l.Beds }),
		flexInt(func(l listings.RawListing) listings.FlexInt { return l.Bedrooms }),
	}

	bathFields = []floatAccessor{
		flexFloat(func(l listings.RawListing) listings.FlexFloat { return l.Baths }),
		flexFloat(func(l listings.RawListing) listings.FlexFloat { return l.Bathrooms }),
	}

	sqftFields = []intAccessor{
		flexInt(func(l listings.RawListing) listings.FlexInt { return l.SquareFeet }),
		flexInt(func(l listings.RawListing) listings.FlexInt { return l.LivingArea }),
		flexInt(func(l listings.RawListing) listings.FlexInt { return l.Area }),
	}

	yearBuiltFields = []intAccessor{
		flexInt(func(l listings.RawListing) listings.FlexInt { return l.YearBuilt }),
	}

	latitudeFields = []floatAccessor{
		fromLocation(func(loc *listings.RawLocation) listings.FlexFloat { return loc.Latitude }),
		flexFloat(func(l listings.RawListing) listings.FlexFloat { return l.Latitude }),
	}

	longitudeFields = []floatAccessor{
		fromLocation(func(loc *listings.RawLocation) listings.FlexFloat { return loc.Longitude }),
		flexFloat(func(l listings.RawListing) listings.FlexFloat { return l.Longitude }),
	}
)

func firstString(l listings.RawListing, fields []stringAccessor) (string, bool) {
	for _, get := range fields {
		if v, ok := get(l); ok {
			return v, true
		}
	}
	return "", false
}

func firstInt(l listings.RawListing, fields []intAccessor) (int, bool) {
	for _, get := range fields {
		if v, ok := get(l); ok {
			return v, true
		}
	}
	return 0, false
}

func firstFloat(l listings.RawListing, fields []floatAccessor) (float64, bool) {
	for _, get := range fields {
		if v, ok := get(l); ok {
			return v, true
		}
	}
	return 0, false
}
