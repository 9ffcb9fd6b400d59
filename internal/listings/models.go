package listings

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexInt accepts a JSON number or a numeric string such as "$350,000".
// Anything else leaves Valid false instead of failing the whole payload.
type FlexInt struct {
	Value int
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = FlexInt{}
	num, ok := parseFlexNumber(b)
	if !ok || num < math.MinInt || num >= math.MaxInt {
		return nil
	}
	f.Value, f.Valid = int(num), true
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(f.Value)), nil
}

// Int builds a valid FlexInt
func Int(v int) FlexInt { return FlexInt{Value: v, Valid: true} }

// FlexFloat is the float counterpart of FlexInt
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	*f = FlexFloat{}
	num, ok := parseFlexNumber(b)
	if !ok {
		return nil
	}
	f.Value, f.Valid = num, true
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f.Value, 'f', -1, 64)), nil
}

// Float builds a valid FlexFloat
func Float(v float64) FlexFloat { return FlexFloat{Value: v, Valid: true} }

// FlexString accepts a JSON string or number and keeps its textual form
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*s = ""
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		// Objects, arrays and booleans carry no usable text
		return nil
	}
	*s = FlexString(num.String())
	return nil
}

func parseFlexNumber(b []byte) (float64, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return 0, false
	}

	text := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &text); err != nil {
			return 0, false
		}
		text = strings.NewReplacer("$", "", ",", "", " ", "").Replace(text)
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// RawAddress is the structured address sub-object
type RawAddress struct {
	Street  FlexString `json:"street"`
	City    FlexString `json:"city"`
	State   FlexString `json:"state"`
	ZipCode FlexString `json:"zipCode"`
	Zip     FlexString `json:"zip"`
}

// RawLocation is the structured coordinates sub-object
type RawLocation struct {
	Latitude  FlexFloat `json:"latitude"`
	Longitude FlexFloat `json:"longitude"`
}

type Broker struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type School struct {
	Name     string    `json:"name"`
	District string    `json:"district"`
	Rating   FlexFloat `json:"rating"`
}

// RawListing is one listing as returned upstream. Most logical fields have
// several alternate names; see the normalizer for the resolution order.
type RawListing struct {
	ID           FlexString `json:"id"`
	URL          string     `json:"url"`
	Price        FlexInt    `json:"price"`
	Status       string     `json:"status"`
	DaysOnZillow FlexInt    `json:"daysOnZillow"`

	Address       *RawAddress `json:"address"`
	StreetAddress FlexString  `json:"streetAddress"`
	City          FlexString  `json:"city"`
	State         FlexString  `json:"state"`
	ZipCode       FlexString  `json:"zipCode"`

	Beds       FlexInt    `json:"beds"`
	Bedrooms   FlexInt    `json:"bedrooms"`
	Baths      FlexFloat  `json:"baths"`
	Bathrooms  FlexFloat  `json:"bathrooms"`
	SquareFeet FlexInt    `json:"squareFeet"`
	LivingArea FlexInt    `json:"livingArea"`
	Area       FlexInt    `json:"area"`
	HomeType   string     `json:"homeType"`
	LotSize    FlexString `json:"lotSize"`
	YearBuilt  FlexInt    `json:"yearBuilt"`

	Photos []string `json:"photos"`
	Image  string   `json:"image"`

	Location  *RawLocation `json:"location"`
	Latitude  FlexFloat    `json:"latitude"`
	Longitude FlexFloat    `json:"longitude"`

	Broker      *Broker  `json:"broker"`
	Schools     []School `json:"schools"`
	Description string   `json:"description"`

	Zestimate     FlexInt `json:"zestimate"`
	RentZestimate FlexInt `json:"rentZestimate"`
	Currency      string  `json:"currency"`
}

type RequestMetadata struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	HTML   string `json:"html"`
	JSON   string `json:"json"`
	URL    string `json:"url"`
}

type SearchInformation struct {
	TotalResults FlexInt `json:"totalResults"`
}

// ListingResponse is the upstream page. Listings arrive under either
// "properties" or "results" depending on the upstream version.
type ListingResponse struct {
	Properties        []RawListing       `json:"properties"`
	Results           []RawListing       `json:"results"`
	RequestMetadata   *RequestMetadata   `json:"requestMetadata"`
	SearchInformation *SearchInformation `json:"searchInformation"`
	HasNextPage       *bool              `json:"hasNextPage"`
	CurrentPage       FlexInt            `json:"currentPage"`
}

// AllListings returns whichever listing array the upstream populated
func (r ListingResponse) AllListings() []RawListing {
	if r.Properties != nil {
		return r.Properties
	}
	if r.Results != nil {
		return r.Results
	}
	return []RawListing{}
}
