package normalizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/AniJ15/timbr/internal/listings"
	"github.com/AniJ15/timbr/internal/models"
)

// SquareFeetPerAcre converts lot sizes reported in square feet
const SquareFeetPerAcre = 43560.0

// listingNamespace scopes the name-based ids generated for listings that
// arrive without an upstream id or url
var listingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://timbr.app/listing"))

var reLeadingNumber = regexp.MustCompile(`^\s*([0-9]*\.?[0-9]+)`)

var homeTypes = map[string]models.PropertyType{
	"single_family": models.PropertyTypeHouse,
	"singlefamily":  models.PropertyTypeHouse,
	"condo":         models.PropertyTypeCondo,
	"condominium":   models.PropertyTypeCondo,
	"townhome":      models.PropertyTypeTownhouse,
	"townhouse":     models.PropertyTypeTownhouse,
	"apartment":     models.PropertyTypeApartment,
	"multi_family":  models.PropertyTypeApartment,
	"multifamily":   models.PropertyTypeApartment,
	"lot":           models.PropertyTypeLand,
	"land":          models.PropertyTypeLand,
}

type Normalizer struct {
	now func() time.Time
}

type Option func(*Normalizer)

// WithClock fixes the timestamps stamped on normalized properties
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NormalizeAll converts a page of raw listings, preserving order
func (n *Normalizer) NormalizeAll(raw []listings.RawListing) []models.Property {
	out := make([]models.Property, 0, len(raw))
	for _, l := range raw {
		out = append(out, n.Normalize(l))
	}
	return out
}

// Normalize maps a raw listing onto a Property. It never fails: missing or
// unparseable fields fall back to zero values or nil.
func (n *Normalizer) Normalize(l listings.RawListing) models.Property {
	street, _ := firstString(l, streetFields)
	city, _ := firstString(l, cityFields)
	state, _ := firstString(l, stateFields)
	zip, _ := firstString(l, zipFields)

	price, _ := firstInt(l, priceFields)
	beds, _ := firstInt(l, bedFields)
	baths, _ := firstFloat(l, bathFields)
	if beds < 0 {
		beds = 0
	}
	if baths < 0 {
		baths = 0
	}

	propertyType := MapHomeType(l.HomeType)
	now := n.now()

	p := models.Property{
		ID:           listingID(l, street, city, state, zip),
		Address:      street,
		City:         city,
		State:        state,
		ZipCode:      zip,
		Price:        price,
		PropertyType: propertyType,
		Bedrooms:     beds,
		Bathrooms:    baths,
		ImageURLs:    imageURLs(l),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if sqft, ok := firstInt(l, sqftFields); ok && sqft > 0 {
		p.SquareFeet = &sqft
	}
	if year, ok := firstInt(l, yearBuiltFields); ok {
		p.YearBuilt = &year
	}
	p.LotSizeAcres = ParseLotSize(string(l.LotSize))

	// 0.0 is kept as reported; only absence maps to nil
	if lat, ok := firstFloat(l, latitudeFields); ok {
		p.Latitude = &lat
	}
	if lng, ok := firstFloat(l, longitudeFields); ok {
		p.Longitude = &lng
	}

	p.Description = strings.TrimSpace(l.Description)
	if p.Description == "" {
		p.Description = describe(propertyType, city, state, l.Status)
	}
	p.Features = features(p, strings.TrimSpace(string(l.LotSize)))

	return p
}

// MapHomeType maps an upstream home type code to the canonical type.
// Unknown or missing codes become house.
func MapHomeType(code string) models.PropertyType {
	if t, ok := homeTypes[strings.ToLower(strings.TrimSpace(code))]; ok {
		return t
	}
	return models.PropertyTypeHouse
}

// ParseLotSize reads the leading number of a lot size such as "0.5 acres" or
// "5,000 sq ft". Values without "acre" are taken as square feet.
func ParseLotSize(raw string) *float64 {
	cleaned := strings.ReplaceAll(raw, ",", "")
	m := reLeadingNumber.FindStringSubmatch(cleaned)
	if m == nil {
		return nil
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value <= 0 {
		return nil
	}

	if !strings.Contains(strings.ToLower(cleaned), "acre") {
		value /= SquareFeetPerAcre
	}
	return &value
}

func listingID(l listings.RawListing, street, city, state, zip string) string {
	if id, ok := firstString(l, idFields); ok {
		return id
	}

	key := addressKey(street, city, state, zip)
	if key == "|||" {
		// Nothing identifies the listing but its content
		raw, _ := json.Marshal(l)
		key = string(raw)
	}
	return uuid.NewSHA1(listingNamespace, []byte(key)).String()
}

func imageURLs(l listings.RawListing) []string {
	if len(l.Photos) > 0 {
		return append([]string(nil), l.Photos...)
	}
	if img := strings.TrimSpace(l.Image); img != "" {
		return []string{img}
	}
	return []string{}
}

func describe(t models.PropertyType, city, state, status string) string {
	title := cases.Title(language.English).String(string(t))
	desc := fmt.Sprintf("%s in %s, %s", title, city, state)
	if status = strings.TrimSpace(status); status != "" {
		desc += " - " + status
	}
	return desc
}

func features(p models.Property, lotSize string) []string {
	out := []string{}
	if p.Bedrooms > 0 {
		out = append(out, fmt.Sprintf("%d %s", p.Bedrooms, plural("Bed", p.Bedrooms > 1)))
	}
	if p.Bathrooms > 0 {
		out = append(out, fmt.Sprintf("%s %s", strconv.FormatFloat(p.Bathrooms, 'f', -1, 64), plural("Bath", p.Bathrooms > 1)))
	}
	if p.SquareFeet != nil {
		out = append(out, fmt.Sprintf("%d sq ft", *p.SquareFeet))
	}
	if lotSize != "" {
		out = append(out, "Lot: "+lotSize)
	}
	if p.YearBuilt != nil {
		out = append(out, fmt.Sprintf("Built: %d", *p.YearBuilt))
	}
	return out
}

func plural(word string, many bool) string {
	if many {
		return word + "s"
	}
	return word
}
