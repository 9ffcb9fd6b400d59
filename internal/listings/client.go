package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/AniJ15/timbr/internal/models"
)

const (
	transactionForSale = "forSale"
	firstPage          = "1"
)

// QuotaGuard is the part of the usage tracker the client needs
type QuotaGuard interface {
	CanConsume(ctx context.Context) bool
	Consume(ctx context.Context)
}

// Filters are the optional numeric and type constraints for a search. Nil or
// non-positive values are left out of the request.
type Filters struct {
	MinPrice      *int
	MaxPrice      *int
	MinBeds       *int
	MinBaths      *float64
	PropertyTypes []models.PropertyType
}

// FiltersFromPreferences carries the budget and property types of prefs
func FiltersFromPreferences(prefs models.UserPreferences) Filters {
	return Filters{
		MinPrice:      prefs.MinPrice,
		MaxPrice:      prefs.MaxPrice,
		PropertyTypes: prefs.PropertyTypes,
	}
}

type Options struct {
	BaseURL            string
	Path               string
	APIKey             string
	Timeout            time.Duration
	MinRequestInterval time.Duration
}

type Client struct {
	baseURL    string
	path       string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	quota      QuotaGuard
	logger     *logrus.Logger
}

func NewClient(opts Options, quota QuotaGuard, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	limit := rate.Inf
	if opts.MinRequestInterval > 0 {
		limit = rate.Every(opts.MinRequestInterval)
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		path:       opts.Path,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		quota:      quota,
		logger:     logger,
	}
}

// Fetch searches the upstream for listings matching key and filters. On an
// HTTP 422 the request is retried exactly once with only the mandatory
// parameters. Quota is consumed once per successful attempt.
func (c *Client) Fetch(ctx context.Context, key models.QueryKey, filters Filters, limit int) ([]RawListing, error) {
	if c.apiKey == "" {
		return nil, newError(KindMissingCredentials, nil)
	}
	if key.IsZero() {
		return nil, newError(KindInvalidURL, errors.New("empty search keyword"))
	}

	full := buildParams(key, filters)
	listings, err := c.attempt(ctx, full)
	if err != nil && IsUnprocessable(err) {
		c.logger.WithFields(logrus.Fields{
			"keyword": key.Keyword(),
			"params":  full.Encode(),
		}).Warn("Listings API rejected parameters, retrying with keyword and type only")
		listings, err = c.attempt(ctx, minimalParams(key))
	}
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

func (c *Client) attempt(ctx context.Context, params url.Values) ([]RawListing, error) {
	if !c.quota.CanConsume(ctx) {
		return nil, newError(KindRateLimitExceeded, nil)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newError(KindUnreachable, err)
	}

	endpoint, err := url.Parse(c.baseURL + c.path)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, newError(KindInvalidURL, fmt.Errorf("bad endpoint %q", c.baseURL+c.path))
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, newError(KindInvalidURL, err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("keyword", params.Get("keyword")).Error("Listings request failed")
		return nil, newError(KindUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindInvalidResponse, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"keyword": params.Get("keyword"),
			"body":    truncate(string(body), 200),
		}).Error("Listings API returned an error status")
		return nil, httpError(resp.StatusCode)
	}

	var page ListingResponse
	if err := json.Unmarshal(body, &page); err != nil {
		c.logger.WithError(err).Error("Failed to decode listings response")
		return nil, newError(KindDecodingError, err)
	}

	c.quota.Consume(ctx)

	listings := page.AllListings()
	fields := logrus.Fields{
		"keyword":  params.Get("keyword"),
		"count":    len(listings),
		"duration": time.Since(start).String(),
	}
	if page.RequestMetadata != nil {
		fields["request_id"] = page.RequestMetadata.ID
		fields["request_status"] = page.RequestMetadata.Status
	}
	if page.SearchInformation != nil && page.SearchInformation.TotalResults.Valid {
		fields["total_results"] = page.SearchInformation.TotalResults.Value
	}
	if page.HasNextPage != nil {
		fields["has_next_page"] = *page.HasNextPage
	}
	if page.CurrentPage.Valid {
		fields["current_page"] = page.CurrentPage.Value
	}
	c.logger.WithFields(fields).Info("Fetched listings")

	return listings, nil
}

func minimalParams(key models.QueryKey) url.Values {
	params := url.Values{}
	params.Set("keyword", key.Keyword())
	params.Set("type", transactionForSale)
	return params
}

func buildParams(key models.QueryKey, filters Filters) url.Values {
	params := minimalParams(key)

	if filters.MinPrice != nil && *filters.MinPrice > 0 {
		params.Set("price.min", strconv.Itoa(*filters.MinPrice))
	}
	if filters.MaxPrice != nil && *filters.MaxPrice > 0 {
		params.Set("price.max", strconv.Itoa(*filters.MaxPrice))
	}
	if filters.MinBeds != nil && *filters.MinBeds > 0 {
		params.Set("beds.min", strconv.Itoa(*filters.MinBeds))
	}
	if filters.MinBaths != nil && *filters.MinBaths > 0 {
		params.Set("baths.min", strconv.Itoa(int(*filters.MinBaths)))
	}

	seen := make(map[string]bool)
	for _, t := range filters.PropertyTypes {
		homeType, ok := upstreamHomeType(t)
		if !ok || seen[homeType] {
			continue
		}
		seen[homeType] = true
		params.Add("homeTypes", homeType)
	}

	params.Set("page", firstPage)
	return params
}

// upstreamHomeType maps a canonical type to the upstream vocabulary. Types
// the upstream cannot search for are left out.
func upstreamHomeType(t models.PropertyType) (string, bool) {
	switch t {
	case models.PropertyTypeHouse:
		return "house", true
	case models.PropertyTypeApartment:
		return "apartment", true
	case models.PropertyTypeCondo:
		return "condo", true
	case models.PropertyTypeTownhouse:
		return "townhome", true
	case models.PropertyTypeLand:
		return "lot", true
	default:
		return "", false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
