package acquisition

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/AniJ15/timbr/internal/listings"
	"github.com/AniJ15/timbr/internal/location"
)

var (
	ErrQuotaExceeded            = errors.New("listings quota exceeded")
	ErrLocationUndeterminable   = errors.New("location undeterminable")
	ErrUpstreamUnreachable      = errors.New("listings upstream unreachable")
	ErrMalformedUpstreamPayload = errors.New("malformed listings payload")
	ErrCacheUnavailable         = errors.New("listing cache unavailable")
)

// UpstreamRejectedError is an HTTP status the upstream answered with
type UpstreamRejectedError struct {
	Code int
	Err  error
}

func (e *UpstreamRejectedError) Error() string {
	return fmt.Sprintf("listings upstream rejected request: status %d", e.Code)
}

func (e *UpstreamRejectedError) Unwrap() error {
	return e.Err
}

// Classify maps an error from any lower layer onto the acquisition taxonomy.
// The original error stays reachable through errors.Is and errors.As.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var rejected *UpstreamRejectedError
	switch {
	case errors.As(err, &rejected),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrLocationUndeterminable),
		errors.Is(err, ErrUpstreamUnreachable),
		errors.Is(err, ErrMalformedUpstreamPayload),
		errors.Is(err, ErrCacheUnavailable):
		return err
	case errors.Is(err, location.ErrUndeterminable), errors.Is(err, location.ErrNoLocationData):
		return fmt.Errorf("%w: %w", ErrLocationUndeterminable, err)
	}

	var ce *listings.ClientError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case listings.KindRateLimitExceeded:
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		case listings.KindHTTPError:
			return &UpstreamRejectedError{Code: ce.StatusCode, Err: err}
		case listings.KindMissingCredentials:
			return &UpstreamRejectedError{Code: http.StatusUnauthorized, Err: err}
		case listings.KindDecodingError, listings.KindInvalidResponse:
			return fmt.Errorf("%w: %w", ErrMalformedUpstreamPayload, err)
		}
	}

	return fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
}
