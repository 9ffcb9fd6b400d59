package listings

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed listings request
type ErrorKind int

const (
	KindInvalidURL ErrorKind = iota
	KindInvalidResponse
	KindHTTPError
	KindDecodingError
	KindRateLimitExceeded
	KindMissingCredentials
	KindUnreachable
)

// String returns the string representation of an ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindInvalidResponse:
		return "invalid_response"
	case KindHTTPError:
		return "http_error"
	case KindDecodingError:
		return "decoding_error"
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindMissingCredentials:
		return "missing_credentials"
	case KindUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ClientError is returned by every failing Client call
type ClientError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ClientError) Error() string {
	switch {
	case e.Kind == KindHTTPError:
		return fmt.Sprintf("listings api: http error %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("listings api: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("listings api: %s", e.Kind)
	}
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsUnprocessable reports whether err is an HTTP 422 from the upstream
func IsUnprocessable(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Kind == KindHTTPError && ce.StatusCode == http.StatusUnprocessableEntity
}

func newError(kind ErrorKind, err error) *ClientError {
	return &ClientError{Kind: kind, Err: err}
}

func httpError(code int) *ClientError {
	return &ClientError{Kind: KindHTTPError, StatusCode: code}
}
