package enever

import (
	"errors"
	"fmt"

	"github.com/jameshartig/enever/pkg/types"
)

// Sentinel kinds of fetch failures. A *FetchError matches exactly one of them
// with errors.Is.
var (
	ErrUnreachable       = errors.New("enever api unreachable")
	ErrHTTPStatus        = errors.New("enever api returned error status")
	ErrQuotaExceeded     = errors.New("enever api quota exceeded")
	ErrInvalidToken      = errors.New("enever api token invalid")
	ErrMalformedResponse = errors.New("malformed enever api response")
	ErrNotYetPublished   = errors.New("prices not yet published")
)

// FetchError describes why fetching a feed failed.
type FetchError struct {
	Feed types.FeedType
	// Kind is one of the sentinel errors above.
	Kind error
	// Status is the HTTP status code for ErrHTTPStatus.
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetching %s: %s", e.Feed, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Outcome returns a short label for the kind, suitable for metrics.
func (e *FetchError) Outcome() string {
	switch e.Kind {
	case ErrUnreachable:
		return "unreachable"
	case ErrHTTPStatus:
		return "http_error"
	case ErrQuotaExceeded:
		return "quota_exceeded"
	case ErrInvalidToken:
		return "invalid_token"
	case ErrMalformedResponse:
		return "malformed_response"
	case ErrNotYetPublished:
		return "not_yet_published"
	default:
		return "unknown"
	}
}

func newFetchError(feed types.FeedType, kind error, err error) *FetchError {
	return &FetchError{Feed: feed, Kind: kind, Err: err}
}

// Classify converts any error returned while fetching feed into a *FetchError.
// Errors outside of the taxonomy are treated as the API being unreachable.
func Classify(feed types.FeedType, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return newFetchError(feed, ErrUnreachable, err)
}
