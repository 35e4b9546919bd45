package types

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationInvalid marks out-of-range settings. The resolver
	// recovers from it by clamping, so it never reaches callers.
	ErrConfigurationInvalid = errors.New("configuration invalid")

	// ErrUpstreamQueryFailed marks a failed tracker request (non-2xx or network)
	ErrUpstreamQueryFailed = errors.New("upstream query failed")

	// ErrMalformedRecord marks a tracker record missing its key or updated timestamp
	ErrMalformedRecord = errors.New("malformed record")

	// ErrStoreUnavailable marks a key-value store failure
	ErrStoreUnavailable = errors.New("store unavailable")
)

// UpstreamError carries the HTTP status of a failed tracker request.
// StatusCode is 0 for transport failures.
type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s failed (%d): %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed (%d)", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return e.Op + " failed"
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamQueryFailed}
	}
	return []error{ErrUpstreamQueryFailed, e.Err}
}
