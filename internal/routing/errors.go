package routing

import (
	"errors"
	"fmt"
)

// Errors returned by the routing provider client.
//
// Every failure wraps exactly one of these sentinels so callers can branch
// with errors.Is:
//
//	if errors.Is(err, routing.ErrAddressNotFound) {
//	    // keep the stale route, tell the user to fix the address
//	}
var (
	// ErrAddressNotFound is returned when geocoding yields no candidate
	// features, or the address is blank.
	ErrAddressNotFound = errors.New("address not found")

	// ErrHTTP is returned when the provider answers with a non-success
	// status or cannot be reached at all.
	ErrHTTP = errors.New("routing provider request failed")

	// ErrParse is returned when a response body does not match the
	// expected schema.
	ErrParse = errors.New("malformed routing provider response")

	// ErrNoRoute is returned when the directions response contains no
	// features.
	ErrNoRoute = errors.New("no route found")
)

// StatusError carries the provider's status code and a truncated body.
// It unwraps to ErrHTTP.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("routing provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("routing provider returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrHTTP
}

// IsRecoverable reports whether err is a routing failure after which the
// tour keeps its previous derived fields and the save proceeds.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAddressNotFound) ||
		errors.Is(err, ErrHTTP) ||
		errors.Is(err, ErrParse) ||
		errors.Is(err, ErrNoRoute)
}

// IsContractViolation reports whether the provider answered with something
// that does not match its documented response schema.
func IsContractViolation(err error) bool {
	return err != nil && errors.Is(err, ErrParse)
}
