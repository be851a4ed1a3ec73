package scraper

import "errors"

var (
	// ErrResolverFailed is returned when the resolver answered but could not
	// parse the listing.
	ErrResolverFailed = errors.New("resolver could not parse listing")
	// ErrBadResponse is returned for non-2xx or malformed resolver responses.
	ErrBadResponse = errors.New("bad resolver response")
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("resolver unavailable")
	// ErrIncomplete is returned when the resolver omits required attributes.
	ErrIncomplete = errors.New("resolver returned incomplete attributes")
)
