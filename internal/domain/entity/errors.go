// Package entity internal/domain/entity/errors.go
package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCurrency marks a query that references an unrecognized
	// currency code.
	ErrInvalidCurrency = errors.New("invalid currency")

	// ErrRateNotFound marks a pair with no direct or composed path between
	// two recognized currencies.
	ErrRateNotFound = errors.New("rate not found")

	// ErrFetchFailure marks an update attempt that produced no usable data.
	ErrFetchFailure = errors.New("fetch failure")

	// ErrUpdateInProgress marks an update rejected because another one is
	// still running.
	ErrUpdateInProgress = errors.New("update already in progress")
)

// InvalidCurrencyError reports the offending code alongside the reason.
type InvalidCurrencyError struct {
	Code   string
	Reason string
}

func (e *InvalidCurrencyError) Error() string {
	return fmt.Sprintf("invalid currency %q: %s", e.Code, e.Reason)
}

func (e *InvalidCurrencyError) Unwrap() error { return ErrInvalidCurrency }

// RateNotFoundError reports the unresolvable pair.
type RateNotFoundError struct {
	Base  CurrencyCode
	Quote CurrencyCode
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("no rate available for %s/%s", e.Base, e.Quote)
}

func (e *RateNotFoundError) Unwrap() error { return ErrRateNotFound }
