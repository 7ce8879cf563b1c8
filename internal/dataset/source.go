// Package dataset loads the raw per-category tables and normalizes their
// column names.
package dataset

import (
	"context"
	"errors"
	"fmt"

	"oncostats/pkg/models"
)

// TableSource reads the raw table behind a dataset locator.
type TableSource interface {
	ReadTable(ctx context.Context, locator string) (*models.Table, error)
}

// ErrNotFound is returned by sources when the locator names nothing.
var ErrNotFound = errors.New("dataset not found")

// SourceUnavailableError wraps any failure to read a locator.
type SourceUnavailableError struct {
	Locator string
	Cause   error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %q unavailable: %v", e.Locator, e.Cause)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Cause
}

// Load reads locator through src and wraps failures as
// SourceUnavailableError.
func Load(ctx context.Context, src TableSource, locator string) (*models.Table, error) {
	t, err := src.ReadTable(ctx, locator)
	if err != nil {
		return nil, &SourceUnavailableError{Locator: locator, Cause: err}
	}
	if t == nil {
		return nil, &SourceUnavailableError{Locator: locator, Cause: errors.New("source returned no table")}
	}
	return t, nil
}
