package dispatch

import (
	"errors"

	"oncostats/internal/dataset"
	"oncostats/internal/registry"
)

// Error codes shared by every transport.
const (
	CodeUnknownCategory      = "unknown_category"
	CodeSourceUnavailable    = "source_unavailable"
	CodeAmbiguousColumnAlias = "ambiguous_column_alias"
	CodeMissingColumn        = "missing_column"
	CodeInternal             = "internal"
)

// ErrorCode classifies a Dispatch error.
func ErrorCode(err error) string {
	var (
		unknown   *registry.UnknownCategoryError
		source    *dataset.SourceUnavailableError
		ambiguous *dataset.AmbiguousColumnAliasError
		missing   *MissingColumnError
	)
	switch {
	case errors.As(err, &unknown):
		return CodeUnknownCategory
	case errors.As(err, &source):
		return CodeSourceUnavailable
	case errors.As(err, &ambiguous):
		return CodeAmbiguousColumnAlias
	case errors.As(err, &missing):
		return CodeMissingColumn
	}
	return CodeInternal
}
