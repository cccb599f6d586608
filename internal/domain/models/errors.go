package models

import (
	"errors"
	"fmt"
	"time"

	"Nowcast/pkg/util"
)

var (
	// ErrCacheMiss is returned by cache lookups that find nothing. It never leaves the cache layer.
	ErrCacheMiss = errors.New("modelcache: key not found")
	// ErrNoFit reports that no specification of a grid could be fitted.
	ErrNoFit = errors.New("specsearch: no specification could be fitted")
)

// ConfigurationError aborts a run: invalid fold boundaries, missing timestamps, bad settings.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Message
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}

// NewConfigurationError creates a configuration error for a field.
func NewConfigurationError(field, format string, a ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, a...)}
}

// Data quality warning kinds.
const (
	WarnConstantColumn   = "constant_column"
	WarnNonFiniteColumn  = "nonfinite_column"
	WarnEmptyColumn      = "empty_column"
	WarnNonStationary    = "nonstationary_column"
	WarnMissingRelease   = "missing_release"
	WarnMissingTestValue = "missing_test_value"
	WarnEmptySelection   = "empty_selection"
)

// DataQualityWarning describes a recoverable data problem. It is logged and the
// offending column or series dropped; it never aborts a run.
type DataQualityWarning struct {
	Kind    string
	Subject string
	Detail  string
}

func (w DataQualityWarning) Error() string {
	if w.Detail == "" {
		return fmt.Sprintf("data quality: %s: %s", w.Kind, w.Subject)
	}
	return fmt.Sprintf("data quality: %s: %s (%s)", w.Kind, w.Subject, w.Detail)
}

// PoolingError means no indicator could be pooled for a fold and checkpoint.
// The pooled point for that fold is absent.
type PoolingError struct {
	Fold       time.Time
	Checkpoint Checkpoint
	Strategy   PoolStrategy
	Reason     string
}

func (e *PoolingError) Error() string {
	return fmt.Sprintf("pooling %s at %s/%s: %s", e.Strategy, e.Fold.Format(util.DateLayout), e.Checkpoint, e.Reason)
}
