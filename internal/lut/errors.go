package lut

import (
	"fmt"
	"strings"
)

// ConfigurationError reports an unknown variant or an invalid grid before
// any oracle call is made.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// OracleEvaluationError wraps a failed or implausible oracle call for one key.
type OracleEvaluationError struct {
	Key      SampleKey
	Attempts int
	Err      error
}

func (e *OracleEvaluationError) Error() string {
	return fmt.Sprintf("oracle evaluation failed for %s after %d attempt(s): %v", e.Key, e.Attempts, e.Err)
}

func (e *OracleEvaluationError) Unwrap() error { return e.Err }

// IncompleteGridError is returned when an interpolant is requested from a
// store that is missing required samples.
type IncompleteGridError struct {
	Band     string
	Missing  int
	Total    int
	Examples []SampleKey
}

func (e *IncompleteGridError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "incomplete grid for band %s: %d of %d samples missing", e.Band, e.Missing, e.Total)
	if len(e.Examples) > 0 {
		b.WriteString(" (e.g. ")
		for i, k := range e.Examples {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(k.Point.String())
		}
		b.WriteString(")")
	}
	return b.String()
}

// DegenerateGridError means the samples cannot span a 5-D interpolant.
type DegenerateGridError struct {
	Reason string
}

func (e *DegenerateGridError) Error() string {
	return "degenerate grid: " + e.Reason
}

// OutOfDomainError is returned by queries outside the sampled bounds.
type OutOfDomainError struct {
	Dimension Dimension
	Value     float64
	Min, Max  float64
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("%s=%g outside interpolation domain [%g, %g]", e.Dimension, e.Value, e.Min, e.Max)
}

// StorageCorruptionError marks an unreadable store or artifact.
type StorageCorruptionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *StorageCorruptionError) Error() string {
	msg := fmt.Sprintf("corrupt storage %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageCorruptionError) Unwrap() error { return e.Err }
