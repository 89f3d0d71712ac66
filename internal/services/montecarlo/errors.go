package montecarlo

import (
	"errors"
	"fmt"
)

var (
	// ErrInputValidation is matched by every *ValidationError
	ErrInputValidation = errors.New("invalid simulation input")

	// ErrNumericDegeneracy is matched by every *DegeneracyError
	ErrNumericDegeneracy = errors.New("degenerate simulation outcome")
)

// ValidationError reports the input field that made a run impossible
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// DegeneracyError is returned when the outcome distribution cannot be
// summarized: either some outcomes overflowed (NonFinite > 0) or the
// histogram upper bound at Quantile is not positive.
type DegeneracyError struct {
	Quantile  float64
	Value     float64
	NonFinite int
}

func (e *DegeneracyError) Error() string {
	if e.NonFinite > 0 {
		return fmt.Sprintf("%d simulated outcomes overflowed; drift or volatility is too large for the horizon", e.NonFinite)
	}
	return fmt.Sprintf("histogram upper bound (p%.0f = %g) must be positive", e.Quantile*100, e.Value)
}

func (e *DegeneracyError) Unwrap() error {
	return ErrNumericDegeneracy
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
