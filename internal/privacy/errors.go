package privacy

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDetection is returned by Mask when a span is out of bounds
	// or overlaps another span.
	ErrInvalidDetection = errors.New("invalid detection span")

	// ErrMappingMismatch is returned by Unmask when a mapping entry does not
	// fit the original text it is supposed to restore from.
	ErrMappingMismatch = errors.New("mask mapping does not fit original text")
)

// ConfigurationError reports a recognizer definition that cannot be used.
// The recognizer is never registered when this is returned.
type ConfigurationError struct {
	Recognizer string
	Reason     string
	Err        error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("recognizer %q: %s", e.Recognizer, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(name, reason string, err error) *ConfigurationError {
	return &ConfigurationError{Recognizer: name, Reason: reason, Err: err}
}

// MappingExhausted is a non-fatal unmask warning: the generated text held
// more placeholders of Category than the mapping recorded. The excess
// placeholders are left verbatim.
type MappingExhausted struct {
	Category string `json:"category"`
	Excess   int    `json:"excess"`
}

func (w MappingExhausted) Error() string {
	return fmt.Sprintf("mapping exhausted for %s: %d placeholder(s) left unrestored", w.Category, w.Excess)
}
