package verify

import (
	"errors"
	"fmt"

	"traceverify/internal/compare"
)

// ConfigError reports invalid run configuration: bad flag values or an
// expectation file that is missing or unparseable. Config errors are fatal
// and surface before any probe is attempted.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Message, e.Err)
	}
	return "config: " + e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// MismatchError is returned when the retry budget is exhausted without a
// successful comparison. It carries the diagnostic from the final attempt.
type MismatchError struct {
	// Attempts is the number of probe cycles performed.
	Attempts int

	// Mismatch is the first structural divergence from the last attempt
	// that produced a comparison. Nil when no attempt got as far as
	// comparing (e.g. every probe failed transiently).
	Mismatch *compare.Mismatch

	// LastErr is the probe error from the final attempt, if the final
	// attempt failed before comparison.
	LastErr error
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	if e.Mismatch != nil {
		return fmt.Sprintf("no match after %d attempt(s); first mismatch at %s", e.Attempts, e.Mismatch)
	}
	if e.LastErr != nil {
		return fmt.Sprintf("no match after %d attempt(s); last probe error: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("no match after %d attempt(s)", e.Attempts)
}

func (e *MismatchError) Unwrap() error {
	return e.LastErr
}
