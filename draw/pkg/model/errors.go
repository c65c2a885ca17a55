package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a unit of work that cannot succeed without an
	// operator fixing data or configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation error")

	// ErrUnknownLotteryType is returned for a type outside the closed set.
	ErrUnknownLotteryType = fmt.Errorf("%w: unknown lottery type", ErrConfiguration)
)

// IsPermanent reports whether retrying err can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration)
}

// FailureReason names the class of err for dead-letter routing and metrics.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "transient"
	}
}
