package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbounded is returned when Estimate is called with neither a match
	// count nor an upper instant.
	ErrUnbounded = errors.New("estimate needs a match count or an upper bound")

	// ErrEmptyRule is returned when a rule with no day field is estimated.
	ErrEmptyRule = errors.New("rule has neither weekday nor monthday")

	// ErrInvalidRule is the parent of RuleError.
	ErrInvalidRule = errors.New("invalid rule")
)

// RuleError reports an out-of-range rule field.
type RuleError struct {
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid rule %s: %s", e.Field, e.Reason)
}

func (e *RuleError) Unwrap() error { return ErrInvalidRule }
