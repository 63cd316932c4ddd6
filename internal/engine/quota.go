package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts the update passes of one drain and enforces a
// maximum.
//
// A drain starts with one dispatch and keeps running while process
// pipelines and listeners enqueue follow-up actions. A pipeline that
// answers its own output with another dispatch would never let the drain
// end; the quota turns that into an error instead of a hang.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
// A limit of 0 or less disables the check.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check counts one pass and validates it against the limit.
// actionType names the action that would exceed the quota.
func (q *QuotaEnforcer) Check(actionType string) error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{
			ActionType: actionType,
			Steps:      q.current,
			Limit:      q.maxSteps,
		}
	}
	return nil
}

// Current returns the number of passes counted so far.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when one drain exceeds the max steps
// quota. The remaining queued actions are dropped.
type StepsExceededError struct {
	ActionType string
	Steps      int
	Limit      int
	Dropped    int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("dispatch chain exceeded max steps quota at %s: %d steps > %d limit",
		e.ActionType, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
