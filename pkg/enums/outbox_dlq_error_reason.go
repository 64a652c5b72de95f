package enums

import "fmt"

// OutboxDLQErrorReason records why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonUnresolvable marks rows whose type has no topic or whose
	// payload does not decode; retrying cannot help until code changes.
	OutboxDLQReasonUnresolvable OutboxDLQErrorReason = "unresolvable"
	// OutboxDLQReasonNonRetryable marks a permanent rejection from Pub/Sub.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonUnresolvable, OutboxDLQReasonNonRetryable, OutboxDLQReasonMaxAttempts:
		return true
	}
	return false
}

// ParseOutboxDLQErrorReason accepts the stored value; empty input means "any"
// and returns "" without error.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	r := OutboxDLQErrorReason(value)
	if value == "" || r.IsValid() {
		return r, nil
	}
	return "", fmt.Errorf("invalid dead-letter reason %q", value)
}
