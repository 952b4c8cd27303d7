// Package metrics records materializer and assignment metrics.
package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	// Materializer metrics
	MaterializeRunCompleted(duration time.Duration, created, failed, deactivated int)
	MaterializeRunSkipped()

	// Assignment metrics
	AssignmentOutcome(state string)
	AssignmentConflicts(count int)
}
