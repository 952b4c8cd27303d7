package metrics

import "time"

// NoopSink discards everything. Used when metrics are disabled.
type NoopSink struct{}

var _ Sink = NoopSink{}

func (NoopSink) MaterializeRunCompleted(time.Duration, int, int, int) {}
func (NoopSink) MaterializeRunSkipped()                               {}
func (NoopSink) AssignmentOutcome(string)                             {}
func (NoopSink) AssignmentConflicts(int)                              {}
