package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPrometheusSinkMaterializeRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg, zaptest.NewLogger(t))

	s.MaterializeRunCompleted(120*time.Millisecond, 3, 1, 2)
	s.MaterializeRunCompleted(80*time.Millisecond, 1, 0, 0)
	s.MaterializeRunSkipped()

	assert.Equal(t, 2.0, testutil.ToFloat64(s.runsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.tasksCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.ruleFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.rulesDeactivated))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.runsSkipped))
}

func TestPrometheusSinkAssignmentOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg, zaptest.NewLogger(t))

	s.AssignmentOutcome("applied")
	s.AssignmentOutcome("applied")
	s.AssignmentOutcome("rejected")
	s.AssignmentConflicts(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.assignmentOutcomes.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.assignmentOutcomes.WithLabelValues("rejected")))

	count, err := testutil.GatherAndCount(reg, "cleanops_assignment_conflicts")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheusSink(reg, zaptest.NewLogger(t))
	second := NewPrometheusSink(reg, zaptest.NewLogger(t))

	second.MaterializeRunSkipped()
	assert.Equal(t, 1.0, testutil.ToFloat64(first.runsSkipped))
}

func TestNoopSink(t *testing.T) {
	var s Sink = NoopSink{}
	assert.NotPanics(t, func() {
		s.MaterializeRunCompleted(time.Second, 1, 1, 1)
		s.MaterializeRunSkipped()
		s.AssignmentOutcome("applied")
		s.AssignmentConflicts(3)
	})
}
