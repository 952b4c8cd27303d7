package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink using Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	runsTotal        prometheus.Counter
	runsSkipped      prometheus.Counter
	runDuration      prometheus.Histogram
	tasksCreated     prometheus.Counter
	ruleFailures     prometheus.Counter
	rulesDeactivated prometheus.Counter

	assignmentOutcomes  *prometheus.CounterVec
	assignmentConflicts prometheus.Histogram

	log *zap.Logger
}

var _ Sink = (*PrometheusSink)(nil)

func NewPrometheusSink(reg prometheus.Registerer, log *zap.Logger) *PrometheusSink {
	if log == nil {
		log = zap.NewNop()
	}
	s := &PrometheusSink{log: log}

	s.runsTotal = s.register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanops_materialize_runs_total",
		Help: "Total number of completed materializer runs.",
	})).(prometheus.Counter)
	s.runsSkipped = s.register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanops_materialize_runs_skipped_total",
		Help: "Runs skipped because another run held the lock.",
	})).(prometheus.Counter)
	s.runDuration = s.register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cleanops_materialize_run_duration_seconds",
		Help:    "Duration of each materializer run in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})).(prometheus.Histogram)
	s.tasksCreated = s.register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanops_materialize_tasks_created_total",
		Help: "Tasks created from recurrence rules.",
	})).(prometheus.Counter)
	s.ruleFailures = s.register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanops_materialize_rule_failures_total",
		Help: "Rules that failed to materialize and were left unadvanced.",
	})).(prometheus.Counter)
	s.rulesDeactivated = s.register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanops_materialize_rules_deactivated_total",
		Help: "Rules deactivated after passing their end date.",
	})).(prometheus.Counter)

	s.assignmentOutcomes = s.register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanops_assignment_outcomes_total",
		Help: "Assignment attempts by final or prompt state.",
	}, []string{"state"})).(*prometheus.CounterVec)
	s.assignmentConflicts = s.register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cleanops_assignment_conflicts",
		Help:    "Number of overlapping tasks found per assignment check.",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	})).(prometheus.Histogram)

	return s
}

// register returns the already registered collector when one exists so a
// second sink on the same registry keeps working.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		s.log.Warn("register metric", zap.Error(err))
	}
	return c
}

func (s *PrometheusSink) MaterializeRunCompleted(duration time.Duration, created, failed, deactivated int) {
	s.runsTotal.Inc()
	s.runDuration.Observe(duration.Seconds())
	s.tasksCreated.Add(float64(created))
	s.ruleFailures.Add(float64(failed))
	s.rulesDeactivated.Add(float64(deactivated))
}

func (s *PrometheusSink) MaterializeRunSkipped() {
	s.runsSkipped.Inc()
}

func (s *PrometheusSink) AssignmentOutcome(state string) {
	s.assignmentOutcomes.WithLabelValues(state).Inc()
}

func (s *PrometheusSink) AssignmentConflicts(count int) {
	s.assignmentConflicts.Observe(float64(count))
}
