package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"cleanops/internal/lock"
	"cleanops/internal/metrics"
)

// ErrRunInProgress is returned when another materializer run holds the lock.
var ErrRunInProgress = errors.New("materialize run already in progress")

const materializeLockKey = "materialize"

// MaterializeJob runs the materializer for every sede under a run lock.
type MaterializeJob struct {
	materializer *Materializer
	sedes        SedeLister
	locker       lock.Locker
	lockTTL      time.Duration
	metrics      metrics.Sink
	log          *zap.Logger
}

func NewMaterializeJob(materializer *Materializer, sedes SedeLister, locker lock.Locker, lockTTL time.Duration, sink metrics.Sink, log *zap.Logger) *MaterializeJob {
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &MaterializeJob{
		materializer: materializer,
		sedes:        sedes,
		locker:       locker,
		lockTTL:      lockTTL,
		metrics:      sink,
		log:          log,
	}
}

// Run materializes due rules of all sedes for today. Per-sede failures are
// logged and joined into the returned error; they never stop other sedes.
func (j *MaterializeJob) Run(ctx context.Context, today time.Time) (MaterializeResult, error) {
	var total MaterializeResult
	err := j.withLock(ctx, func() error {
		started := time.Now()
		sedes, err := j.sedes.ListAll(ctx)
		if err != nil {
			return err
		}

		var errs []error
		for _, sede := range sedes {
			result, err := j.materializer.MaterializeDue(ctx, sede.ID, today)
			total.merge(result)
			if err != nil {
				j.log.Error("materialize sede", zap.Uint("sede_id", sede.ID), zap.String("sede", sede.Name), zap.Error(err))
				errs = append(errs, err)
			}
		}

		j.finish(started, total, zap.Int("sedes", len(sedes)))
		return errors.Join(errs...)
	})
	return total, err
}

// RunSede materializes a single sede, sharing the run lock with Run.
func (j *MaterializeJob) RunSede(ctx context.Context, sedeID uint, today time.Time) (MaterializeResult, error) {
	var result MaterializeResult
	err := j.withLock(ctx, func() error {
		started := time.Now()
		var err error
		result, err = j.materializer.MaterializeDue(ctx, sedeID, today)
		j.finish(started, result, zap.Uint("sede_id", sedeID))
		return err
	})
	return result, err
}

func (j *MaterializeJob) withLock(ctx context.Context, fn func() error) error {
	held, err := j.locker.TryAcquire(ctx, materializeLockKey, j.lockTTL)
	if err != nil {
		return err
	}
	if held == nil {
		j.metrics.MaterializeRunSkipped()
		j.log.Warn("materialize run skipped, lock held elsewhere")
		return ErrRunInProgress
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			j.log.Warn("release materialize lock", zap.Error(err))
		}
	}()
	return fn()
}

func (j *MaterializeJob) finish(started time.Time, result MaterializeResult, fields ...zap.Field) {
	took := time.Since(started)
	j.metrics.MaterializeRunCompleted(took, len(result.Created), len(result.Failed), len(result.Deactivated))
	j.log.Info("materialize run finished", append(fields,
		zap.Int("created", len(result.Created)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("deactivated", len(result.Deactivated)),
		zap.Duration("took", took))...)
}

func (r *MaterializeResult) merge(other MaterializeResult) {
	r.Created = append(r.Created, other.Created...)
	r.Deactivated = append(r.Deactivated, other.Deactivated...)
	r.Failed = append(r.Failed, other.Failed...)
}
