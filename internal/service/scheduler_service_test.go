package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "05:00", want: "0 0 5 * * *"},
		{in: "7:30", want: "0 30 7 * * *"},
		{in: " 23:59 ", want: "0 59 23 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "1:2:3", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := buildDailySpec(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestScheduleDailyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	s := NewSchedulerService(loc, zap.NewNop())

	id, err := s.ScheduleDaily("05:00", "materialize", func(context.Context) error { return nil })
	require.NoError(t, err)

	ref := time.Date(2024, 3, 1, 6, 0, 0, 0, loc)
	next := s.cron.Entry(id).Schedule.Next(ref)
	want := time.Date(2024, 3, 2, 5, 0, 0, 0, loc)
	assert.True(t, want.Equal(next), "next run %s, want %s", next, want)
	assert.True(t, s.NextRun(id).IsZero())

	_, err = s.ScheduleDaily("5pm", "agenda", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestSchedulerWrapLogsOutcome(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewSchedulerService(time.UTC, zap.New(core))

	s.wrap("ok", func(context.Context) error { return nil })()
	s.wrap("broken", func(context.Context) error { return errors.New("boom") })()

	require.Equal(t, 1, logs.FilterMessage("job finished").Len())
	failed := logs.FilterMessage("job failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ContextMap()["job"])
	assert.Equal(t, "boom", failed[0].ContextMap()["error"])
}

func TestSchedulerStopCancelsJobContext(t *testing.T) {
	s := NewSchedulerService(time.UTC, zap.NewNop())
	s.Start()
	s.Stop()

	var got error
	s.wrap("late", func(ctx context.Context) error {
		got = ctx.Err()
		return nil
	})()
	assert.ErrorIs(t, got, context.Canceled)
}
