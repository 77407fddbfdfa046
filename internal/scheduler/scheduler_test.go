package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpe/meridian/backend/pkg/logger"
)

type testJob struct {
	name     string
	schedule string
	failures int
	runs     atomic.Int64
}

func (j *testJob) Name() string     { return j.name }
func (j *testJob) Schedule() string { return j.schedule }

func (j *testJob) Run(ctx context.Context) error {
	n := j.runs.Add(1)
	if int(n) <= j.failures {
		return errors.New("transient failure")
	}
	return nil
}

func newTestScheduler() *Scheduler {
	s := New(logger.NewWriter(io.Discard))
	s.retryDelay = time.Millisecond
	return s
}

func TestAddJobRejectsDuplicates(t *testing.T) {
	s := newTestScheduler()

	job := &testJob{name: "cleanup", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))

	err := s.AddJob(&testJob{name: "cleanup", schedule: "@hourly"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	assert.Equal(t, []string{"cleanup"}, s.Jobs())
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := newTestScheduler()

	err := s.AddJob(&testJob{name: "broken", schedule: "not a cron expression"})
	require.Error(t, err)
}

func TestRunJobRecordsHistory(t *testing.T) {
	s := newTestScheduler()

	job := &testJob{name: "cleanup", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))

	s.runJob(job)

	history, err := s.History("cleanup")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)

	latest := history.Latest()
	require.NotNil(t, latest)
	assert.True(t, latest.Success)
	assert.Empty(t, latest.Error)
	assert.Equal(t, 1.0, history.SuccessRate())
}

func TestRunJobRetriesUntilSuccess(t *testing.T) {
	s := newTestScheduler()

	job := &testJob{name: "flaky", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	s.runJob(job)

	assert.Equal(t, int64(3), job.runs.Load(), "two failures then a success")

	history, err := s.History("flaky")
	require.NoError(t, err)
	assert.True(t, history.Latest().Success)
}

func TestRunJobExhaustsRetries(t *testing.T) {
	s := newTestScheduler()

	job := &testJob{name: "doomed", schedule: "@daily", failures: 100}
	require.NoError(t, s.AddJob(job))

	s.runJob(job)

	assert.Equal(t, int64(4), job.runs.Load(), "initial attempt plus three retries")

	history, err := s.History("doomed")
	require.NoError(t, err)
	latest := history.Latest()
	assert.False(t, latest.Success)
	assert.Equal(t, "transient failure", latest.Error)
	assert.Equal(t, 0.0, history.SuccessRate())
}

func TestHistoryUnknownJob(t *testing.T) {
	s := newTestScheduler()
	_, err := s.History("nope")
	require.Error(t, err)
}
