package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingJob implements Job for testing
type countingJob struct {
	name    string
	runs    atomic.Int32
	runFunc func(ctx context.Context) error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.runFunc != nil {
		return j.runFunc(ctx)
	}
	return nil
}

func newTestWorker() *Worker {
	return NewWorker(Config{PollInterval: 5 * time.Millisecond, JobTimeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWorker_RunsJobsOnInterval(t *testing.T) {
	w := newTestWorker()
	frequent := &countingJob{name: "frequent"}
	rare := &countingJob{name: "rare"}
	w.Register(frequent, 10*time.Millisecond)
	w.Register(rare, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return frequent.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int32(1), rare.runs.Load())
}

func TestWorker_FailingJobKeepsRunning(t *testing.T) {
	w := newTestWorker()
	job := &countingJob{
		name:    "flaky",
		runFunc: func(ctx context.Context) error { return errors.New("boom") },
	}
	w.Register(job, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestWorker_ShutdownWaitsForInFlightJobs(t *testing.T) {
	w := newTestWorker()
	started := make(chan struct{})
	var finished atomic.Bool
	job := &countingJob{
		name: "slow",
		runFunc: func(ctx context.Context) error {
			close(started)
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
			return nil
		},
	}
	w.Register(job, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	<-started
	cancel()
	<-done
	assert.True(t, finished.Load())
}

func TestWorker_JobSeesTimeout(t *testing.T) {
	w := NewWorker(Config{PollInterval: 5 * time.Millisecond, JobTimeout: 20 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	gotErr := make(chan error, 1)
	job := &countingJob{
		name: "stuck",
		runFunc: func(ctx context.Context) error {
			<-ctx.Done()
			select {
			case gotErr <- ctx.Err():
			default:
			}
			return ctx.Err()
		},
	}
	w.Register(job, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	select {
	case err := <-gotErr:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("job never timed out")
	}
}
