package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/decks/internal/telemetry"
)

// Job is periodic background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Config holds worker configuration
type Config struct {
	// WorkerID uniquely identifies this worker instance
	WorkerID string

	// PollInterval is how often due jobs are checked
	PollInterval time.Duration

	// MaxConcurrency is the maximum number of jobs to run concurrently
	MaxConcurrency int

	// JobTimeout bounds a single job run
	JobTimeout time.Duration
}

type schedule struct {
	job     Job
	every   time.Duration
	nextRun time.Time
	running bool
}

// Worker runs registered jobs on their intervals
type Worker struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	schedules []*schedule
	inFlight  sync.WaitGroup
}

// NewWorker creates a new background job worker
func NewWorker(config Config, logger *slog.Logger) *Worker {
	// Set defaults
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if config.PollInterval == 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 2
	}
	if config.JobTimeout == 0 {
		config.JobTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Register schedules job every interval. The first run is due immediately.
func (w *Worker) Register(job Job, every time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.schedules = append(w.schedules, &schedule{job: job, every: every, nextRun: w.now()})
}

// Start runs due jobs until the context is cancelled, then waits for
// in-flight runs to finish.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker starting",
		"worker_id", w.config.WorkerID,
		"poll_interval", w.config.PollInterval,
		"max_concurrency", w.config.MaxConcurrency,
		"jobs", len(w.schedules),
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Semaphore for concurrency control
	sem := make(chan struct{}, w.config.MaxConcurrency)

	w.runDue(ctx, sem)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down", "worker_id", w.config.WorkerID)
			w.inFlight.Wait()
			return ctx.Err()
		case <-ticker.C:
			w.runDue(ctx, sem)
		}
	}
}

// runDue starts every due job that is not already running, as long as the
// semaphore has room. Jobs that do not fit wait for the next poll.
func (w *Worker) runDue(ctx context.Context, sem chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for _, s := range w.schedules {
		if s.running || now.Before(s.nextRun) {
			continue
		}
		select {
		case sem <- struct{}{}:
		default:
			// At max concurrency, skip this poll
			return
		}

		s.running = true
		w.inFlight.Add(1)
		go func(s *schedule) {
			defer w.inFlight.Done()
			defer func() { <-sem }()

			w.process(ctx, s.job)

			w.mu.Lock()
			s.running = false
			s.nextRun = w.now().Add(s.every)
			w.mu.Unlock()
		}(s)
	}
}

// process runs a single job with the job timeout
func (w *Worker) process(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	start := w.now()
	if err := job.Run(jobCtx); err != nil {
		w.logger.Error("job failed",
			"worker_id", w.config.WorkerID,
			"job", job.Name(),
			"error", err,
		)
		if telemetry.Business != nil {
			telemetry.Business.JobsFailed.WithLabelValues(job.Name()).Inc()
		}
		telemetry.CaptureError(err, map[string]interface{}{"job": job.Name()})
		return
	}

	w.logger.Debug("job completed",
		"job", job.Name(),
		"duration", time.Since(start),
	)
}
