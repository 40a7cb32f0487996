package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

// NextFunc computes a job's next fire time strictly after the given instant.
type NextFunc func(expression, timezone string, after time.Time) (time.Time, error)

// HandleFunc consumes one fired trigger.
type HandleFunc func(ctx context.Context, payload TriggerPayload) error

// DispatcherConfig tunes the polling loop.
type DispatcherConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxConcurrent int
	JobTimeout    time.Duration
}

// DefaultDispatcherConfig returns the production defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval:  time.Second,
		BatchSize:     50,
		MaxConcurrent: 10,
		JobTimeout:    5 * time.Minute,
	}
}

// parkDelay is how long a job whose schedule stopped evaluating (timezone
// data removed, say) waits before the next attempt.
const parkDelay = time.Hour

// Dispatcher polls the queue and fires due jobs through the handler. Each
// job is rescheduled to its next occurrence before the handler runs, so a
// crash mid-handler skips the occurrence rather than replaying it forever.
type Dispatcher struct {
	queue  JobQueue
	logger *logger.Logger
	next   NextFunc
	handle HandleFunc
	config DispatcherConfig
	now    func() time.Time

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Zero config fields fall back to the
// defaults.
func NewDispatcher(q JobQueue, log *logger.Logger, next NextFunc, handle HandleFunc, cfg DispatcherConfig) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}

	return &Dispatcher{
		queue:  q,
		logger: log.WithComponent("dispatcher"),
		next:   next,
		handle: handle,
		config: cfg,
		now:    time.Now,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Run polls until ctx is done, then waits for in-flight jobs to finish.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started",
		"poll_interval", d.config.PollInterval,
		"max_concurrent", d.config.MaxConcurrent,
	)

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping, waiting for in-flight jobs")
			d.wg.Wait()
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick processes one batch of due jobs. Exported so tests and manual
// triggers can drive the dispatcher without the polling loop.
func (d *Dispatcher) Tick(ctx context.Context) {
	now := d.now()
	due, err := d.queue.Due(ctx, now, d.config.BatchSize)
	if err != nil {
		d.logger.Error("failed to query due jobs", "error", err)
		return
	}

	for _, entry := range due {
		fire, err := d.advance(ctx, entry, now)
		if err != nil {
			d.logger.Error("failed to advance job schedule",
				"job_id", entry.ID,
				"workflow_id", entry.WorkflowID,
				"error", err,
			)
			continue
		}
		if !fire {
			continue
		}
		d.fire(entry)
	}
}

// advance rolls the job forward to its next occurrence and reports whether
// the occurrence should fire. A schedule that no longer evaluates parks
// without firing instead of spinning on every tick.
func (d *Dispatcher) advance(ctx context.Context, entry ScheduledEntry, now time.Time) (bool, error) {
	next, err := d.next(entry.Expression, entry.Timezone, now)
	if err != nil {
		d.logger.Warn("schedule no longer evaluates, parking job",
			"job_id", entry.ID,
			"workflow_id", entry.WorkflowID,
			"expression", entry.Expression,
			"timezone", entry.Timezone,
			"error", err,
		)
		return false, d.queue.Reschedule(ctx, entry.ID, now.Add(parkDelay))
	}
	return true, d.queue.Reschedule(ctx, entry.ID, next)
}

// fire runs the handler in its own goroutine, bounded by the concurrency
// semaphore. The handler gets a detached context so shutdown lets in-flight
// jobs drain instead of cancelling them.
func (d *Dispatcher) fire(entry ScheduledEntry) {
	d.sem <- struct{}{}
	d.wg.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("job handler panicked",
					"job_id", entry.ID,
					"workflow_id", entry.WorkflowID,
					"panic", fmt.Sprintf("%v", r),
				)
			}
			<-d.sem
			d.wg.Done()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.config.JobTimeout)
		defer cancel()
		ctx = logger.ContextWithOrganizationID(ctx, entry.Payload.OrganizationID)

		start := d.now()
		if err := d.handle(ctx, entry.Payload); err != nil {
			d.logger.Error("job handler failed",
				"job_id", entry.ID,
				"workflow_id", entry.WorkflowID,
				"duration_ms", d.now().Sub(start).Milliseconds(),
				"error", err,
			)
			return
		}

		d.logger.Debug("job fired",
			"job_id", entry.ID,
			"workflow_id", entry.WorkflowID,
			"duration_ms", d.now().Sub(start).Milliseconds(),
		)
	}()
}
