// Package scheduler polls the store for due jobs and dispatches each to
// its typed handler. One sweep runs at a time; every due job leaves a
// sweep with a fresh next-run time no matter how its execution went.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lexflow/internal/eventbus"
	"lexflow/internal/notify"
	"lexflow/internal/store"
	"lexflow/pkg/logx"
)

const (
	defaultPollInterval = time.Minute
	defaultJobTimeout   = 5 * time.Minute

	// metaLimit caps the serialized result stored in the activity log.
	metaLimit = 1000
)

type Config struct {
	PollInterval time.Duration
	JobTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	return c
}

// Notifier is the slice of the mail pipeline the scheduler needs.
type Notifier interface {
	Enqueue(msg notify.Message) error
}

// Service is the polling loop. Construct with New, then Start/Stop.
type Service struct {
	cfg      Config
	jobs     store.Jobs
	handlers *Handlers
	bus      eventbus.Bus
	mail     Notifier
	log      logx.Logger
	now      func() time.Time

	sweeping atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, jobs store.Jobs, handlers *Handlers, bus eventbus.Bus, mail Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		jobs:     jobs,
		handlers: handlers,
		bus:      bus,
		mail:     mail,
		log:      log.With(logx.String("svc", "scheduler")),
		now:      time.Now,
	}
}

// Start launches the polling loop: one immediate sweep, then one per
// poll interval. Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.log.Info("starting", logx.Duration("poll", s.cfg.PollInterval))

	go func() {
		defer close(s.done)
		s.Sweep(ctx)
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to return.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("stopped")
}

// Sweep executes every currently due job once. If a sweep is already in
// flight the call returns immediately; sweeps never overlap.
func (s *Service) Sweep(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer s.sweeping.Store(false)

	now := s.now()
	due, err := s.jobs.FindDue(ctx, now)
	if err != nil {
		s.log.Error("find due jobs", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Info("sweep", logx.Int("due", len(due)))

	for _, job := range due {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, job)
	}
}

func (s *Service) runJob(ctx context.Context, job store.ScheduledJob) {
	log := s.log.With(logx.String("job", job.ID), logx.String("type", string(job.Type)))
	started := s.now()

	jctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	result, err := s.execute(jctx, job)
	cancel()

	status := store.StatusCompleted
	if err != nil {
		status = store.StatusFailed
		log.Error("job failed", logx.Err(err))
	} else {
		log.Info("job completed", logx.Duration("took", s.now().Sub(started)))
	}

	// The job advances even after a failure; a broken job retries on its
	// regular cadence instead of hot-looping every sweep.
	next := NextRun(job, s.now())
	if uerr := s.jobs.UpdateStatus(ctx, job.ID, started, status, next); uerr != nil {
		log.Error("update job status", logx.Err(uerr))
	}

	s.publishActivity(job, started, status, result, err)
	s.emailResult(job, status, result, err, log)
}

// execute runs the handler with panic containment. A panicking handler
// fails its job and nothing else.
func (s *Service) execute(ctx context.Context, job store.ScheduledJob) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.handlers.Execute(ctx, job)
}

func (s *Service) publishActivity(job store.ScheduledJob, at time.Time, status string, result any, err error) {
	if s.bus == nil {
		return
	}
	meta := map[string]any{"status": status}
	if err != nil {
		meta["error"] = err.Error()
	} else if result != nil {
		meta["result"] = result
	}
	raw, merr := json.Marshal(meta)
	if merr != nil {
		raw = []byte(fmt.Sprintf(`{"status":%q}`, status))
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeJobExecuted,
		Time: at,
		Data: store.ActivityEntry{
			At:          at,
			UserID:      job.CreatedBy,
			Action:      "scheduled_job_executed",
			TargetType:  "scheduled_job",
			TargetID:    job.ID,
			Description: fmt.Sprintf("Scheduled %s job %s", job.Type, status),
			MetaJSON:    truncate(string(raw), metaLimit),
		},
	})
}

func (s *Service) emailResult(job store.ScheduledJob, status string, result any, err error, log logx.Logger) {
	if s.mail == nil || !job.EmailResults || len(job.EmailTo) == 0 {
		return
	}
	var body string
	if err != nil {
		body = fmt.Sprintf("The scheduled %s job failed:\n\n%s\n", job.Type, err)
	} else {
		pretty, merr := json.MarshalIndent(result, "", "  ")
		if merr != nil {
			pretty = []byte(fmt.Sprintf("%v", result))
		}
		body = fmt.Sprintf("The scheduled %s job completed.\n\nResult:\n%s\n", job.Type, pretty)
	}
	msg := notify.Message{
		To:      job.EmailTo,
		Subject: fmt.Sprintf("Scheduled job %s: %s", job.ID, status),
		Body:    body,
	}
	if qerr := s.mail.Enqueue(msg); qerr != nil {
		log.Warn("enqueue result email", logx.Err(qerr))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
