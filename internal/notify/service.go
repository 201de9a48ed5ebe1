package notify

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lexflow/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Config controls the async pipeline.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Service is the async email pipeline: bounded queue, worker pool, token
// bucket rate limit, retry with jittered backoff. Enqueue never blocks;
// a full queue drops the message with a warning.
type Service struct {
	mu sync.Mutex

	cfg     Config
	mailer  Mailer
	log     logx.Logger
	limiter *rate.Limiter

	queue     chan Message
	accepting bool

	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, mailer Mailer, log logx.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		mailer: mailer,
		log:    log,
		// Burst = rate per second so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accepting {
		return
	}
	s.queue = make(chan Message, s.cfg.QueueSize)
	s.accepting = true

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	for i := 0; i < s.cfg.Workers; i++ {
		s.workerWG.Add(1)
		go s.worker(runCtx)
	}
	s.log.Info("notifier started", logx.Int("workers", s.cfg.Workers))
}

// Stop drains nothing: queued messages not yet picked up are dropped.
// Email here is best-effort by contract.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.workerWG.Wait()
	s.log.Info("notifier stopped")
}

// Enqueue hands a message to the pipeline without blocking.
func (s *Service) Enqueue(msg Message) error {
	s.mu.Lock()
	accepting, queue := s.accepting, s.queue
	s.mu.Unlock()

	if !accepting {
		return ErrStopped
	}
	select {
	case queue <- msg:
		return nil
	default:
		s.log.Warn("notify queue full, dropping message", logx.String("subject", msg.Subject))
		return ErrQueueFull
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.workerWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			s.deliver(ctx, msg)
		}
	}
}

func (s *Service) deliver(ctx context.Context, msg Message) {
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		err := s.mailer.Send(ctx, msg)
		if err == nil {
			s.log.Debug("email sent", logx.String("subject", msg.Subject))
			return
		}
		if attempt >= s.cfg.RetryMax {
			s.log.Warn("email dropped after retries",
				logx.String("subject", msg.Subject),
				logx.Int("attempts", attempt+1),
				logx.Err(err))
			return
		}

		delay := s.cfg.RetryBase << attempt
		if delay > s.cfg.RetryMaxDelay {
			delay = s.cfg.RetryMaxDelay
		}
		// 20% jitter keeps retries from synchronizing.
		delay += time.Duration(rand.Int63n(int64(delay)/5 + 1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
