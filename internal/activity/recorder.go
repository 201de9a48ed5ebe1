// Package activity persists audit entries off the event bus. Recording is
// strictly best-effort: a write failure is logged and never propagates back
// to the publisher.
package activity

import (
	"context"
	"sync"

	"lexflow/internal/eventbus"
	"lexflow/internal/store"
	"lexflow/pkg/logx"
)

type Recorder struct {
	store store.Activity
	bus   eventbus.Bus
	log   logx.Logger

	mu    sync.Mutex
	unsub func()
	done  chan struct{}
}

func NewRecorder(st store.Activity, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: st, bus: bus, log: log.With(logx.String("svc", "activity"))}
}

// Start subscribes to the bus and consumes events until Stop or ctx cancel.
// Calling Start twice without Stop is a no-op.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsub != nil {
		return
	}
	ch, unsub := r.bus.Subscribe(64)
	r.unsub = unsub
	r.done = make(chan struct{})
	done := r.done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				r.handle(ctx, ev)
			}
		}
	}()
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	unsub, done := r.unsub, r.done
	r.unsub, r.done = nil, nil
	r.mu.Unlock()
	if unsub == nil {
		return
	}
	unsub()
	<-done
}

func (r *Recorder) handle(ctx context.Context, ev eventbus.Event) {
	if ev.Type != eventbus.TypeJobExecuted {
		return
	}
	entry, ok := ev.Data.(store.ActivityEntry)
	if !ok {
		r.log.Warn("event with unexpected payload", logx.String("type", ev.Type))
		return
	}
	if entry.At.IsZero() {
		entry.At = ev.Time
	}
	if err := r.store.AppendActivity(ctx, entry); err != nil {
		r.log.Error("append activity", logx.String("target", entry.TargetID), logx.Err(err))
	}
}
