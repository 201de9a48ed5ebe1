package activity

import (
	"context"
	"testing"
	"time"

	"lexflow/internal/eventbus"
	"lexflow/internal/store"
	"lexflow/pkg/logx"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestRecorderPersistsJobEvents(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	bus := eventbus.New()
	rec := NewRecorder(mem, bus, logx.Nop())
	rec.Start(context.Background())
	defer rec.Stop()

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	bus.Publish(eventbus.Event{
		Type: eventbus.TypeJobExecuted,
		Time: at,
		Data: store.ActivityEntry{
			UserID:     "user-1",
			Action:     "scheduled_job_executed",
			TargetType: "scheduled_job",
			TargetID:   "job-1",
		},
	})

	waitFor(t, func() bool { return len(mem.ActivityList()) == 1 })
	entry := mem.ActivityList()[0]
	if entry.TargetID != "job-1" {
		t.Fatalf("entry = %+v", entry)
	}
	if !entry.At.Equal(at) {
		t.Fatalf("entry.At = %v, want event time backfilled", entry.At)
	}
}

func TestRecorderIgnoresOtherEvents(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	bus := eventbus.New()
	rec := NewRecorder(mem, bus, logx.Nop())
	rec.Start(context.Background())

	bus.Publish(eventbus.Event{Type: "config.reloaded", Data: "noise"})
	bus.Publish(eventbus.Event{Type: eventbus.TypeJobExecuted, Data: "wrong shape"})

	// Stop drains the subscription; anything recorded would be visible now.
	rec.Stop()
	if got := len(mem.ActivityList()); got != 0 {
		t.Fatalf("recorded %d entries from ignorable events", got)
	}
}

func TestRecorderStartIsIdempotent(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	bus := eventbus.New()
	rec := NewRecorder(mem, bus, logx.Nop())
	ctx := context.Background()
	rec.Start(ctx)
	rec.Start(ctx)

	bus.Publish(eventbus.Event{
		Type: eventbus.TypeJobExecuted,
		Data: store.ActivityEntry{TargetID: "job-1"},
	})
	waitFor(t, func() bool { return len(mem.ActivityList()) == 1 })
	rec.Stop()
	rec.Stop()

	// A second Start would have doubled the subscription and the writes.
	if got := len(mem.ActivityList()); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}
}
