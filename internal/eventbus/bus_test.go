package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()

	b := New()
	ch1, unsub1 := b.Subscribe(1)
	ch2, unsub2 := b.Subscribe(1)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: "test", Data: 42})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != "test" || ev.Data != 42 {
				t.Fatalf("event = %+v", ev)
			}
			if ev.Time.IsZero() {
				t.Fatal("publish did not stamp the event")
			}
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"}) // buffer full, dropped

	if ev := <-ch; ev.Type != "one" {
		t.Fatalf("event = %+v", ev)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("channel delivered after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// Publishing after the only subscriber left must not panic.
	b.Publish(Event{Type: "orphan"})
}
