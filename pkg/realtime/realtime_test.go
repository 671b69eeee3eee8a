package realtime

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	h := NewHub(4)
	id1, ch1 := h.Register()
	_, ch2 := h.Register()
	if h.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", h.Size())
	}

	h.Publish(NewEvent(TypeEra, 0, map[string]string{"era": "Modern"}))
	for i, ch := range []<-chan StateEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != TypeEra || ev.Time.IsZero() {
				t.Fatalf("listener %d got %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("listener %d received nothing", i)
		}
	}

	h.Unregister(id1)
	h.Unregister(id1)
	if _, ok := <-ch1; ok {
		t.Fatal("channel of an unregistered listener should be closed")
	}
	if h.Size() != 1 {
		t.Fatalf("Size() after unregister = %d", h.Size())
	}
}

func TestSlowListenerDropsEvents(t *testing.T) {
	h := NewHub(1)
	_, ch := h.Register()

	h.Publish(StateEvent{Type: TypeQuery, Token: 1})
	h.Publish(StateEvent{Type: TypeQuery, Token: 2})

	ev := <-ch
	if ev.Token != 1 {
		t.Fatalf("first buffered event token = %d", ev.Token)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event %+v", ev)
	default:
	}
	published, dropped := h.Stats()
	if published != 2 || dropped != 1 {
		t.Fatalf("Stats() = %d, %d", published, dropped)
	}
}

func TestDefaultBufferSize(t *testing.T) {
	h := NewHub(0)
	_, ch := h.Register()
	if cap(ch) != 32 {
		t.Fatalf("cap = %d, want 32", cap(ch))
	}
}
