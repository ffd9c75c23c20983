package eventbus

import (
	"fmt"
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New()
	topic := "events.HABC12345"

	ch, unsubscribe := bus.Subscribe(topic, 1)
	defer unsubscribe()

	bus.Publish(topic, "card-inserted", 100*time.Millisecond)

	select {
	case event := <-ch:
		if event.Topic != topic {
			t.Errorf("expected topic %s, got %s", topic, event.Topic)
		}
		if event.Data != "card-inserted" {
			t.Errorf("expected card-inserted, got %v", event.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := New()

	ch1, unsub1 := bus.Subscribe("events.HAAA11111", 1)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe("events.HBBB22222", 1)
	defer unsub2()

	bus.Publish("events.HAAA11111", "only-for-first", 100*time.Millisecond)

	select {
	case event := <-ch1:
		if event.Data != "only-for-first" {
			t.Errorf("expected only-for-first, got %v", event.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("timeout waiting for event on first topic")
	}

	select {
	case event := <-ch2:
		t.Errorf("unexpected event on second topic: %+v", event)
	case <-time.After(100 * time.Millisecond):
		// expected
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := New()
	topic := "events.HABC12345"

	ch1, unsub1 := bus.Subscribe(topic, 1)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(topic, 1)
	defer unsub2()

	bus.Publish(topic, "fan-out", 100*time.Millisecond)

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case event := <-ch:
			if event.Data != "fan-out" {
				t.Errorf("subscriber %d: expected fan-out, got %v", i, event.Data)
			}
		case <-time.After(200 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	topic := "events.HABC12345"

	ch, unsubscribe := bus.Subscribe(topic, 1)
	unsubscribe()

	bus.Publish(topic, "late", 100*time.Millisecond)

	_, ok := <-ch
	if ok {
		t.Error("channel is still open after unsubscribe")
	}
}

func TestCloseTopic(t *testing.T) {
	bus := New()

	ch1, unsub1 := bus.Subscribe("events.HGONE1234", 1)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe("events.HGONE1234", 1)
	defer unsub2()
	otherCh, otherUnsub := bus.Subscribe("events.HSTAY5678", 1)
	defer otherUnsub()

	bus.CloseTopic("events.HGONE1234")

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Errorf("subscriber %d: channel should be closed after CloseTopic", i)
			}
		case <-time.After(200 * time.Millisecond):
			t.Errorf("subscriber %d: channel read timed out after CloseTopic", i)
		}
	}

	bus.Publish("events.HSTAY5678", "still-here", 100*time.Millisecond)
	select {
	case event, ok := <-otherCh:
		if !ok {
			t.Error("expected other topic's channel to stay open")
		} else if event.Data != "still-here" {
			t.Errorf("expected still-here, got %v", event.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("timeout waiting for event on surviving topic")
	}
}

func TestPublishNonBlocking(t *testing.T) {
	bus := New()
	topic := "events.HSLOW0000"

	ch, unsubscribe := bus.Subscribe(topic, 1)
	defer unsubscribe()

	// fill the buffer, then hammer the topic without reading
	bus.Publish(topic, "first", 100*time.Millisecond)

	start := time.Now()
	for i := 0; i < 10; i++ {
		bus.Publish(topic, fmt.Sprintf("event-%d", i), 1*time.Millisecond)
	}
	if duration := time.Since(start); duration > 50*time.Millisecond {
		t.Errorf("publishing took %v, expected non-blocking behavior", duration)
	}

	select {
	case event := <-ch:
		if event.Data != "first" {
			t.Errorf("expected first event, got %v", event.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("timeout waiting for first event")
	}

	select {
	case event := <-ch:
		t.Errorf("unexpected event after full buffer: %v", event.Data)
	case <-time.After(100 * time.Millisecond):
		// dropped, as intended
	}
}

func TestShutdown(t *testing.T) {
	bus := New()

	ch1, unsub1 := bus.Subscribe("events.HAAA11111", 1)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe("events.HBBB22222", 1)
	defer unsub2()

	bus.Shutdown()

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Errorf("subscriber %d: channel should be closed after Shutdown", i)
			}
		case <-time.After(200 * time.Millisecond):
			t.Errorf("subscriber %d: channel did not close after Shutdown", i)
		}
	}
}
