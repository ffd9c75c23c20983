// Package eventbus provides an in-memory publish/subscribe bus used by the
// router to fan card events out from card-host connections to the controller
// connections bound to them. Topics are exact strings, one per card host.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Event is a single published item: the topic it was published on and the
// payload, typically a *wire.Event.
type Event struct {
	Topic string
	Data  any
}

// Subscriber is a single subscription with a buffered delivery channel.
type Subscriber struct {
	ID         string
	Topic      string
	BufferSize int
	Channel    chan Event
	Context    context.Context
	Cancel     context.CancelFunc

	mu     sync.Mutex // protects closed flag
	closed bool
}

// TimedSend attempts to deliver an event within the given timeout.
// Returns false if the subscriber is closed or its buffer stayed full.
func (s *Subscriber) TimedSend(event Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.Channel <- event:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close cancels the subscriber's context and closes its channel.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.Cancel()
		close(s.Channel)
	}
}

// EventBus routes published events to the subscribers of their topic.
// Publishing never blocks the card-host read loop; slow controllers drop
// events once their buffer fills.
type EventBus struct {
	sync.RWMutex
	subscribers map[string]map[string]*Subscriber // topic -> subscriberID -> Subscriber
	counter     uint64
}

// New returns an empty bus.
func New() *EventBus {
	return &EventBus{
		subscribers: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber on a topic and returns the delivery
// channel plus an unsubscribe function. Unsubscribing closes the channel.
func (bus *EventBus) Subscribe(topic string, bufferSize int) (<-chan Event, func()) {
	id := fmt.Sprintf("sub-%d", atomic.AddUint64(&bus.counter, 1))

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Event, bufferSize)

	sub := &Subscriber{
		ID:         id,
		Topic:      topic,
		BufferSize: bufferSize,
		Channel:    ch,
		Context:    ctx,
		Cancel:     cancel,
	}

	bus.Lock()
	defer bus.Unlock()

	if _, ok := bus.subscribers[topic]; !ok {
		bus.subscribers[topic] = make(map[string]*Subscriber)
	}
	bus.subscribers[topic][id] = sub

	unsubscribe := func() {
		bus.Lock()
		defer bus.Unlock()

		if subMap, ok := bus.subscribers[topic]; ok {
			if s, ok := subMap[id]; ok {
				s.Close()
				delete(subMap, id)
				if len(subMap) == 0 {
					delete(bus.subscribers, topic)
				}
			}
		}
	}

	return ch, unsubscribe
}

// CloseTopic closes every subscriber on a topic. Called when the card host
// behind the topic disconnects.
func (bus *EventBus) CloseTopic(topic string) {
	bus.Lock()
	defer bus.Unlock()

	if subs, ok := bus.subscribers[topic]; ok {
		for _, sub := range subs {
			sub.Close()
		}
		delete(bus.subscribers, topic)
	}
}

// Publish delivers an event to every subscriber of the topic. Slow
// subscribers are given at most timeout each before the event is dropped
// for them.
func (bus *EventBus) Publish(topic string, data any, timeout time.Duration) {
	event := Event{Topic: topic, Data: data}

	bus.RLock()
	defer bus.RUnlock()

	for _, sub := range bus.subscribers[topic] {
		select {
		case <-sub.Context.Done():
			continue
		default:
			sub.TimedSend(event, timeout)
		}
	}
}

// Shutdown closes all subscribers and resets the bus.
func (bus *EventBus) Shutdown() {
	bus.Lock()
	defer bus.Unlock()

	for _, subs := range bus.subscribers {
		for _, sub := range subs {
			sub.Close()
		}
	}
	bus.subscribers = make(map[string]map[string]*Subscriber)
}
