package host

import "sync"

// Event names published on the bus.
const (
	EventDatasetChanged      = "dataset-changed"
	EventSettingsChanged     = "settings-changed"
	EventExpandRow           = "expand-row"
	EventClosePlugin         = "close-plugin"
	EventShowLocationDetails = "show-location-details"
	EventRenderProgress      = "render-progress"
)

// Event is a named host or plugin notification.
type Event struct {
	Name    string
	Payload map[string]any
}

// Subscription is a channel subscriber. Events carries every event except
// render progress and drops events while its buffer is full. Progress
// holds only the most recent render progress event, so the last one is
// never lost to a slow reader.
type Subscription struct {
	Events   <-chan Event
	Progress <-chan Event

	events   chan Event
	progress chan Event
}

func (s *Subscription) deliver(e Event) {
	if e.Name != EventRenderProgress {
		select {
		case s.events <- e:
		default:
			// subscriber too slow, skip
		}
		return
	}
	for {
		select {
		case s.progress <- e:
			return
		default:
		}
		select {
		case <-s.progress:
		default:
		}
	}
}

// Bus is a simple fan-out pub/sub for host events. Handlers subscribed by
// name run synchronously on Publish; channel subscribers never block it.
type Bus struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	handlers map[string]map[int]func(Event)
	nextID   int
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs:     make(map[*Subscription]struct{}),
		handlers: make(map[string]map[int]func(Event)),
	}
}

// Publish delivers an event to named handlers and all channel subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	hs := make([]func(Event), 0, len(b.handlers[e.Name]))
	for _, h := range b.handlers[e.Name] {
		hs = append(hs, h)
	}
	for sub := range b.subs {
		sub.deliver(e)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(e)
	}
}

// Subscribe registers handler for events with the given name and returns
// a function that removes it.
func (b *Bus) Subscribe(name string, handler func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.handlers[name] == nil {
		b.handlers[name] = make(map[int]func(Event))
	}
	b.handlers[name][id] = handler

	return func() {
		b.mu.Lock()
		delete(b.handlers[name], id)
		b.mu.Unlock()
	}
}

// SubscribeChan returns a channel subscriber for every event.
func (b *Bus) SubscribeChan() *Subscription {
	sub := &Subscription{
		events:   make(chan Event, 16),
		progress: make(chan Event, 1),
	}
	sub.Events, sub.Progress = sub.events, sub.progress
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a channel subscriber and closes its channels.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	close(sub.events)
	close(sub.progress)
}
