// Package events provides the in-process pub/sub bus that carries client
// lifecycle events (spawn, connect attempts, handshake, stream records) to
// sinks such as the run logger.
package events

import (
	"log"
	"strings"
	"sync"
	"time"
)

// DefaultBufferSize is the default per-subscriber channel capacity.
const DefaultBufferSize = 64

const (
	// EventTypeServerSpawn identifies a launch request for an absent server.
	EventTypeServerSpawn = "ServerSpawn"
	// EventTypeConnectAttempt identifies one connection attempt outcome.
	EventTypeConnectAttempt = "ConnectAttempt"
	// EventTypeReplyReceived identifies the handshake reply.
	EventTypeReplyReceived = "ReplyReceived"
	// EventTypeStreamRecord identifies one consumed progress record.
	EventTypeStreamRecord = "StreamRecord"
	// EventTypeRunFinished identifies the final outcome of an invocation.
	EventTypeRunFinished = "RunFinished"
)

const (
	// SeverityInfo indicates informational event severity.
	SeverityInfo = "INFO"
	// SeverityWarn indicates warning event severity.
	SeverityWarn = "WARN"
	// SeverityError indicates error event severity.
	SeverityError = "ERROR"
)

// Event is the normalized message delivered through the bus.
type Event struct {
	Type      string
	Timestamp time.Time
	Root      string
	Payload   any
	Severity  string
}

// Handler consumes a published event.
type Handler func(Event)

// Logger captures warning logs for dropped events.
type Logger interface {
	Printf(format string, args ...any)
}

// Bus defines event subscription and publish behavior.
type Bus interface {
	Subscribe(eventType string, handler Handler)
	SubscribeAll(handler Handler)
	Publish(event Event)
}

// Option customizes bus construction.
type Option func(*InMemoryBus)

// WithBufferSize configures per-subscriber channel capacity.
func WithBufferSize(size int) Option {
	return func(bus *InMemoryBus) {
		if size > 0 {
			bus.bufferSize = size
		}
	}
}

// WithLogger configures the log sink used for dropped-event warnings.
func WithLogger(logger Logger) Option {
	return func(bus *InMemoryBus) {
		if logger != nil {
			bus.logger = logger
		}
	}
}

// InMemoryBus is a thread-safe in-process pub/sub bus backed by buffered
// channels. Slow subscribers drop events rather than stalling the client's
// single flow of control.
type InMemoryBus struct {
	mu         sync.RWMutex
	bufferSize int
	logger     Logger
	subs       []*subscriber
}

type subscriber struct {
	// eventType filters delivery; empty means every event.
	eventType string
	ch        chan Event
}

// New creates an in-memory event bus with optional configuration.
func New(options ...Option) *InMemoryBus {
	bus := &InMemoryBus{
		bufferSize: DefaultBufferSize,
		logger:     log.Default(),
	}
	for _, option := range options {
		option(bus)
	}
	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" || handler == nil {
		return
	}
	b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every published event.
func (b *InMemoryBus) SubscribeAll(handler Handler) {
	if handler == nil {
		return
	}
	b.add("", handler)
}

// Publish delivers an event to matching subscribers without blocking.
func (b *InMemoryBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	eventType := strings.TrimSpace(event.Type)

	b.mu.RLock()
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.eventType != "" && sub.eventType != eventType {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Printf("events: dropping %s event for root=%s", event.Type, event.Root)
		}
	}
}

func (b *InMemoryBus) add(eventType string, handler Handler) {
	sub := &subscriber{
		eventType: eventType,
		ch:        make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for event := range sub.ch {
			handler(event)
		}
	}()
}
