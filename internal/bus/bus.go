// Package bus provides the typed in-process publish/subscribe fabric that
// connects ingest, strategies, and execution.
//
// Each event type gets its own Topic. Delivery is synchronous: Publish runs
// every subscriber to completion before returning, in subscription order,
// and a dispatch lock per topic preserves publish order for that type.
// Handlers may themselves publish to other topics (strategy → intent); they
// must never block on I/O. A panicking handler is isolated so the remaining
// subscribers still see the event.
package bus

import (
	"log/slog"
	"sync"

	"weather-arb/pkg/types"
)

// Topic is a single-event-type channel of the bus.
type Topic[T any] struct {
	name string

	mu       sync.Mutex // guards handlers
	handlers []func(T)

	dispatchMu sync.Mutex // serializes deliveries, preserving publish order

	logger *slog.Logger
}

// NewTopic creates a named topic. The name appears in handler-panic logs.
func NewTopic[T any](name string, logger *slog.Logger) *Topic[T] {
	return &Topic[T]{name: name, logger: logger}
}

// Subscribe registers a handler. Handlers run in subscription order on
// every subsequent Publish.
func (t *Topic[T]) Subscribe(h func(T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, h)
}

// Publish delivers the event to every subscriber, once each, and returns
// when all have run.
func (t *Topic[T]) Publish(ev T) {
	t.mu.Lock()
	handlers := make([]func(T), len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.Unlock()

	t.dispatchMu.Lock()
	defer t.dispatchMu.Unlock()
	for _, h := range handlers {
		t.deliver(h, ev)
	}
}

// deliver runs one handler with panic isolation so a failing subscriber
// cannot drop the event for the others.
func (t *Topic[T]) deliver(h func(T), ev T) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("event handler panicked", "topic", t.name, "panic", r)
		}
	}()
	h(ev)
}

// Bus bundles the engine's five topics. Ingest publishes the first four;
// strategies publish intents.
type Bus struct {
	MarketDiscovery    *Topic[types.MarketDiscoveryEvent]
	OrderbookUpdate    *Topic[types.OrderbookUpdateEvent]
	WeatherObservation *Topic[types.Observation]
	TickerUpdate       *Topic[types.TickerUpdateEvent]
	OrderIntent        *Topic[types.OrderIntent]
}

// New creates a bus with all topics wired to the given logger.
func New(logger *slog.Logger) *Bus {
	l := logger.With("component", "bus")
	return &Bus{
		MarketDiscovery:    NewTopic[types.MarketDiscoveryEvent]("market_discovery", l),
		OrderbookUpdate:    NewTopic[types.OrderbookUpdateEvent]("orderbook_update", l),
		WeatherObservation: NewTopic[types.Observation]("weather_observation", l),
		TickerUpdate:       NewTopic[types.TickerUpdateEvent]("ticker_update", l),
		OrderIntent:        NewTopic[types.OrderIntent]("order_intent", l),
	}
}
