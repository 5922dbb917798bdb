// Package strategy hosts the decision layer: pluggable strategies that
// consume bus events and emit order intents.
//
// Strategies are pure decision-makers. They never touch the exchange, never
// track spend, and never persist anything; the execution manager owns all of
// that. A strategy is registered under its class name and instantiated from
// bot.strategies config entries.
package strategy

import (
	"fmt"
	"log/slog"
	"sync"

	"weather-arb/internal/bus"
	"weather-arb/internal/config"
	"weather-arb/pkg/types"
)

// Strategy is the event-handler contract. Handlers run synchronously on the
// publishing goroutine; feeds publish from different goroutines, so
// implementations guard their state.
type Strategy interface {
	ID() string
	OnMarketDiscovery(ev types.MarketDiscoveryEvent)
	OnOrderbookUpdate(ev types.OrderbookUpdateEvent)
	OnWeatherObservation(ob types.Observation)
}

// TickerConsumer is implemented by strategies that also want best-bid/ask
// updates from the exchange ticker channel.
type TickerConsumer interface {
	OnTickerUpdate(ev types.TickerUpdateEvent)
}

// Constructor builds one strategy instance from its config entry. emit
// publishes the strategy's intents.
type Constructor func(def config.StrategyDef, paperMode bool, emit func(types.OrderIntent), logger *slog.Logger) (Strategy, error)

var (
	registryMu   sync.Mutex
	constructors = make(map[string]Constructor)
)

// Register makes a strategy class available to the manager. Called from
// init in each strategy file.
func Register(className string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	constructors[className] = c
}

// Manager owns the configured strategy instances and their bus wiring.
type Manager struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewManager instantiates every bot.strategies entry and subscribes it to
// the bus. Unknown class names and duplicate ids are configuration errors.
func NewManager(defs []config.StrategyDef, paperMode bool, b *bus.Bus, logger *slog.Logger) (*Manager, error) {
	m := &Manager{logger: logger.With("component", "strategy_manager")}
	seen := make(map[string]bool)

	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("strategy entry missing id")
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("duplicate strategy id %q", def.ID)
		}
		seen[def.ID] = true

		registryMu.Lock()
		ctor, ok := constructors[def.ClassName]
		registryMu.Unlock()
		if !ok {
			return nil, fmt.Errorf("unknown strategy class %q", def.ClassName)
		}

		s, err := ctor(def, paperMode, b.OrderIntent.Publish, logger)
		if err != nil {
			return nil, fmt.Errorf("build strategy %s: %w", def.ID, err)
		}

		b.MarketDiscovery.Subscribe(s.OnMarketDiscovery)
		b.OrderbookUpdate.Subscribe(s.OnOrderbookUpdate)
		b.WeatherObservation.Subscribe(s.OnWeatherObservation)
		if tc, ok := s.(TickerConsumer); ok {
			b.TickerUpdate.Subscribe(tc.OnTickerUpdate)
		}

		m.strategies = append(m.strategies, s)
		m.logger.Info("strategy registered", "id", def.ID, "class", def.ClassName, "targets", def.Targets)
	}
	return m, nil
}

// Strategies returns the instantiated strategies in config order.
func (m *Manager) Strategies() []Strategy { return m.strategies }

// WantsTicker reports whether any configured strategy consumes the exchange
// ticker channel. The websocket feed only subscribes to it when needed.
func (m *Manager) WantsTicker() bool {
	for _, s := range m.strategies {
		if _, ok := s.(TickerConsumer); ok {
			return true
		}
	}
	return false
}

// intParam reads an integer strategy parameter, tolerating YAML's habit of
// decoding numbers as either int or float64.
func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func int64Param(params map[string]any, key string, def int64) int64 {
	switch v := params[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return def
	}
}
