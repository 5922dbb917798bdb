// Package execution turns strategy intents into fills.
//
// The manager is the only component that spends money. It keeps its own
// replica of the orderbooks from bus updates, sweeps the book for each
// intent under the strategy's price and budget limits, tracks cumulative
// spend per (strategy, event), and records every fill. In paper mode the
// sweep is simulated; in live mode the identical level list is submitted as
// IOC limit orders.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"weather-arb/internal/bus"
	"weather-arb/internal/exchange"
	"weather-arb/pkg/types"
)

// FillSink receives executed fills for persistence.
type FillSink interface {
	Append(f types.Fill) error
}

// Manager executes order intents.
type Manager struct {
	client *exchange.Client // nil in paper-only deployments
	sink   FillSink
	logger *slog.Logger

	mu        sync.Mutex
	books     map[string]types.BookLevels
	contracts map[string]types.Contract
	spent     map[string]int64 // strategyID|eventTicker → cents spent
}

// New builds a manager and subscribes it to the bus. client may be nil when
// every configured strategy runs in paper mode.
func New(client *exchange.Client, sink FillSink, b *bus.Bus, logger *slog.Logger) *Manager {
	m := &Manager{
		client:    client,
		sink:      sink,
		logger:    logger.With("component", "execution"),
		books:     make(map[string]types.BookLevels),
		contracts: make(map[string]types.Contract),
		spent:     make(map[string]int64),
	}
	b.OrderbookUpdate.Subscribe(m.onOrderbookUpdate)
	b.MarketDiscovery.Subscribe(m.onMarketDiscovery)
	b.OrderIntent.Subscribe(m.onOrderIntent)
	return m
}

func (m *Manager) onOrderbookUpdate(ev types.OrderbookUpdateEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[ev.MarketTicker] = ev.Book
}

// onMarketDiscovery refreshes contract metadata and drops books for markets
// no longer tracked. Spend tallies survive rollover: an event ticker seen
// again keeps its history.
func (m *Manager) onMarketDiscovery(ev types.MarketDiscoveryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts = ev.Contracts
	for tk := range m.books {
		if _, ok := ev.Contracts[tk]; !ok {
			delete(m.books, tk)
		}
	}
}

func (m *Manager) onOrderIntent(intent types.OrderIntent) {
	if err := m.Execute(context.Background(), intent); err != nil {
		m.logger.Error("intent execution failed",
			"strategy", intent.StrategyID, "market", intent.MarketTicker, "error", err)
	}
}

// sweepLevel is one price level the sweep decided to take.
type sweepLevel struct {
	price int // cents
	count int64
}

// Execute runs one intent to completion: plan the sweep against the replica
// book, submit (live) or simulate (paper), then record the fill.
func (m *Manager) Execute(ctx context.Context, intent types.OrderIntent) error {
	m.mu.Lock()
	book, haveBook := m.books[intent.MarketTicker]
	spendKey := intent.StrategyID + "|" + intent.EventTicker
	already := m.spent[spendKey]
	m.mu.Unlock()

	if !haveBook {
		m.logger.Warn("no orderbook for intent, skipping",
			"strategy", intent.StrategyID, "market", intent.MarketTicker)
		return nil
	}

	levels, cost, filled := planSweep(book, intent.Side, intent.MaxPriceCents, intent.MaxSpendCents, already)
	if filled == 0 {
		m.logger.Info("nothing to sweep",
			"strategy", intent.StrategyID, "market", intent.MarketTicker,
			"max_price", intent.MaxPriceCents, "already_spent", already)
		return nil
	}

	if !intent.PaperMode {
		if m.client == nil {
			return fmt.Errorf("live intent with no exchange client configured")
		}
		m.submitLevels(ctx, intent, levels)
	}

	m.mu.Lock()
	m.spent[spendKey] += cost
	total := m.spent[spendKey]
	m.mu.Unlock()

	fill := types.Fill{
		ExecutedAt:              time.Now().UTC(),
		StrategyID:              intent.StrategyID,
		EventTicker:             intent.EventTicker,
		Series:                  intent.Series,
		Station:                 intent.Station,
		MarketTicker:            intent.MarketTicker,
		Side:                    intent.Side,
		ContractsFilled:         filled,
		AvgFillPriceCents:       float64(cost) / float64(filled),
		TotalCostCents:          cost,
		StrategyEventSpentCents: total,
	}
	m.logger.Info("fill",
		"strategy", fill.StrategyID, "market", fill.MarketTicker, "side", fill.Side,
		"contracts", fill.ContractsFilled, "avg_price", fill.AvgFillPriceCents,
		"cost", fill.TotalCostCents, "paper", intent.PaperMode)
	if err := m.sink.Append(fill); err != nil {
		m.logger.Error("fill persistence failed", "market", fill.MarketTicker, "error", err)
	}
	return nil
}

// planSweep computes the level list a sweep would take. The effective asks
// for one side are the 100-complements of the resting bids on the opposite
// side. Levels are taken best-first up to maxPrice, bounded by the budget
// remaining after alreadySpent; maxSpend <= 0 means uncapped. Paper and
// live modes share this plan verbatim.
func planSweep(book types.BookLevels, side types.Side, maxPrice int, maxSpend, alreadySpent int64) (levels []sweepLevel, cost, filled int64) {
	opp := book.Side(side.Opposite())
	asks := make([]sweepLevel, 0, len(opp))
	for bidPrice, qty := range opp {
		asks = append(asks, sweepLevel{price: 100 - bidPrice, count: qty})
	}
	sort.Slice(asks, func(i, j int) bool { return asks[i].price < asks[j].price })

	capped := maxSpend > 0
	remaining := maxSpend - alreadySpent
	if capped && remaining <= 0 {
		return nil, 0, 0
	}

	for _, ask := range asks {
		if ask.price > maxPrice {
			break
		}
		take := ask.count
		if capped {
			if affordable := remaining / int64(ask.price); affordable < take {
				take = affordable
			}
		}
		if take <= 0 {
			break
		}
		levelCost := take * int64(ask.price)
		levels = append(levels, sweepLevel{price: ask.price, count: take})
		cost += levelCost
		filled += take
		if capped {
			remaining -= levelCost
		}
	}
	return levels, cost, filled
}

// submitLevels sends the planned levels as IOC limit orders. A rejected
// level is logged and the rest are still submitted.
func (m *Manager) submitLevels(ctx context.Context, intent types.OrderIntent, levels []sweepLevel) {
	for i, lv := range levels {
		req := types.CreateOrderRequest{
			Ticker:        intent.MarketTicker,
			ClientOrderID: fmt.Sprintf("%s-%d-%d", intent.StrategyID, time.Now().UnixNano(), i),
			Action:        "buy",
			Side:          intent.Side,
			Count:         lv.count,
			Type:          "limit",
			TimeInForce:   "immediate_or_cancel",
		}
		if intent.Side == types.SideYes {
			req.YesPrice = lv.price
		} else {
			req.NoPrice = lv.price
		}
		resp, err := m.client.CreateOrder(ctx, req)
		if err != nil {
			m.logger.Error("order submission failed",
				"market", intent.MarketTicker, "price", lv.price, "count", lv.count, "error", err)
			continue
		}
		m.logger.Info("order submitted",
			"market", intent.MarketTicker, "price", lv.price, "count", lv.count,
			"order_id", resp.Order.OrderID, "status", resp.Order.Status)
	}
}
