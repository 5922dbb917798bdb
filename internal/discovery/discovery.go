// Package discovery finds the tradable markets for each configured event
// series and rolls the tracked set forward as events settle.
//
// Each cycle queries open events per series, picks the event(s) per the
// configured selection mode, fetches their markets, and publishes the full
// contract set on the bus. The websocket subscription is recycled only when
// the ticker set actually changed.
package discovery

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"time"

	"weather-arb/internal/bus"
	"weather-arb/internal/market"
	"weather-arb/internal/registry"
	"weather-arb/internal/ticker"
	"weather-arb/pkg/types"
)

// MarketAPI is the REST surface discovery needs.
type MarketAPI interface {
	GetEventsForSeries(ctx context.Context, series, status string) ([]types.RESTEvent, error)
	GetMarketsForEvent(ctx context.Context, eventTicker string) ([]types.RESTMarket, error)
}

// Subscriber is the feed surface discovery drives when the tracked set
// changes.
type Subscriber interface {
	SetTickers(tickers []string)
	RequestReconnect()
}

// Controller runs the discovery loop.
type Controller struct {
	client    MarketAPI
	feed      Subscriber
	books     *market.Store
	bus       *bus.Bus
	series    []string
	selection string // active | next | consecutive
	interval  time.Duration
	logger    *slog.Logger

	prevTickers []string // sorted; last successfully published set
}

// New builds a controller for the given series list.
func New(client MarketAPI, feed Subscriber, books *market.Store, b *bus.Bus,
	series []string, selection string, interval time.Duration, logger *slog.Logger) *Controller {
	return &Controller{
		client:    client,
		feed:      feed,
		books:     books,
		bus:       b,
		series:    series,
		selection: selection,
		interval:  interval,
		logger:    logger.With("component", "discovery"),
	}
}

// Run discovers immediately, then on every interval tick, until ctx ends.
func (c *Controller) Run(ctx context.Context) {
	c.Discover(ctx)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Discover(ctx)
		}
	}
}

// Discover executes one discovery cycle. Any REST failure aborts the cycle
// and keeps the previous tracked set; the next tick retries.
func (c *Controller) Discover(ctx context.Context) {
	contracts := make(map[string]types.Contract)
	var tickers []string

	for _, series := range c.series {
		st, err := registry.ForSeries(series)
		if err != nil {
			c.logger.Warn("skipping unregistered series", "series", series)
			continue
		}
		loc, err := time.LoadLocation(st.TZ)
		if err != nil {
			c.logger.Warn("skipping series with bad timezone", "series", series, "tz", st.TZ)
			continue
		}

		events, err := c.client.GetEventsForSeries(ctx, series, "open")
		if err != nil {
			c.logger.Error("event fetch failed, keeping previous market set", "series", series, "error", err)
			return
		}
		selected := selectEvents(events, c.selection, loc)
		if len(selected) == 0 {
			c.logger.Warn("no open events", "series", series)
			continue
		}

		for _, ev := range selected {
			markets, err := c.client.GetMarketsForEvent(ctx, ev.EventTicker)
			if err != nil {
				c.logger.Error("market fetch failed, keeping previous market set", "event", ev.EventTicker, "error", err)
				return
			}
			for _, m := range markets {
				if m.Status != "" && m.Status != "active" {
					continue
				}
				ct := toContract(m)
				contracts[ct.Ticker] = ct
				tickers = append(tickers, ct.Ticker)
			}
		}
	}

	sort.Strings(tickers)
	changed := !slices.Equal(tickers, c.prevTickers)
	if changed {
		c.logger.Info("market set changed", "markets", len(tickers))
		c.books.Reset()
		c.feed.SetTickers(tickers)
		c.feed.RequestReconnect()
		c.prevTickers = tickers
	}

	c.bus.MarketDiscovery.Publish(types.MarketDiscoveryEvent{
		Tickers:   tickers,
		Contracts: contracts,
	})
}

// toContract converts a REST market row. Missing no-side quotes are derived
// by 100-complement from the yes quotes; the cap strike falls back to the
// subtitle when the API omits it.
func toContract(m types.RESTMarket) types.Contract {
	noBid := 100 - m.YesAsk
	if m.NoBid != nil {
		noBid = *m.NoBid
	}
	noAsk := 100 - m.YesBid
	if m.NoAsk != nil {
		noAsk = *m.NoAsk
	}

	subtitle := m.YesSubTitle
	if subtitle == "" {
		subtitle = m.Subtitle
	}
	strike, ok := ticker.CapStrike(m.CapStrike, subtitle)

	return types.Contract{
		Ticker:       m.Ticker,
		EventTicker:  m.EventTicker,
		Subtitle:     subtitle,
		YesBid:       m.YesBid,
		YesAsk:       m.YesAsk,
		NoBid:        noBid,
		NoAsk:        noAsk,
		LastPrice:    m.LastPrice,
		Volume:       m.Volume,
		OpenInterest: m.OpenInterest,
		CapStrike:    strike,
		HasCapStrike: ok,
	}
}

// selectEvents picks the event(s) to track from a series' open events.
//
//	active       — the soonest-closing event
//	next         — the nearest event striking today or later (local time),
//	               falling back to active when none qualifies
//	consecutive  — the two soonest-closing events
func selectEvents(events []types.RESTEvent, mode string, loc *time.Location) []types.RESTEvent {
	if len(events) == 0 {
		return nil
	}

	byActive := append([]types.RESTEvent(nil), events...)
	sort.Slice(byActive, func(i, j int) bool {
		a, b := byActive[i], byActive[j]
		if a.CloseTime != b.CloseTime {
			return eventTime(a.CloseTime).Before(eventTime(b.CloseTime))
		}
		if a.StrikeDate != b.StrikeDate {
			return eventTime(a.StrikeDate).Before(eventTime(b.StrikeDate))
		}
		return a.EventTicker < b.EventTicker
	})

	switch mode {
	case "next":
		today := time.Now().In(loc)
		midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
		var upcoming []types.RESTEvent
		for _, ev := range events {
			// Calendar-date comparison: an event striking today qualifies
			// even when its strike instant precedes local midnight.
			strike := eventTime(ev.StrikeDate)
			strikeDay := time.Date(strike.Year(), strike.Month(), strike.Day(), 0, 0, 0, 0, loc)
			if !strikeDay.Before(midnight) {
				upcoming = append(upcoming, ev)
			}
		}
		if len(upcoming) == 0 {
			return byActive[:1]
		}
		sort.Slice(upcoming, func(i, j int) bool {
			a, b := upcoming[i], upcoming[j]
			if a.StrikeDate != b.StrikeDate {
				return eventTime(a.StrikeDate).Before(eventTime(b.StrikeDate))
			}
			return a.EventTicker < b.EventTicker
		})
		return upcoming[:1]

	case "consecutive":
		if len(byActive) > 2 {
			return byActive[:2]
		}
		return byActive

	default: // active
		return byActive[:1]
	}
}

// eventTime parses an API timestamp, pushing unparseable values to the end
// of any ordering.
func eventTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}
