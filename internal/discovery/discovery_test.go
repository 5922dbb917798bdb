package discovery

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"weather-arb/internal/bus"
	"weather-arb/internal/market"
	"weather-arb/pkg/types"
)

func ev(ticker, strike, close string) types.RESTEvent {
	return types.RESTEvent{EventTicker: ticker, StrikeDate: strike, CloseTime: close}
}

func TestSelectActive(t *testing.T) {
	t.Parallel()

	events := []types.RESTEvent{
		ev("KXHIGHCHI-26FEB22", "2026-02-22T00:00:00Z", "2026-02-23T06:00:00Z"),
		ev("KXHIGHCHI-26FEB21", "2026-02-21T00:00:00Z", "2026-02-22T06:00:00Z"),
	}
	got := selectEvents(events, "active", time.UTC)
	if len(got) != 1 || got[0].EventTicker != "KXHIGHCHI-26FEB21" {
		t.Fatalf("selected %v, want the soonest-closing event", got)
	}
}

func TestSelectActiveTieBreaksOnTicker(t *testing.T) {
	t.Parallel()

	events := []types.RESTEvent{
		ev("KXHIGHCHI-B", "2026-02-21T00:00:00Z", "2026-02-22T06:00:00Z"),
		ev("KXHIGHCHI-A", "2026-02-21T00:00:00Z", "2026-02-22T06:00:00Z"),
	}
	got := selectEvents(events, "active", time.UTC)
	if got[0].EventTicker != "KXHIGHCHI-A" {
		t.Fatalf("selected %v, want lexicographic tiebreak", got)
	}
}

func TestSelectConsecutive(t *testing.T) {
	t.Parallel()

	events := []types.RESTEvent{
		ev("KXHIGHCHI-26FEB23", "2026-02-23T00:00:00Z", "2026-02-24T06:00:00Z"),
		ev("KXHIGHCHI-26FEB21", "2026-02-21T00:00:00Z", "2026-02-22T06:00:00Z"),
		ev("KXHIGHCHI-26FEB22", "2026-02-22T00:00:00Z", "2026-02-23T06:00:00Z"),
	}
	got := selectEvents(events, "consecutive", time.UTC)
	if len(got) != 2 {
		t.Fatalf("selected %d events, want 2", len(got))
	}
	if got[0].EventTicker != "KXHIGHCHI-26FEB21" || got[1].EventTicker != "KXHIGHCHI-26FEB22" {
		t.Fatalf("selected %v, want the two soonest-closing", got)
	}
}

func TestSelectConsecutiveWithOneEvent(t *testing.T) {
	t.Parallel()

	events := []types.RESTEvent{
		ev("KXHIGHCHI-26FEB21", "2026-02-21T00:00:00Z", "2026-02-22T06:00:00Z"),
	}
	got := selectEvents(events, "consecutive", time.UTC)
	if len(got) != 1 {
		t.Fatalf("selected %d events, want 1", len(got))
	}
}

// When every open event already struck, "next" falls back to "active".
func TestSelectNextFallsBackToActive(t *testing.T) {
	t.Parallel()

	events := []types.RESTEvent{
		ev("KXHIGHCHI-20FEB21", "2020-02-21T00:00:00Z", "2020-02-22T06:00:00Z"),
		ev("KXHIGHCHI-20FEB20", "2020-02-20T00:00:00Z", "2020-02-21T06:00:00Z"),
	}
	got := selectEvents(events, "next", time.UTC)
	if len(got) != 1 || got[0].EventTicker != "KXHIGHCHI-20FEB20" {
		t.Fatalf("selected %v, want fallback to soonest-closing", got)
	}
}

func TestSelectNextPrefersUpcoming(t *testing.T) {
	t.Parallel()

	future := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
	events := []types.RESTEvent{
		ev("KXHIGHCHI-OLD", "2020-02-20T00:00:00Z", "2020-02-21T06:00:00Z"),
		ev("KXHIGHCHI-NEW", future, future),
	}
	got := selectEvents(events, "next", time.UTC)
	if len(got) != 1 || got[0].EventTicker != "KXHIGHCHI-NEW" {
		t.Fatalf("selected %v, want the upcoming event", got)
	}
}

// An event whose strike_date carries today's calendar date qualifies for
// "next" even when the timestamp instant falls before local midnight (e.g.
// 00:00Z is the previous evening in Chicago).
func TestSelectNextComparesCalendarDates(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatal(err)
	}
	today := time.Now().In(loc)
	strike := today.Format("2006-01-02") + "T00:00:00Z"
	events := []types.RESTEvent{
		ev("KXHIGHCHI-TODAY", strike, strike),
	}
	got := selectEvents(events, "next", loc)
	if len(got) != 1 || got[0].EventTicker != "KXHIGHCHI-TODAY" {
		t.Fatalf("selected %v, want today's event despite pre-midnight instant", got)
	}
}

func TestSelectEmpty(t *testing.T) {
	t.Parallel()

	if got := selectEvents(nil, "active", time.UTC); got != nil {
		t.Fatalf("selected %v from no events", got)
	}
}

func TestToContractComplementsNoQuotes(t *testing.T) {
	t.Parallel()

	ct := toContract(types.RESTMarket{
		Ticker:      "KXHIGHCHI-26FEB21-T42",
		EventTicker: "KXHIGHCHI-26FEB21",
		YesBid:      40,
		YesAsk:      45,
	})
	if ct.NoBid != 55 {
		t.Errorf("no bid = %d, want 100-45", ct.NoBid)
	}
	if ct.NoAsk != 60 {
		t.Errorf("no ask = %d, want 100-40", ct.NoAsk)
	}
}

func TestToContractKeepsExplicitNoQuotes(t *testing.T) {
	t.Parallel()

	noBid, noAsk := 54, 61
	ct := toContract(types.RESTMarket{
		Ticker: "T", YesBid: 40, YesAsk: 45, NoBid: &noBid, NoAsk: &noAsk,
	})
	if ct.NoBid != 54 || ct.NoAsk != 61 {
		t.Errorf("no quotes = %d/%d, want API values 54/61", ct.NoBid, ct.NoAsk)
	}
}

func TestToContractCapStrike(t *testing.T) {
	t.Parallel()

	strike := 42.0
	ct := toContract(types.RESTMarket{Ticker: "T", CapStrike: &strike})
	if !ct.HasCapStrike || ct.CapStrike != 42 {
		t.Errorf("cap strike = (%v, %v), want API value", ct.CapStrike, ct.HasCapStrike)
	}

	ct = toContract(types.RESTMarket{Ticker: "T", YesSubTitle: "42° to 43°"})
	if !ct.HasCapStrike || ct.CapStrike != 43 {
		t.Errorf("cap strike = (%v, %v), want 43 from subtitle", ct.CapStrike, ct.HasCapStrike)
	}

	ct = toContract(types.RESTMarket{Ticker: "T", Subtitle: "no digits"})
	if ct.HasCapStrike {
		t.Error("cap strike resolved from an unparseable subtitle")
	}
}

type fakeAPI struct {
	events  []types.RESTEvent
	markets map[string][]types.RESTMarket
	fail    bool
}

func (f *fakeAPI) GetEventsForSeries(context.Context, string, string) ([]types.RESTEvent, error) {
	if f.fail {
		return nil, errors.New("exchange down")
	}
	return f.events, nil
}

func (f *fakeAPI) GetMarketsForEvent(_ context.Context, eventTicker string) ([]types.RESTMarket, error) {
	if f.fail {
		return nil, errors.New("exchange down")
	}
	return f.markets[eventTicker], nil
}

type fakeFeed struct {
	tickers    []string
	reconnects int
}

func (f *fakeFeed) SetTickers(tickers []string) { f.tickers = tickers }
func (f *fakeFeed) RequestReconnect()           { f.reconnects++ }

func newTestController(api MarketAPI, feed Subscriber, b *bus.Bus) *Controller {
	return New(api, feed, market.NewStore(), b, []string{"KXHIGHCHI"},
		"active", time.Minute, slog.New(slog.DiscardHandler))
}

func TestDiscoverPublishesAndSubscribes(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		events: []types.RESTEvent{
			ev("KXHIGHCHI-26FEB21", "2026-02-21T00:00:00Z", "2026-02-22T06:00:00Z"),
		},
		markets: map[string][]types.RESTMarket{
			"KXHIGHCHI-26FEB21": {
				{Ticker: "KXHIGHCHI-26FEB21-T42", EventTicker: "KXHIGHCHI-26FEB21",
					Status: "active", YesSubTitle: "42° or above"},
				{Ticker: "KXHIGHCHI-26FEB21-T44", EventTicker: "KXHIGHCHI-26FEB21",
					Status: "settled", YesSubTitle: "44° or above"},
			},
		},
	}
	feed := &fakeFeed{}
	b := bus.New(slog.New(slog.DiscardHandler))
	var published []types.MarketDiscoveryEvent
	b.MarketDiscovery.Subscribe(func(ev types.MarketDiscoveryEvent) { published = append(published, ev) })

	c := newTestController(api, feed, b)
	c.Discover(context.Background())

	if len(published) != 1 {
		t.Fatalf("discovery events = %d, want 1", len(published))
	}
	got := published[0]
	if len(got.Tickers) != 1 || got.Tickers[0] != "KXHIGHCHI-26FEB21-T42" {
		t.Fatalf("tickers = %v, want only the active market", got.Tickers)
	}
	if ct := got.Contracts["KXHIGHCHI-26FEB21-T42"]; !ct.HasCapStrike || ct.CapStrike != 42 {
		t.Errorf("contract = %+v, want cap strike 42", ct)
	}
	if feed.reconnects != 1 || len(feed.tickers) != 1 {
		t.Errorf("feed = %+v, want one reconnect with one ticker", feed)
	}
}

// The same market set on a later cycle republishes the discovery event but
// does not recycle the websocket.
func TestDiscoverReconnectsOnlyOnChange(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		events: []types.RESTEvent{
			ev("KXHIGHCHI-26FEB21", "2026-02-21T00:00:00Z", "2026-02-22T06:00:00Z"),
		},
		markets: map[string][]types.RESTMarket{
			"KXHIGHCHI-26FEB21": {
				{Ticker: "KXHIGHCHI-26FEB21-T42", EventTicker: "KXHIGHCHI-26FEB21", Status: "active"},
			},
		},
	}
	feed := &fakeFeed{}
	b := bus.New(slog.New(slog.DiscardHandler))
	var published int
	b.MarketDiscovery.Subscribe(func(types.MarketDiscoveryEvent) { published++ })

	c := newTestController(api, feed, b)
	c.Discover(context.Background())
	c.Discover(context.Background())

	if published != 2 {
		t.Errorf("discovery events = %d, want 2", published)
	}
	if feed.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", feed.reconnects)
	}

	// Rollover to the next day's event changes the set.
	api.events = []types.RESTEvent{
		ev("KXHIGHCHI-26FEB22", "2026-02-22T00:00:00Z", "2026-02-23T06:00:00Z"),
	}
	api.markets = map[string][]types.RESTMarket{
		"KXHIGHCHI-26FEB22": {
			{Ticker: "KXHIGHCHI-26FEB22-T40", EventTicker: "KXHIGHCHI-26FEB22", Status: "active"},
		},
	}
	c.Discover(context.Background())
	if feed.reconnects != 2 {
		t.Errorf("reconnects after rollover = %d, want 2", feed.reconnects)
	}
	if len(feed.tickers) != 1 || feed.tickers[0] != "KXHIGHCHI-26FEB22-T40" {
		t.Errorf("tickers = %v", feed.tickers)
	}
}

// A REST failure aborts the cycle: nothing is published and the previous
// subscription keeps serving.
func TestDiscoverKeepsPreviousSetOnError(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		events: []types.RESTEvent{
			ev("KXHIGHCHI-26FEB21", "2026-02-21T00:00:00Z", "2026-02-22T06:00:00Z"),
		},
		markets: map[string][]types.RESTMarket{
			"KXHIGHCHI-26FEB21": {
				{Ticker: "KXHIGHCHI-26FEB21-T42", EventTicker: "KXHIGHCHI-26FEB21", Status: "active"},
			},
		},
	}
	feed := &fakeFeed{}
	b := bus.New(slog.New(slog.DiscardHandler))
	var published int
	b.MarketDiscovery.Subscribe(func(types.MarketDiscoveryEvent) { published++ })

	c := newTestController(api, feed, b)
	c.Discover(context.Background())

	api.fail = true
	c.Discover(context.Background())

	if published != 1 {
		t.Errorf("discovery events = %d, want 1 (failed cycle publishes nothing)", published)
	}
	if feed.reconnects != 1 || feed.tickers[0] != "KXHIGHCHI-26FEB21-T42" {
		t.Errorf("feed = %+v, want untouched previous subscription", feed)
	}
}
