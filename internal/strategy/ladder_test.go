package strategy

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"weather-arb/internal/config"
	"weather-arb/pkg/types"
)

func newTestLadder(t *testing.T, params map[string]any) (*Ladder, *[]types.OrderIntent) {
	t.Helper()
	var intents []types.OrderIntent
	s, err := NewLadder(
		config.StrategyDef{ID: "test", ClassName: "LadderStrategy", Targets: []string{"KXHIGHNY"}, Params: params},
		true,
		func(i types.OrderIntent) { intents = append(intents, i) },
		slog.New(slog.DiscardHandler),
	)
	if err != nil {
		t.Fatal(err)
	}
	return s.(*Ladder), &intents
}

func nyDiscovery(trigger float64) types.MarketDiscoveryEvent {
	tk := "KXHIGHNY-26FEB21-T40"
	return types.MarketDiscoveryEvent{
		Tickers: []string{tk},
		Contracts: map[string]types.Contract{
			tk: {
				Ticker:       tk,
				EventTicker:  "KXHIGHNY-26FEB21",
				CapStrike:    trigger,
				HasCapStrike: true,
			},
		},
	}
}

func obs(ts time.Time, temp float64) types.Observation {
	return types.Observation{StationID: "KNYC", ValueF: temp, ObTime: ts, ReceivedAt: ts}
}

// Window for KXHIGHNY-26FEB21 is [2026-02-21 05:00Z, 2026-02-22 05:00Z].
var windowStart = time.Date(2026, 2, 21, 5, 0, 0, 0, time.UTC)

func TestPreWindowObservationIgnored(t *testing.T) {
	t.Parallel()

	l, intents := newTestLadder(t, map[string]any{"consecutive_obs": 1})
	l.OnMarketDiscovery(nyDiscovery(40))

	l.OnWeatherObservation(obs(windowStart.Add(-time.Minute), 50.0))
	if len(*intents) != 0 {
		t.Fatal("pre-window observation must not trigger")
	}

	// Exactly at window start is inside the window.
	l.OnWeatherObservation(obs(windowStart, 50.0))
	if len(*intents) != 1 {
		t.Fatalf("intents = %d, want 1 after in-window observation", len(*intents))
	}
}

func TestTwoConsecutiveRequired(t *testing.T) {
	t.Parallel()

	l, intents := newTestLadder(t, map[string]any{"consecutive_obs": 2})
	l.OnMarketDiscovery(nyDiscovery(40))

	base := windowStart.Add(time.Hour)
	for i, temp := range []float64{40.0, 39.9, 40.0} {
		l.OnWeatherObservation(obs(base.Add(time.Duration(i)*time.Minute), temp))
	}
	if len(*intents) != 0 {
		t.Fatal("must not trigger before two consecutive readings at or above trigger")
	}

	l.OnWeatherObservation(obs(base.Add(3*time.Minute), 40.1))
	if len(*intents) != 1 {
		t.Fatalf("intents = %d, want 1 after (40.0, 40.1)", len(*intents))
	}

	got := (*intents)[0]
	if got.Side != types.SideNo {
		t.Errorf("side = %s, want no", got.Side)
	}
	if got.MarketTicker != "KXHIGHNY-26FEB21-T40" {
		t.Errorf("market = %s", got.MarketTicker)
	}
	if got.MaxPriceCents != 95 {
		t.Errorf("max price = %d, want default 95", got.MaxPriceCents)
	}
}

func TestNoTriggerWithoutConsecutive(t *testing.T) {
	t.Parallel()

	l, intents := newTestLadder(t, map[string]any{"consecutive_obs": 2})
	l.OnMarketDiscovery(nyDiscovery(40))

	base := windowStart.Add(time.Hour)
	for i, temp := range []float64{39.9, 40.1, 39.9} {
		l.OnWeatherObservation(obs(base.Add(time.Duration(i)*time.Minute), temp))
	}
	if len(*intents) != 0 {
		t.Fatalf("intents = %d, want 0", len(*intents))
	}
}

// A reading exactly equal to the trigger temperature counts.
func TestTriggerBoundaryInclusive(t *testing.T) {
	t.Parallel()

	l, intents := newTestLadder(t, map[string]any{"consecutive_obs": 2})
	l.OnMarketDiscovery(nyDiscovery(40))

	base := windowStart.Add(time.Hour)
	l.OnWeatherObservation(obs(base, 40.0))
	l.OnWeatherObservation(obs(base.Add(time.Minute), 40.0))
	if len(*intents) != 1 {
		t.Fatalf("intents = %d, want 1 for at-trigger readings", len(*intents))
	}
}

func TestRungFiresOnce(t *testing.T) {
	t.Parallel()

	l, intents := newTestLadder(t, map[string]any{"consecutive_obs": 1})
	l.OnMarketDiscovery(nyDiscovery(40))

	base := windowStart.Add(time.Hour)
	for i := 0; i < 5; i++ {
		l.OnWeatherObservation(obs(base.Add(time.Duration(i)*time.Minute), 45.0))
	}
	if len(*intents) != 1 {
		t.Fatalf("intents = %d, want 1 (rung is one-shot)", len(*intents))
	}

	// A rediscovery rebuilds the ladder; the rung can fire again.
	l.OnMarketDiscovery(nyDiscovery(40))
	l.OnWeatherObservation(obs(base.Add(10*time.Minute), 45.0))
	if len(*intents) != 2 {
		t.Fatalf("intents = %d, want 2 after rediscovery", len(*intents))
	}
}

// Rediscovery drops all observation history; readings gathered before it
// must not count toward the new ladder's triggers.
func TestHistoryResetOnDiscovery(t *testing.T) {
	t.Parallel()

	l, intents := newTestLadder(t, map[string]any{"consecutive_obs": 2})
	l.OnMarketDiscovery(nyDiscovery(40))

	base := windowStart.Add(time.Hour)
	l.OnWeatherObservation(obs(base, 45.0))

	l.OnMarketDiscovery(nyDiscovery(40))
	l.OnWeatherObservation(obs(base.Add(time.Minute), 45.0))
	if len(*intents) != 0 {
		t.Fatal("observation from before rediscovery counted toward trigger")
	}

	l.OnWeatherObservation(obs(base.Add(2*time.Minute), 45.0))
	if len(*intents) != 1 {
		t.Fatalf("intents = %d, want 1 once two post-discovery readings arrive", len(*intents))
	}
}

func TestContractsOutsideTargetsIgnored(t *testing.T) {
	t.Parallel()

	l, intents := newTestLadder(t, map[string]any{"consecutive_obs": 1})
	tk := "KXHIGHCHI-26FEB21-T42"
	l.OnMarketDiscovery(types.MarketDiscoveryEvent{
		Tickers: []string{tk},
		Contracts: map[string]types.Contract{
			tk: {Ticker: tk, EventTicker: "KXHIGHCHI-26FEB21", CapStrike: 42, HasCapStrike: true},
		},
	})

	l.OnWeatherObservation(types.Observation{
		StationID: "KMDW1M", ValueF: 80,
		ObTime: time.Date(2026, 2, 21, 18, 0, 0, 0, time.UTC),
	})
	if len(*intents) != 0 {
		t.Fatal("contract outside the strategy's targets must be ignored")
	}
}

// A ticker without a date token still builds a rung on today's window, but
// the fallback is called out in the log.
func TestDatelessTickerWarnsOnFallback(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var intents []types.OrderIntent
	s, err := NewLadder(
		config.StrategyDef{ID: "test", ClassName: "LadderStrategy", Targets: []string{"KXHIGHNY"}},
		true,
		func(i types.OrderIntent) { intents = append(intents, i) },
		slog.New(slog.NewJSONHandler(&buf, nil)),
	)
	if err != nil {
		t.Fatal(err)
	}
	l := s.(*Ladder)

	tk := "KXHIGHNY-SPECIAL-T40"
	l.OnMarketDiscovery(types.MarketDiscoveryEvent{
		Tickers: []string{tk},
		Contracts: map[string]types.Contract{
			tk: {Ticker: tk, EventTicker: "KXHIGHNY-SPECIAL", CapStrike: 40, HasCapStrike: true},
		},
	})

	if !strings.Contains(buf.String(), "no date token") {
		t.Error("fallback to today's window was not logged")
	}
	if len(l.entries) != 1 {
		t.Fatalf("rungs = %d, want 1 (dateless ticker still tracked)", len(l.entries))
	}
}

func TestContractWithoutCapStrikeSkipped(t *testing.T) {
	t.Parallel()

	l, intents := newTestLadder(t, map[string]any{"consecutive_obs": 1})
	tk := "KXHIGHNY-26FEB21-SPECIAL"
	l.OnMarketDiscovery(types.MarketDiscoveryEvent{
		Tickers: []string{tk},
		Contracts: map[string]types.Contract{
			tk: {Ticker: tk, EventTicker: "KXHIGHNY-26FEB21"},
		},
	})

	l.OnWeatherObservation(obs(windowStart.Add(time.Hour), 100))
	if len(*intents) != 0 {
		t.Fatal("contract without a cap strike must never trigger")
	}
}
