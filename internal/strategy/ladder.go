package strategy

import (
	"log/slog"
	"sync"
	"time"

	"weather-arb/internal/config"
	"weather-arb/internal/registry"
	"weather-arb/internal/ticker"
	"weather-arb/pkg/types"
)

func init() {
	Register("LadderStrategy", NewLadder)
}

const historyCap = 10

// Ladder trades the bracket ladder of daily high-temperature events.
//
// Each tracked contract pays "no" when the day's high clears the bracket
// ceiling. When the station reports consecutive observations at or above a
// contract's cap strike inside the settlement window, the high has already
// been set and the "no" side is near-certain; the ladder fires one buy
// intent per contract per discovery cycle.
type Ladder struct {
	id     string
	emit   func(types.OrderIntent)
	logger *slog.Logger

	targets   map[string]bool // target series prefixes
	paperMode bool

	consecutiveObs int
	maxPriceCents  int
	maxSpendCents  int64
	spikeCents     int // 0 = spike logging off

	mu      sync.Mutex
	entries map[string]*ladderEntry        // market ticker → rung
	history map[string][]types.Observation // synoptic station id → recent obs
	lastBid map[string]int                 // market ticker → last yes bid seen
}

// ladderEntry is one rung: a contract plus its trigger and settlement
// window.
type ladderEntry struct {
	contract    types.Contract
	station     types.Station
	triggerTemp float64
	windowStart time.Time
	windowEnd   time.Time
	executed    bool
}

// NewLadder builds a Ladder from its config entry. Recognized params:
// consecutive_obs (default 2), max_price_cents (default 95),
// max_spend_per_event_cents (default 0 = uncapped), spike_threshold_cents
// (default 0 = off).
func NewLadder(def config.StrategyDef, paperMode bool, emit func(types.OrderIntent), logger *slog.Logger) (Strategy, error) {
	targets := make(map[string]bool, len(def.Targets))
	for _, t := range def.Targets {
		targets[t] = true
	}
	return &Ladder{
		id:             def.ID,
		emit:           emit,
		logger:         logger.With("component", "strategy", "strategy_id", def.ID),
		targets:        targets,
		paperMode:      paperMode,
		consecutiveObs: intParam(def.Params, "consecutive_obs", 2),
		maxPriceCents:  intParam(def.Params, "max_price_cents", 95),
		maxSpendCents:  int64Param(def.Params, "max_spend_per_event_cents", 0),
		spikeCents:     intParam(def.Params, "spike_threshold_cents", 0),
		entries:        make(map[string]*ladderEntry),
		history:        make(map[string][]types.Observation),
		lastBid:        make(map[string]int),
	}, nil
}

func (l *Ladder) ID() string { return l.id }

// OnMarketDiscovery rebuilds the ladder from scratch. All weather history
// is dropped: observations gathered against the previous event set must not
// trigger rungs of the new one.
func (l *Ladder) OnMarketDiscovery(ev types.MarketDiscoveryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]*ladderEntry)
	l.history = make(map[string][]types.Observation)
	l.lastBid = make(map[string]int)

	for _, ct := range ev.Contracts {
		series := registry.SeriesForEventTicker(ct.EventTicker)
		if series == "" || !l.targets[series] {
			continue
		}
		if !ct.HasCapStrike {
			l.logger.Warn("skipping contract without cap strike", "market", ct.Ticker)
			continue
		}
		st, err := registry.ForSeries(series)
		if err != nil {
			continue
		}
		if _, _, _, ok := ticker.EventDate(ct.EventTicker); !ok {
			l.logger.Warn("event ticker has no date token, window falls back to today",
				"market", ct.Ticker, "event", ct.EventTicker)
		}
		start, end, err := ticker.ObservationWindow(ct.EventTicker, st.TZ, st.Lat)
		if err != nil {
			l.logger.Warn("skipping contract without observation window", "market", ct.Ticker, "error", err)
			continue
		}
		l.entries[ct.Ticker] = &ladderEntry{
			contract:    ct,
			station:     st,
			triggerTemp: ct.CapStrike,
			windowStart: start,
			windowEnd:   end,
		}
	}
	l.logger.Info("ladder rebuilt", "rungs", len(l.entries))
}

// OnOrderbookUpdate only feeds the optional spike log; the ladder's
// decisions come from weather, not prices.
func (l *Ladder) OnOrderbookUpdate(ev types.OrderbookUpdateEvent) {
	if l.spikeCents <= 0 {
		return
	}
	best := 0
	for p := range ev.Book.Yes {
		if p > best {
			best = p
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, tracked := l.entries[ev.MarketTicker]; !tracked {
		return
	}
	if prev, ok := l.lastBid[ev.MarketTicker]; ok {
		if diff := best - prev; diff >= l.spikeCents || -diff >= l.spikeCents {
			l.logger.Info("price spike", "market", ev.MarketTicker, "from", prev, "to", best)
		}
	}
	l.lastBid[ev.MarketTicker] = best
}

// OnWeatherObservation appends to the station's history and fires every
// unexecuted rung whose trigger condition is now met.
func (l *Ladder) OnWeatherObservation(ob types.Observation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hist := append(l.history[ob.StationID], ob)
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	l.history[ob.StationID] = hist

	for _, e := range l.entries {
		if e.executed || e.station.SynopticID != ob.StationID {
			continue
		}
		if !l.triggered(e, hist) {
			continue
		}
		e.executed = true
		l.logger.Info("rung triggered",
			"market", e.contract.Ticker,
			"trigger_temp", e.triggerTemp,
			"temp", ob.ValueF)
		l.emit(types.OrderIntent{
			StrategyID:    l.id,
			EventTicker:   e.contract.EventTicker,
			Series:        e.station.Series,
			Station:       e.station.SynopticID,
			MarketTicker:  e.contract.Ticker,
			Side:          types.SideNo,
			MaxPriceCents: l.maxPriceCents,
			MaxSpendCents: l.maxSpendCents,
			PaperMode:     l.paperMode,
		})
	}
}

// triggered reports whether the last consecutiveObs in-window observations
// all meet the rung's trigger temperature. The window is inclusive at both
// ends; at-trigger readings count.
func (l *Ladder) triggered(e *ladderEntry, hist []types.Observation) bool {
	var windowed []types.Observation
	for _, ob := range hist {
		if ob.ObTime.Before(e.windowStart) || ob.ObTime.After(e.windowEnd) {
			continue
		}
		windowed = append(windowed, ob)
	}
	if len(windowed) < l.consecutiveObs {
		return false
	}
	for _, ob := range windowed[len(windowed)-l.consecutiveObs:] {
		if ob.ValueF < e.triggerTemp {
			return false
		}
	}
	return true
}
