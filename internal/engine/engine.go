// Package engine wires the bot together and owns its lifecycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"weather-arb/internal/bus"
	"weather-arb/internal/config"
	"weather-arb/internal/discovery"
	"weather-arb/internal/exchange"
	"weather-arb/internal/execution"
	"weather-arb/internal/market"
	"weather-arb/internal/registry"
	"weather-arb/internal/sink"
	"weather-arb/internal/strategy"
	"weather-arb/internal/weather"
)

// Engine owns every component and the goroutines that drive them.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	exchangeFeed *exchange.Feed
	weatherFeed  *weather.Feed
	disc         *discovery.Controller
	fills        *sink.FillWriter

	cancel context.CancelFunc
	wg     sync.WaitGroup

	done     chan struct{}
	failOnce sync.Once
	fatalMu  sync.Mutex
	fatalErr error
}

// New builds all components. Construction errors (bad credentials, unknown
// strategy classes, unwritable data dir) are unrecoverable startup
// failures.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	e := &Engine{cfg: cfg, logger: logger.With("component", "engine"), done: make(chan struct{})}

	signer, err := exchange.NewSigner(cfg.Kalshi.APIKeyID, cfg.Kalshi.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("exchange credentials: %w", err)
	}
	client, err := exchange.NewClient(cfg.Kalshi.BaseURL,
		time.Duration(cfg.Kalshi.TimeoutSeconds)*time.Second, signer, logger)
	if err != nil {
		return nil, err
	}

	b := bus.New(logger)
	books := market.NewStore()

	e.fills, err = sink.NewFillWriter(cfg.Storage.DataDir, logger)
	if err != nil {
		return nil, err
	}

	mgr, err := strategy.NewManager(cfg.Bot.Strategies, cfg.Bot.PaperMode, b, logger)
	if err != nil {
		return nil, err
	}

	e.exchangeFeed, err = exchange.NewFeed(cfg.Kalshi.WSURL, signer, books, b, mgr.WantsTicker(), logger)
	if err != nil {
		return nil, err
	}

	execution.New(client, e.fills, b, logger)

	series := cfg.SeriesFor("weather_bot")
	for _, s := range series {
		if !registry.Has(s) {
			return nil, fmt.Errorf("series %s has no registered station", s)
		}
	}

	e.disc = discovery.New(client, e.exchangeFeed, books, b, series,
		cfg.Rollover.EventSelection,
		time.Duration(cfg.Rollover.RediscoverIntervalSeconds)*time.Second, logger)

	token, err := cfg.SynopticToken()
	if err != nil {
		return nil, err
	}
	stations := registry.SynopticStations(series)
	if len(stations) == 0 {
		return nil, fmt.Errorf("no weather stations resolve from series %v", series)
	}
	feedURL := weather.FeedURL(token, stations, cfg.Synoptic.Vars)
	e.weatherFeed = weather.NewFeed(feedURL, b, e.fail, logger)

	return e, nil
}

// Start launches all run loops. Returns immediately; use Done to observe a
// fatal mid-run failure.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.run(ctx, e.exchangeFeed.Run)
	e.run(ctx, e.weatherFeed.Run)
	e.run(ctx, e.disc.Run)
	e.run(ctx, func(ctx context.Context) {
		e.fills.Run(ctx, time.Duration(e.cfg.Storage.FlushIntervalSeconds)*time.Second)
	})

	e.logger.Info("engine started",
		"series", e.cfg.SeriesFor("weather_bot"),
		"paper_mode", e.cfg.Bot.PaperMode,
		"selection", e.cfg.Rollover.EventSelection)
}

func (e *Engine) run(ctx context.Context, f func(context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		f(ctx)
	}()
}

// fail records a fatal runtime error and begins shutdown. The run loops are
// cancelled here; the caller of Done drives the final Stop.
func (e *Engine) fail(reason string) {
	e.failOnce.Do(func() {
		e.fatalMu.Lock()
		e.fatalErr = fmt.Errorf("%s", reason)
		e.fatalMu.Unlock()
		e.logger.Error("fatal error, stopping", "reason", reason)
		if e.cancel != nil {
			e.cancel()
		}
		close(e.done)
	})
}

// Done closes when the engine hits a fatal error.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err returns the fatal error, if any.
func (e *Engine) Err() error {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	return e.fatalErr
}

// Stop cancels all loops, waits for them, and flushes the fill sinks.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if err := e.fills.Close(); err != nil {
		e.logger.Error("fill sink close failed", "error", err)
	}
	e.logger.Info("engine stopped")
}
