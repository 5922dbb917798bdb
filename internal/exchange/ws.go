package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"weather-arb/internal/bus"
	"weather-arb/internal/market"
	"weather-arb/pkg/types"
)

const (
	reconnectClean = 5 * time.Second
	reconnectError = 10 * time.Second
)

// Feed is the Kalshi market-data websocket. It maintains one signed
// connection, subscribes to orderbook deltas (and optionally the ticker
// channel) for the tracked markets, applies frames to the book store, and
// publishes the post-application state on the bus.
//
// The read loop is the single writer of the book store. The tracked ticker
// set is swapped by discovery via SetTickers + RequestReconnect; the feed
// recycles its connection and resubscribes, and the server answers each
// subscription with fresh snapshots.
type Feed struct {
	wsURL         string
	signPath      string
	signer        *Signer
	store         *market.Store
	bus           *bus.Bus
	logger        *slog.Logger
	includeTicker bool

	connMu sync.Mutex
	conn   *websocket.Conn

	tickMu  sync.Mutex
	tickers []string

	cmdID    atomic.Int64
	recycled atomic.Bool
}

// NewFeed builds the feed. wsURL must include the API path
// (e.g. wss://api.elections.kalshi.com/trade-api/ws/v2).
func NewFeed(wsURL string, signer *Signer, store *market.Store, b *bus.Bus, includeTicker bool, logger *slog.Logger) (*Feed, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	return &Feed{
		wsURL:         wsURL,
		signPath:      u.Path,
		signer:        signer,
		store:         store,
		bus:           b,
		includeTicker: includeTicker,
		logger:        logger.With("component", "kalshi_ws"),
	}, nil
}

// SetTickers replaces the tracked market set. Takes effect on the next
// (re)connect; call RequestReconnect to apply immediately.
func (f *Feed) SetTickers(tickers []string) {
	f.tickMu.Lock()
	defer f.tickMu.Unlock()
	f.tickers = append([]string(nil), tickers...)
}

func (f *Feed) currentTickers() []string {
	f.tickMu.Lock()
	defer f.tickMu.Unlock()
	return append([]string(nil), f.tickers...)
}

// RequestReconnect closes the live connection so the run loop re-dials and
// resubscribes with the current ticker set. Safe to call when disconnected.
func (f *Feed) RequestReconnect() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		f.recycled.Store(true)
		f.conn.Close()
	}
}

// Run drives the connect/subscribe/read cycle until ctx is cancelled.
// Reconnects after 5s on a clean close and 10s on an error; a requested
// recycle reconnects immediately.
func (f *Feed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		var wait time.Duration
		switch {
		case f.recycled.CompareAndSwap(true, false):
			f.logger.Info("reconnecting with updated market set")
		case isCleanClose(err):
			f.logger.Info("connection closed, reconnecting", "wait", reconnectClean)
			wait = reconnectClean
		default:
			f.logger.Warn("connection error, reconnecting", "error", err, "wait", reconnectError)
			wait = reconnectError
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func isCleanClose(err error) bool {
	return err == nil ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (f *Feed) runOnce(ctx context.Context) error {
	headers, err := f.signer.Headers("GET", f.signPath)
	if err != nil {
		return err
	}
	hdr := http.Header{}
	for k, v := range headers {
		hdr.Set(k, v)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, hdr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		f.connMu.Lock()
		f.conn = nil
		f.connMu.Unlock()
		conn.Close()
	}()

	// Close the socket when ctx ends so ReadMessage unblocks.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	tickers := f.currentTickers()
	if len(tickers) == 0 {
		f.logger.Info("no markets to subscribe, holding connection")
	} else if err := f.subscribe(conn, tickers); err != nil {
		return err
	}

	f.logger.Info("connected", "markets", len(tickers))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.dispatch(data)
	}
}

func (f *Feed) subscribe(conn *websocket.Conn, tickers []string) error {
	channels := []string{"orderbook_delta"}
	if f.includeTicker {
		channels = append(channels, "ticker")
	}
	cmd := types.WSCommand{
		ID:  f.cmdID.Add(1),
		Cmd: "subscribe",
		Params: types.WSSubscribeParams{
			Channels:      channels,
			MarketTickers: tickers,
		},
	}
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// dispatch decodes one server frame and routes it by type. Malformed frames
// are logged and skipped; the connection stays up.
func (f *Feed) dispatch(data []byte) {
	var env types.WSEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Warn("unparseable frame", "error", err)
		return
	}

	switch env.Type {
	case "orderbook_snapshot":
		var msg types.OrderbookSnapshotMsg
		if err := json.Unmarshal(env.Msg, &msg); err != nil {
			f.logger.Warn("bad snapshot frame", "error", err)
			return
		}
		book := f.store.ApplySnapshot(msg.MarketTicker, msg.Yes, msg.No)
		f.bus.OrderbookUpdate.Publish(types.OrderbookUpdateEvent{
			MarketTicker: msg.MarketTicker,
			Book:         book,
		})

	case "orderbook_delta":
		var msg types.OrderbookDeltaMsg
		if err := json.Unmarshal(env.Msg, &msg); err != nil {
			f.logger.Warn("bad delta frame", "error", err)
			return
		}
		book, ok := f.store.ApplyDelta(msg.MarketTicker, msg.Yes, msg.No)
		if !ok {
			// Delta arrived before any snapshot; the next snapshot
			// resynchronizes this market.
			f.logger.Debug("dropping delta before snapshot", "market", msg.MarketTicker)
			return
		}
		f.bus.OrderbookUpdate.Publish(types.OrderbookUpdateEvent{
			MarketTicker: msg.MarketTicker,
			Book:         book,
		})

	case "ticker", "ticker_v2":
		var msg types.TickerMsg
		if err := json.Unmarshal(env.Msg, &msg); err != nil {
			f.logger.Warn("bad ticker frame", "error", err)
			return
		}
		f.bus.TickerUpdate.Publish(types.TickerUpdateEvent{
			MarketTicker: msg.MarketTicker,
			YesBid:       msg.YesBid,
			YesAsk:       msg.YesAsk,
			LastPrice:    msg.Price,
		})

	case "subscribed":
		var msg types.WSSubscribedMsg
		if err := json.Unmarshal(env.Msg, &msg); err == nil {
			f.logger.Info("subscribed", "channel", msg.Channel, "sid", msg.SID)
		}

	case "error":
		var msg types.WSErrorMsg
		if err := json.Unmarshal(env.Msg, &msg); err == nil {
			f.logger.Warn("exchange error frame", "code", msg.Code, "msg", msg.Msg)
		}

	default:
		f.logger.Debug("ignoring frame", "type", env.Type)
	}
}
