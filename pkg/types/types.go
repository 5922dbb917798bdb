// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — stations, contracts,
// orderbook levels, bus event payloads, and the wire formats of the Kalshi
// and Synoptic feeds. It has no dependencies on internal packages, so it can
// be imported by any layer.
package types

import (
	"encoding/json"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side identifies which binary outcome of a contract an order targets.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other side. The sweep derives the effective ask for
// one side from the resting bids on the opposite side (100-complement rule).
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// ————————————————————————————————————————————————————————————————————————
// Stations and contracts
// ————————————————————————————————————————————————————————————————————————

// Station is the immutable registry entry for one tracked event series.
// Each series maps 1:1 to one surface weather station.
type Station struct {
	Series     string  // event-series prefix, e.g. "KXHIGHCHI"
	ICAO       string  // 4-letter station id, e.g. "KMDW"
	IATA       string  // 3-letter regional id, e.g. "MDW"
	City       string  // human-readable name
	TZ         string  // IANA timezone, e.g. "America/Chicago"
	Lat        float64 // station latitude (selects the LST probe date)
	Lon        float64
	SynopticID string // Synoptic push station id; empty = no 1-min feed
}

// Contract is one binary outcome inside an event, as tracked by the core.
// CapStrike is the ceiling of the bracket; when the API omits it the
// discovery controller derives it from the subtitle.
type Contract struct {
	Ticker       string
	EventTicker  string
	Subtitle     string
	YesBid       int // cents
	YesAsk       int
	NoBid        int
	NoAsk        int
	LastPrice    int
	Volume       int64
	OpenInterest int64
	CapStrike    float64
	HasCapStrike bool
}

// ————————————————————————————————————————————————————————————————————————
// Bus event payloads
// ————————————————————————————————————————————————————————————————————————

// Observation is one 1-minute surface weather observation. Timeline order
// is always ReceivedAt; ObTime is used only for observation-window filtering.
type Observation struct {
	StationID  string    // Synoptic push station id, e.g. "KMDW1M"
	ValueF     float64   // air temperature, °F
	ObTime     time.Time // observation timestamp (UTC)
	ReceivedAt time.Time // wall-clock arrival at the engine (UTC)
}

// BookLevels is a point-in-time copy of one market's orderbook, keyed by
// price in cents [1,99] with resting contract counts. Every stored quantity
// is strictly positive.
type BookLevels struct {
	Yes map[int]int64
	No  map[int]int64
}

// Side returns the level map for one side.
func (b BookLevels) Side(s Side) map[int]int64 {
	if s == SideYes {
		return b.Yes
	}
	return b.No
}

// OrderbookUpdateEvent carries the post-application state of one market's
// book. The levels are a copy, so consumers never share memory with ingest.
type OrderbookUpdateEvent struct {
	MarketTicker string
	Book         BookLevels
}

// MarketDiscoveryEvent is published after every discovery cycle with the
// full tracked contract set. Strategies rebuild their ladders from it.
type MarketDiscoveryEvent struct {
	Tickers   []string
	Contracts map[string]Contract
}

// TickerUpdateEvent is an optional best-bid/ask/last update from the
// exchange "ticker" channel. Only strategies that opt in consume it.
type TickerUpdateEvent struct {
	MarketTicker string
	YesBid       int
	YesAsk       int
	LastPrice    int
}

// OrderIntent is a strategy's request to buy one side of one contract.
// MaxSpendCents <= 0 means uncapped.
type OrderIntent struct {
	StrategyID    string
	EventTicker   string
	Series        string
	Station       string
	MarketTicker  string
	Side          Side
	MaxPriceCents int
	MaxSpendCents int64
	PaperMode     bool
}

// ————————————————————————————————————————————————————————————————————————
// Fills
// ————————————————————————————————————————————————————————————————————————

// FillLevel is one swept price level. The level list produced by a paper
// sweep is identical to the level list submitted in live mode.
type FillLevel struct {
	PriceCents int
	Contracts  int64
}

// Fill is the record of one executed intent, appended to the fill sinks.
type Fill struct {
	ExecutedAt              time.Time
	StrategyID              string
	EventTicker             string
	Series                  string
	Station                 string
	MarketTicker            string
	Side                    Side
	ContractsFilled         int64
	AvgFillPriceCents       float64
	TotalCostCents          int64
	StrategyEventSpentCents int64
}

// ————————————————————————————————————————————————————————————————————————
// Kalshi REST wire formats
// ————————————————————————————————————————————————————————————————————————
// Field sets follow the Kalshi v2 REST API. Prices are in cents; no-side
// quotes and cap_strike may be absent, so they are pointers.

// RESTEvent is one event from GET /events.
type RESTEvent struct {
	EventTicker  string `json:"event_ticker"`
	SeriesTicker string `json:"series_ticker"`
	Title        string `json:"title"`
	StrikeDate   string `json:"strike_date"`
	CloseTime    string `json:"close_time"`
}

// EventsResponse is the body of GET /events.
type EventsResponse struct {
	Events []RESTEvent `json:"events"`
	Cursor string      `json:"cursor"`
}

// RESTMarket is one market from GET /markets.
type RESTMarket struct {
	Ticker       string   `json:"ticker"`
	EventTicker  string   `json:"event_ticker"`
	Subtitle     string   `json:"subtitle"`
	YesSubTitle  string   `json:"yes_sub_title"`
	Status       string   `json:"status"`
	YesBid       int      `json:"yes_bid"`
	YesAsk       int      `json:"yes_ask"`
	NoBid        *int     `json:"no_bid"`
	NoAsk        *int     `json:"no_ask"`
	LastPrice    int      `json:"last_price"`
	Volume       int64    `json:"volume"`
	OpenInterest int64    `json:"open_interest"`
	CapStrike    *float64 `json:"cap_strike"`
	CloseTime    string   `json:"close_time"`
}

// MarketsResponse is the body of GET /markets.
type MarketsResponse struct {
	Markets []RESTMarket `json:"markets"`
	Cursor  string       `json:"cursor"`
}

// CreateOrderRequest is the body of POST /portfolio/orders (live mode).
// Count and YesPrice/NoPrice express one swept level as an IOC limit order.
type CreateOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // always "buy"
	Side          Side   `json:"side"`
	Count         int64  `json:"count"`
	Type          string `json:"type"` // "limit"
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
	TimeInForce   string `json:"time_in_force,omitempty"` // "immediate_or_cancel"
}

// CreateOrderResponse is the body returned by POST /portfolio/orders.
type CreateOrderResponse struct {
	Order struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	} `json:"order"`
}

// ————————————————————————————————————————————————————————————————————————
// Kalshi WebSocket wire formats
// ————————————————————————————————————————————————————————————————————————
// The client sends numbered command frames; the server responds with typed
// frames carrying a "msg" payload decoded per Type.

// WSCommand is a client→server command frame.
type WSCommand struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"` // "subscribe", "unsubscribe"
	Params WSSubscribeParams `json:"params"`
}

// WSSubscribeParams names the channels and markets for a subscribe command.
type WSSubscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

// WSEnvelope is the generic server→client frame.
type WSEnvelope struct {
	ID   int64           `json:"id,omitempty"`
	SID  int64           `json:"sid,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// PriceLevel is one [price, quantity] pair in a snapshot or delta. Kalshi
// encodes levels as two-element JSON arrays.
type PriceLevel [2]int64

// Price returns the level's price in cents.
func (l PriceLevel) Price() int { return int(l[0]) }

// Qty returns the level's quantity. In a delta, qty <= 0 removes the level.
func (l PriceLevel) Qty() int64 { return l[1] }

// OrderbookSnapshotMsg replaces a market's book entirely.
type OrderbookSnapshotMsg struct {
	MarketTicker string       `json:"market_ticker"`
	Yes          []PriceLevel `json:"yes"`
	No           []PriceLevel `json:"no"`
}

// OrderbookDeltaMsg carries incremental level updates, applied in receive
// order with no coalescing.
type OrderbookDeltaMsg struct {
	MarketTicker string       `json:"market_ticker"`
	Yes          []PriceLevel `json:"yes"`
	No           []PriceLevel `json:"no"`
}

// TickerMsg is a best-bid/ask/last update from the "ticker" channel.
type TickerMsg struct {
	MarketTicker string `json:"market_ticker"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	Price        int    `json:"price"`
	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
}

// WSErrorMsg is the payload of a type=error frame.
type WSErrorMsg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// WSSubscribedMsg is the payload of a type=subscribed frame.
type WSSubscribedMsg struct {
	Channel string `json:"channel"`
	SID     int64  `json:"sid"`
}

// ————————————————————————————————————————————————————————————————————————
// Synoptic WebSocket wire formats
// ————————————————————————————————————————————————————————————————————————

// SynopticFrame is one JSON frame from the Synoptic push feed, discriminated
// by Type: "data" carries observation rows, "auth" reports the token check,
// "metadata" describes the subscribed stations.
type SynopticFrame struct {
	Type    string        `json:"type"`
	Data    []SynopticRow `json:"data,omitempty"`
	Code    string        `json:"code,omitempty"`    // auth frames: "failed" on bad token
	Message string        `json:"message,omitempty"` // auth/metadata detail
}

// SynopticRow is one observation row inside a data frame. Value is decoded
// loosely because the feed occasionally pushes non-numeric sentinels; rows
// that fail numeric parsing are dropped with a warning.
type SynopticRow struct {
	Stid   string `json:"stid"`
	Sensor string `json:"sensor"`
	Date   string `json:"date"` // "2006-01-02 15:04:05", UTC
	Value  any    `json:"value"`
}
