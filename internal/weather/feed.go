// Package weather ingests the Synoptic 1-minute push feed and publishes
// temperature observations on the bus.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"weather-arb/internal/bus"
	"weather-arb/pkg/types"
)

const (
	reconnectClean = 5 * time.Second
	reconnectError = 10 * time.Second

	obTimeLayout = "2006-01-02 15:04:05"
)

// Feed is one websocket connection to the Synoptic push service. Frames are
// JSON, discriminated by "type": data (observation rows), auth (token
// check), metadata (station descriptions). The service sends data
// unprompted after connect; no client pings are needed.
type Feed struct {
	url    string
	bus    *bus.Bus
	logger *slog.Logger

	// onAuthFailure stops the engine: a rejected token never recovers by
	// reconnecting.
	onAuthFailure func(reason string)
}

// FeedURL builds the push endpoint for a token, station list, and variable
// list.
func FeedURL(token string, stations, vars []string) string {
	q := url.Values{}
	q.Set("units", "english")
	q.Set("stid", strings.Join(stations, ","))
	q.Set("vars", strings.Join(vars, ","))
	return fmt.Sprintf("wss://push.synopticdata.com/feed/%s/?%s", token, q.Encode())
}

// NewFeed builds a feed publishing to the bus. onAuthFailure is invoked at
// most once, when the service rejects the token.
func NewFeed(feedURL string, b *bus.Bus, onAuthFailure func(reason string), logger *slog.Logger) *Feed {
	return &Feed{
		url:           feedURL,
		bus:           b,
		onAuthFailure: onAuthFailure,
		logger:        logger.With("component", "synoptic"),
	}
}

// Run drives the connect/read cycle until ctx is cancelled. Reconnects
// after 5s on a clean close and 10s on an error.
func (f *Feed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := reconnectError
		if err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			wait = reconnectClean
			f.logger.Info("feed closed, reconnecting", "wait", wait)
		} else {
			f.logger.Warn("feed error, reconnecting", "error", err, "wait", wait)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f.logger.Info("connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleFrame(data)
	}
}

// handleFrame decodes one frame. Data rows are guarded individually so one
// bad row never drops its siblings.
func (f *Feed) handleFrame(data []byte) {
	var frame types.SynopticFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		f.logger.Warn("unparseable frame", "error", err)
		return
	}

	switch frame.Type {
	case "data":
		for _, row := range frame.Data {
			f.handleRow(row)
		}

	case "auth":
		if frame.Code == "failed" {
			f.logger.Error("feed authentication failed", "message", frame.Message)
			if f.onAuthFailure != nil {
				f.onAuthFailure("synoptic auth failed: " + frame.Message)
			}
			return
		}
		f.logger.Info("feed authenticated")

	case "metadata":
		f.logger.Info("feed metadata", "message", frame.Message)

	default:
		f.logger.Debug("ignoring frame", "type", frame.Type)
	}
}

func (f *Feed) handleRow(row types.SynopticRow) {
	val, ok := numeric(row.Value)
	if !ok {
		f.logger.Warn("dropping non-numeric observation", "station", row.Stid, "value", row.Value)
		return
	}
	obTime, err := time.ParseInLocation(obTimeLayout, row.Date, time.UTC)
	if err != nil {
		if obTime, err = time.Parse(time.RFC3339, row.Date); err != nil {
			f.logger.Warn("dropping observation with bad timestamp", "station", row.Stid, "date", row.Date)
			return
		}
	}

	f.bus.WeatherObservation.Publish(types.Observation{
		StationID:  row.Stid,
		ValueF:     val,
		ObTime:     obTime.UTC(),
		ReceivedAt: time.Now().UTC(),
	})
}

// numeric coerces a loosely-typed row value to float64. The feed sends
// numbers but occasionally strings.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		parsed, err := strconv.ParseFloat(x, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
