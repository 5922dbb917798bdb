// Package sink persists executed fills to an append-only CSV plus a
// per-day columnar file. Writes are buffered and flushed periodically and
// on shutdown; the sink is never on the trading path.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"weather-arb/pkg/types"
)

var csvHeader = []string{
	"execution_timestamp_utc", "strategy_id", "event_ticker", "series",
	"station", "market_ticker", "side", "contracts_filled",
	"avg_fill_price_cents", "total_cost_cents", "strategy_event_spent_cents",
}

// fillRow is the columnar-file schema, mirroring the CSV columns.
type fillRow struct {
	ExecutionTimestampUTC   string  `parquet:"execution_timestamp_utc"`
	StrategyID              string  `parquet:"strategy_id"`
	EventTicker             string  `parquet:"event_ticker"`
	Series                  string  `parquet:"series"`
	Station                 string  `parquet:"station"`
	MarketTicker            string  `parquet:"market_ticker"`
	Side                    string  `parquet:"side"`
	ContractsFilled         int64   `parquet:"contracts_filled"`
	AvgFillPriceCents       float64 `parquet:"avg_fill_price_cents"`
	TotalCostCents          int64   `parquet:"total_cost_cents"`
	StrategyEventSpentCents int64   `parquet:"strategy_event_spent_cents"`
}

// FillWriter appends fills to data_dir/fills.csv and to
// data_dir/fills_YYYYMMDD.parquet, rolling the columnar file at each UTC
// day boundary.
type FillWriter struct {
	dataDir string
	logger  *slog.Logger

	mu      sync.Mutex
	csvFile *os.File
	csvW    *csv.Writer

	pqDay  string // "20060102" of the open columnar file
	pqFile *os.File
	pqW    *parquet.GenericWriter[fillRow]
}

// NewFillWriter opens (or creates) the CSV, writing the header on a fresh
// file. The columnar file opens lazily on the first fill of each day.
func NewFillWriter(dataDir string, logger *slog.Logger) (*FillWriter, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, "fills.csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open fills csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat fills csv: %w", err)
	}

	w := &FillWriter{
		dataDir: dataDir,
		logger:  logger.With("component", "fill_sink"),
		csvFile: f,
		csvW:    csv.NewWriter(f),
	}
	if info.Size() == 0 {
		if err := w.csvW.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.csvW.Flush()
	}
	return w, nil
}

// Append writes one fill to both stores. The CSV is flushed per record so a
// crash loses at most buffered columnar rows.
func (w *FillWriter) Append(fill types.Fill) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := fill.ExecutedAt.UTC().Format(time.RFC3339)
	avg := decimal.NewFromFloat(fill.AvgFillPriceCents).StringFixed(2)

	record := []string{
		ts,
		fill.StrategyID,
		fill.EventTicker,
		fill.Series,
		fill.Station,
		fill.MarketTicker,
		string(fill.Side),
		strconv.FormatInt(fill.ContractsFilled, 10),
		avg,
		strconv.FormatInt(fill.TotalCostCents, 10),
		strconv.FormatInt(fill.StrategyEventSpentCents, 10),
	}
	if err := w.csvW.Write(record); err != nil {
		return fmt.Errorf("append csv: %w", err)
	}
	w.csvW.Flush()
	if err := w.csvW.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	if err := w.appendColumnar(fill, ts); err != nil {
		// The CSV row landed; the columnar copy is best-effort.
		w.logger.Error("columnar append failed", "error", err)
	}
	return nil
}

func (w *FillWriter) appendColumnar(fill types.Fill, ts string) error {
	day := fill.ExecutedAt.UTC().Format("20060102")
	if day != w.pqDay {
		if err := w.rollColumnar(day); err != nil {
			return err
		}
	}

	_, err := w.pqW.Write([]fillRow{{
		ExecutionTimestampUTC:   ts,
		StrategyID:              fill.StrategyID,
		EventTicker:             fill.EventTicker,
		Series:                  fill.Series,
		Station:                 fill.Station,
		MarketTicker:            fill.MarketTicker,
		Side:                    string(fill.Side),
		ContractsFilled:         fill.ContractsFilled,
		AvgFillPriceCents:       fill.AvgFillPriceCents,
		TotalCostCents:          fill.TotalCostCents,
		StrategyEventSpentCents: fill.StrategyEventSpentCents,
	}})
	return err
}

// rollColumnar closes the previous day's file and opens the new day's. A
// restart on the same day gets a fresh timestamped file rather than
// appending to a closed one.
func (w *FillWriter) rollColumnar(day string) error {
	w.closeColumnarLocked()

	path := filepath.Join(w.dataDir, "fills_"+day+".parquet")
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(w.dataDir,
			fmt.Sprintf("fills_%s_%s.parquet", day, time.Now().UTC().Format("150405")))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create columnar file: %w", err)
	}
	w.pqDay = day
	w.pqFile = f
	w.pqW = parquet.NewGenericWriter[fillRow](f)
	w.logger.Info("columnar file opened", "path", path)
	return nil
}

func (w *FillWriter) closeColumnarLocked() {
	if w.pqW != nil {
		if err := w.pqW.Close(); err != nil {
			w.logger.Error("columnar close failed", "error", err)
		}
		w.pqW = nil
	}
	if w.pqFile != nil {
		w.pqFile.Close()
		w.pqFile = nil
	}
	w.pqDay = ""
}

// Flush pushes buffered columnar rows into a row group on disk.
func (w *FillWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csvW.Flush()
	if w.pqW != nil {
		if err := w.pqW.Flush(); err != nil {
			w.logger.Error("columnar flush failed", "error", err)
		}
	}
}

// Run flushes on the given interval until ctx ends.
func (w *FillWriter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Flush()
		}
	}
}

// Close flushes and closes both stores. Call once, on shutdown.
func (w *FillWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.csvW.Flush()
	err := w.csvW.Error()
	if cerr := w.csvFile.Close(); err == nil {
		err = cerr
	}
	w.closeColumnarLocked()
	return err
}
