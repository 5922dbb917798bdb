package strategy

import (
	"log/slog"
	"testing"

	"weather-arb/internal/bus"
	"weather-arb/internal/config"
)

func TestManagerBuildsConfiguredStrategies(t *testing.T) {
	t.Parallel()

	b := bus.New(slog.New(slog.DiscardHandler))
	m, err := NewManager([]config.StrategyDef{
		{ID: "ladder-chi", ClassName: "LadderStrategy", Targets: []string{"KXHIGHCHI"}},
		{ID: "ladder-ny", ClassName: "LadderStrategy", Targets: []string{"KXHIGHNY"}},
	}, true, b, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Strategies()) != 2 {
		t.Fatalf("strategies = %d, want 2", len(m.Strategies()))
	}
	if m.Strategies()[0].ID() != "ladder-chi" {
		t.Errorf("first strategy id = %q", m.Strategies()[0].ID())
	}
}

func TestManagerRejectsUnknownClass(t *testing.T) {
	t.Parallel()

	b := bus.New(slog.New(slog.DiscardHandler))
	_, err := NewManager([]config.StrategyDef{
		{ID: "x", ClassName: "NoSuchStrategy"},
	}, true, b, slog.New(slog.DiscardHandler))
	if err == nil {
		t.Fatal("expected error for unknown class name")
	}
}

func TestManagerRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	b := bus.New(slog.New(slog.DiscardHandler))
	_, err := NewManager([]config.StrategyDef{
		{ID: "same", ClassName: "LadderStrategy"},
		{ID: "same", ClassName: "LadderStrategy"},
	}, true, b, slog.New(slog.DiscardHandler))
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestManagerRejectsMissingID(t *testing.T) {
	t.Parallel()

	b := bus.New(slog.New(slog.DiscardHandler))
	_, err := NewManager([]config.StrategyDef{
		{ClassName: "LadderStrategy"},
	}, true, b, slog.New(slog.DiscardHandler))
	if err == nil {
		t.Fatal("expected error for missing id")
	}
}

// The ladder does not consume the exchange ticker channel, so a ladder-only
// deployment skips the subscription.
func TestWantsTicker(t *testing.T) {
	t.Parallel()

	b := bus.New(slog.New(slog.DiscardHandler))
	m, err := NewManager([]config.StrategyDef{
		{ID: "ladder", ClassName: "LadderStrategy"},
	}, true, b, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	if m.WantsTicker() {
		t.Error("ladder-only manager should not want the ticker channel")
	}
}

func TestParamHelpers(t *testing.T) {
	t.Parallel()

	params := map[string]any{"a": 3, "b": 4.0, "c": "nope"}
	if got := intParam(params, "a", 9); got != 3 {
		t.Errorf("int param = %d", got)
	}
	if got := intParam(params, "b", 9); got != 4 {
		t.Errorf("float-typed param = %d", got)
	}
	if got := intParam(params, "c", 9); got != 9 {
		t.Errorf("non-numeric param = %d, want default", got)
	}
	if got := intParam(params, "missing", 9); got != 9 {
		t.Errorf("missing param = %d, want default", got)
	}
	if got := int64Param(params, "a", 9); got != 3 {
		t.Errorf("int64 param = %d", got)
	}
}
