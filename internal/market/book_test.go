package market

import (
	"testing"

	"weather-arb/pkg/types"
)

func levels(pairs ...[2]int64) []types.PriceLevel {
	out := make([]types.PriceLevel, len(pairs))
	for i, p := range pairs {
		out[i] = types.PriceLevel(p)
	}
	return out
}

func TestSnapshotReplaces(t *testing.T) {
	t.Parallel()

	b := NewBook()
	b.ApplySnapshot(levels([2]int64{48, 100}, [2]int64{47, 50}), levels([2]int64{50, 200}))
	b.ApplySnapshot(levels([2]int64{30, 10}), nil)

	got := b.Levels()
	if len(got.Yes) != 1 || got.Yes[30] != 10 {
		t.Errorf("yes side = %v, want only 30:10", got.Yes)
	}
	if len(got.No) != 0 {
		t.Errorf("no side = %v, want empty", got.No)
	}
}

func TestSnapshotDropsNonPositive(t *testing.T) {
	t.Parallel()

	b := NewBook()
	b.ApplySnapshot(levels([2]int64{48, 100}, [2]int64{47, 0}, [2]int64{46, -5}), nil)

	got := b.Levels()
	if len(got.Yes) != 1 || got.Yes[48] != 100 {
		t.Errorf("yes side = %v, want only 48:100", got.Yes)
	}
}

func TestDeltaMonotone(t *testing.T) {
	t.Parallel()

	b := NewBook()
	b.ApplySnapshot(levels([2]int64{48, 100}), nil)

	b.ApplyDelta(levels([2]int64{48, 0}), nil)
	if got := b.Levels(); len(got.Yes) != 0 {
		t.Errorf("after qty=0 delta, yes side = %v, want empty", got.Yes)
	}

	b.ApplyDelta(levels([2]int64{48, 75}), nil)
	if got := b.Levels(); got.Yes[48] != 75 {
		t.Errorf("after qty=75 delta, yes[48] = %d, want 75", got.Yes[48])
	}

	// Delta for an absent level with qty<=0 is a no-op.
	b.ApplyDelta(levels([2]int64{10, -3}), nil)
	if got := b.Levels(); len(got.Yes) != 1 {
		t.Errorf("after negative delta, yes side = %v, want one level", got.Yes)
	}
}

// Re-applying a book's own levels as a snapshot reproduces the book.
func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewBook()
	b.ApplySnapshot(levels([2]int64{48, 100}, [2]int64{47, 50}), levels([2]int64{50, 200}))
	b.ApplyDelta(levels([2]int64{47, 0}, [2]int64{45, 25}), nil)
	before := b.Levels()

	var yes, no []types.PriceLevel
	for p, q := range before.Yes {
		yes = append(yes, types.PriceLevel{int64(p), q})
	}
	for p, q := range before.No {
		no = append(no, types.PriceLevel{int64(p), q})
	}

	b2 := NewBook()
	b2.ApplySnapshot(yes, no)
	after := b2.Levels()

	if len(after.Yes) != len(before.Yes) || len(after.No) != len(before.No) {
		t.Fatalf("round trip changed sizes: %v vs %v", before, after)
	}
	for p, q := range before.Yes {
		if after.Yes[p] != q {
			t.Errorf("yes[%d] = %d, want %d", p, after.Yes[p], q)
		}
	}
	for p, q := range before.No {
		if after.No[p] != q {
			t.Errorf("no[%d] = %d, want %d", p, after.No[p], q)
		}
	}
}

func TestStoreDropsDeltaBeforeSnapshot(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if _, ok := s.ApplyDelta("TKR", levels([2]int64{48, 100}), nil); ok {
		t.Fatal("delta before snapshot should be dropped")
	}

	s.ApplySnapshot("TKR", levels([2]int64{48, 100}), nil)
	book, ok := s.ApplyDelta("TKR", levels([2]int64{47, 50}), nil)
	if !ok {
		t.Fatal("delta after snapshot should apply")
	}
	if book.Yes[48] != 100 || book.Yes[47] != 50 {
		t.Errorf("book = %v, want 48:100 47:50", book.Yes)
	}
}

func TestStoreLevelsCopies(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.ApplySnapshot("TKR", levels([2]int64{48, 100}), nil)

	book, _ := s.Levels("TKR")
	book.Yes[48] = 1

	again, _ := s.Levels("TKR")
	if again.Yes[48] != 100 {
		t.Error("Levels must return a copy, not shared maps")
	}
}

func TestStoreReset(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.ApplySnapshot("TKR", levels([2]int64{48, 100}), nil)
	s.Reset()

	if _, ok := s.Levels("TKR"); ok {
		t.Error("book survived Reset")
	}
	if _, ok := s.ApplyDelta("TKR", levels([2]int64{48, 100}), nil); ok {
		t.Error("delta after Reset should be dropped until a new snapshot")
	}
}
