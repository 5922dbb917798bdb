// Package market maintains the engine's local orderbook state, fed by
// exchange snapshots and deltas.
//
// A Book mirrors one market: two price→quantity maps over cents [1,99].
// The Store owns all books; the exchange read loop is the single writer,
// and every consumer receives a copy taken after application, so nothing
// downstream shares memory with ingest.
package market

import (
	"sync"

	"weather-arb/pkg/types"
)

// Book is the orderbook for a single market ticker. Post-application
// invariant: every stored quantity is strictly positive.
type Book struct {
	yes map[int]int64
	no  map[int]int64
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{yes: make(map[int]int64), no: make(map[int]int64)}
}

// ApplySnapshot replaces the book entirely: after it returns, only levels
// present in the snapshot exist.
func (b *Book) ApplySnapshot(yes, no []types.PriceLevel) {
	b.yes = make(map[int]int64, len(yes))
	b.no = make(map[int]int64, len(no))
	for _, l := range yes {
		if l.Qty() > 0 {
			b.yes[l.Price()] = l.Qty()
		}
	}
	for _, l := range no {
		if l.Qty() > 0 {
			b.no[l.Price()] = l.Qty()
		}
	}
}

// ApplyDelta applies level updates in the order given: qty <= 0 removes
// the level, anything else sets it. No coalescing, no reordering.
func (b *Book) ApplyDelta(yes, no []types.PriceLevel) {
	applySide(b.yes, yes)
	applySide(b.no, no)
}

func applySide(side map[int]int64, levels []types.PriceLevel) {
	for _, l := range levels {
		if l.Qty() <= 0 {
			delete(side, l.Price())
		} else {
			side[l.Price()] = l.Qty()
		}
	}
}

// Levels returns a deep copy of the book.
func (b *Book) Levels() types.BookLevels {
	out := types.BookLevels{
		Yes: make(map[int]int64, len(b.yes)),
		No:  make(map[int]int64, len(b.no)),
	}
	for p, q := range b.yes {
		out.Yes[p] = q
	}
	for p, q := range b.no {
		out.No[p] = q
	}
	return out
}

// Store holds one Book per tracked market ticker.
type Store struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{books: make(map[string]*Book)}
}

// ApplySnapshot replaces the ticker's book (creating it on first sight)
// and returns a copy of the result.
func (s *Store) ApplySnapshot(tk string, yes, no []types.PriceLevel) types.BookLevels {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[tk]
	if !ok {
		b = NewBook()
		s.books[tk] = b
	}
	b.ApplySnapshot(yes, no)
	return b.Levels()
}

// ApplyDelta applies a delta to the ticker's book and returns a copy of the
// result. A delta for a ticker that has never been snapshot is dropped
// (ok=false); the next snapshot resynchronizes.
func (s *Store) ApplyDelta(tk string, yes, no []types.PriceLevel) (types.BookLevels, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[tk]
	if !ok {
		return types.BookLevels{}, false
	}
	b.ApplyDelta(yes, no)
	return b.Levels(), true
}

// Levels returns a copy of the ticker's book, or ok=false if unknown.
func (s *Store) Levels(tk string) (types.BookLevels, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[tk]
	if !ok {
		return types.BookLevels{}, false
	}
	return b.Levels(), true
}

// Reset drops all books. Called when the tracked ticker set changes so
// books for retired markets do not linger.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = make(map[string]*Book)
}
