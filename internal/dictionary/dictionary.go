// Package dictionary implements column-dictionary interning: (column,
// value) pairs are mapped to small dense integer ids, persisted in the
// `column_dictionary` auxiliary table and cached in-memory. It is grounded
// directly on the Python original's loglite/column_dict.py ColumnDictionary
// (load/get_or_create, with the same "first id is 1, new ids are max+1"
// rule).
//
// Both the Writer and the POST /logs handler reach GetOrCreate through
// Store.Insert, so id assignment is serialized by an internal mutex held
// from choosing an id until the entry is cached.
package dictionary

import (
	"context"
	"fmt"
	"sync"
)

// Persister is the subset of Store the dictionary needs to load and persist
// entries. Implemented by *store.Store; declared here to avoid an import
// cycle (store depends on dictionary, not the other way around).
type Persister interface {
	LoadColumnDictionary(ctx context.Context) (<-chan Entry, error)
	InsertColumnDictionaryValue(ctx context.Context, column string, value any, valueID int) error
}

// Entry is one persisted (column, value, value_id) row.
type Entry struct {
	Column  string
	Value   any
	ValueID int
}

// Dictionary is the in-memory column-value interning table.
type Dictionary struct {
	mu     sync.Mutex
	lookup map[string]map[any]int
	store  Persister
}

// Load rebuilds the in-memory lookup from the persisted table.
func Load(ctx context.Context, store Persister) (*Dictionary, error) {
	d := &Dictionary{lookup: make(map[string]map[any]int), store: store}

	entries, err := store.LoadColumnDictionary(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading column dictionary: %w", err)
	}
	for e := range entries {
		col, ok := d.lookup[e.Column]
		if !ok {
			col = make(map[any]int)
			d.lookup[e.Column] = col
		}
		col[normalize(e.Value)] = e.ValueID
	}
	return d, nil
}

// GetOrCreate returns the interned id for (column, value), assigning and
// persisting a new one if this is the first time the pair is seen. It is
// safe for concurrent use: the mutex is held across persistence, so two
// callers can never assign the same id to different values.
func (d *Dictionary) GetOrCreate(ctx context.Context, column string, value any) (int, error) {
	key := normalize(value)

	d.mu.Lock()
	defer d.mu.Unlock()
	col, ok := d.lookup[column]
	if !ok {
		col = make(map[any]int)
		d.lookup[column] = col
	}
	if id, ok := col[key]; ok {
		return id, nil
	}
	nextID := 1
	for _, id := range col {
		if id >= nextID {
			nextID = id + 1
		}
	}

	if err := d.store.InsertColumnDictionaryValue(ctx, column, value, nextID); err != nil {
		return 0, fmt.Errorf("persisting column dictionary entry %s=%v: %w", column, value, err)
	}

	col[key] = nextID
	return nextID, nil
}

// normalize maps a dynamically-typed value onto a comparable key usable as
// a Go map key (float64/int/string/bool all satisfy comparable already;
// this exists mainly to fold numeric types consistently, since JSON
// decoding always yields float64 while a typed caller might pass int).
func normalize(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}
