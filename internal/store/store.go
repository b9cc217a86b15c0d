// Package store is the single source of truth for loaded datasets.
//
// Datasets are immutable once registered: the store hands out read-only
// references keyed by opaque handles, so queries need no per-call locking
// beyond resolving the handle. Handles are UUIDs and are never reused; a
// stale handle fails with ErrNotFound instead of aliasing replaced data.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"csvlab/internal/dialect"
	"csvlab/internal/quality"
	"csvlab/pkg/table"
)

// ErrNotFound is returned for handles that were never issued or have been
// unloaded.
var ErrNotFound = errors.New("store: dataset not found")

// Handle is the opaque identifier for one loaded dataset.
type Handle string

// Dataset owns one loaded table with everything derived from it at load
// time. All fields are treated as immutable after Register returns; callers
// must not modify the row slices they read.
type Dataset struct {
	Handle  Handle
	Schema  []table.Column
	Rows    []table.Row
	Report  *quality.Report
	Summary Summary
}

// Summary is the lightweight metadata returned by List and on load.
type Summary struct {
	Handle    Handle          `json:"handle"`
	Path      string          `json:"path"`
	Rows      int             `json:"rows"`
	Columns   int             `json:"columns"`
	SizeBytes int64           `json:"size_bytes"`
	Dialect   dialect.Dialect `json:"dialect"`
	LoadedAt  time.Time       `json:"loaded_at"`
	Score     float64         `json:"score"`
}

// Store maps handles to datasets. The zero value is not usable; construct
// with New.
type Store struct {
	mu   sync.RWMutex
	data map[Handle]*Dataset
}

func New() *Store {
	return &Store{data: make(map[Handle]*Dataset)}
}

// Register adds a dataset under a fresh handle. Loading the same path twice
// yields two independent handles; the store never replaces in place.
func (s *Store) Register(ds *Dataset) Handle {
	h := Handle(uuid.NewString())
	ds.Handle = h
	ds.Summary.Handle = h
	if ds.Summary.LoadedAt.IsZero() {
		ds.Summary.LoadedAt = time.Now().UTC()
	}
	ds.Summary.Rows = len(ds.Rows)
	ds.Summary.Columns = len(ds.Schema)

	s.mu.Lock()
	s.data[h] = ds
	s.mu.Unlock()
	return h
}

// Get resolves a handle to its dataset.
func (s *Store) Get(h Handle) (*Dataset, error) {
	s.mu.RLock()
	ds, ok := s.data[h]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return ds, nil
}

// Schema returns the dataset's column schema.
func (s *Store) Schema(h Handle) ([]table.Column, error) {
	ds, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	return ds.Schema, nil
}

// Unload removes a dataset. Subsequent operations on the handle fail with
// ErrNotFound immediately; queries already holding the dataset reference
// finish against the immutable snapshot they resolved.
func (s *Store) Unload(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[h]; !ok {
		return ErrNotFound
	}
	delete(s.data, h)
	return nil
}

// List returns summaries for all loaded datasets, ordered by load time then
// handle so output is deterministic.
func (s *Store) List() []Summary {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.data))
	for _, ds := range s.data {
		out = append(out, ds.Summary)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoadedAt.Equal(out[j].LoadedAt) {
			return out[i].LoadedAt.Before(out[j].LoadedAt)
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}

// Len reports the number of loaded datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
