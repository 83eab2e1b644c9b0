package meta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"MarketVault/internal/model"
)

// Tracker keeps per-symbol refresh bookkeeping in a JSON state file.
// All mutations persist immediately; the file survives process restarts.
type Tracker struct {
	mu       sync.Mutex
	filePath string
	symbols  map[string]*model.SeriesMetadata
}

// NewTracker loads the state file, or starts empty if it doesn't exist.
func NewTracker(filePath string) (*Tracker, error) {
	t := &Tracker{
		filePath: filePath,
		symbols:  make(map[string]*model.SeriesMetadata),
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read metadata state: %w", err)
	}
	if err := json.Unmarshal(data, &t.symbols); err != nil {
		return nil, fmt.Errorf("parse metadata state: %w", err)
	}
	return t, nil
}

// save writes the state file. Caller must hold t.mu.
func (t *Tracker) save() error {
	if dir := filepath.Dir(t.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(t.symbols, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0644)
}

// Get returns a copy of the metadata for a symbol, or (zero, false) when the
// symbol has never been fetched.
func (t *Tracker) Get(symbol string) (model.SeriesMetadata, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.symbols[symbol]
	if !ok {
		return model.SeriesMetadata{}, false
	}
	cp := *m
	cp.KnownIntervals = append([]model.Interval(nil), m.KnownIntervals...)
	return cp, true
}

// Symbols returns all tracked symbols.
func (t *Tracker) Symbols() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.symbols))
	for sym := range t.symbols {
		out = append(out, sym)
	}
	return out
}

// RecordAttempt marks that a refresh was attempted for symbol at the given
// time. LastUpdate only moves forward; a stale clock cannot rewind it.
func (t *Tracker) RecordAttempt(symbol string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.ensure(symbol)
	if at.After(m.LastUpdate) {
		m.LastUpdate = at
	}
	return t.save()
}

// RecordSuccess marks a per-interval fetch success: the interval joins the
// known set and observed date bounds / record counts widen.
func (t *Tracker) RecordSuccess(symbol string, interval model.Interval, first, last time.Time, count int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.ensure(symbol)
	if !m.HasInterval(interval) {
		m.KnownIntervals = append(m.KnownIntervals, interval)
	}
	if m.FirstDate.IsZero() || first.Before(m.FirstDate) {
		m.FirstDate = first
	}
	if last.After(m.LastDate) {
		m.LastDate = last
	}
	m.RecordCount += int64(count)
	return t.save()
}

// Reset clears the refresh bookkeeping for a symbol so the next staleness
// check forces a re-fetch. The symbol stays known.
func (t *Tracker) Reset(symbol string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.symbols[symbol]
	if !ok {
		return nil
	}
	m.LastUpdate = time.Time{}
	m.KnownIntervals = nil
	m.FirstDate = time.Time{}
	m.LastDate = time.Time{}
	m.RecordCount = 0
	return t.save()
}

// ensure returns the metadata record for symbol, creating it if absent.
// Caller must hold t.mu.
func (t *Tracker) ensure(symbol string) *model.SeriesMetadata {
	m, ok := t.symbols[symbol]
	if !ok {
		m = &model.SeriesMetadata{Symbol: symbol}
		t.symbols[symbol] = m
	}
	return m
}
