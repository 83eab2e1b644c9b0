package model

import "time"

// SeriesMetadata is the per-symbol refresh bookkeeping record.
// LastUpdate records when a refresh was last *attempted*, not whether every
// interval is fresh.
type SeriesMetadata struct {
	Symbol         string     `json:"symbol"`
	LastUpdate     time.Time  `json:"last_update"`
	KnownIntervals []Interval `json:"known_intervals"`
	FirstDate      time.Time  `json:"first_date,omitempty"`
	LastDate       time.Time  `json:"last_date,omitempty"`
	RecordCount    int64      `json:"record_count"`
}

// HasInterval reports whether the interval was fetched at least once.
func (m *SeriesMetadata) HasInterval(iv Interval) bool {
	for _, k := range m.KnownIntervals {
		if k == iv {
			return true
		}
	}
	return false
}
