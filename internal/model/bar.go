package model

import (
	"fmt"
	"time"
)

// Interval is the sampling granularity of a bar series. Only the values
// declared below are valid; everything else is rejected at the boundary.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval60m Interval = "60m"
	Interval1d  Interval = "1d"
	Interval1wk Interval = "1wk"
	Interval1mo Interval = "1mo"
)

var validIntervals = map[Interval]bool{
	Interval1m:  true,
	Interval5m:  true,
	Interval15m: true,
	Interval30m: true,
	Interval60m: true,
	Interval1d:  true,
	Interval1wk: true,
	Interval1mo: true,
}

// ParseInterval validates a raw interval string.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if !validIntervals[iv] {
		return "", fmt.Errorf("invalid interval %q", s)
	}
	return iv, nil
}

// Valid reports whether the interval is one of the declared constants.
func (i Interval) Valid() bool { return validIntervals[i] }

func (i Interval) String() string { return string(i) }

// DefaultIntervals is the interval set used when a caller doesn't specify
// one: daily plus the intraday granularities worth keeping warm.
func DefaultIntervals() []Interval {
	return []Interval{Interval1d, Interval60m, Interval30m, Interval5m}
}

// Bar represents a single OHLCV candlestick for a symbol at a given
// interval. Identity is (Symbol, Timestamp, Interval); re-storing the same
// key overwrites.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Interval  Interval
}
