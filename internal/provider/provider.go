package provider

import (
	"context"
	"errors"
	"fmt"

	"MarketVault/internal/model"
)

// Source defines the interface for fetching historical bars from a market
// data provider. Implementations must distinguish "no data for this symbol"
// (empty slice, nil error) from transport or parse failures (non-nil error).
type Source interface {
	FetchBars(ctx context.Context, symbol, period string, interval model.Interval) ([]model.Bar, error)
	Name() string
}

// ErrNoData signals a well-formed response that contained no bars.
// Callers treat it the same as an empty slice but may log it differently.
var ErrNoData = errors.New("no data returned")

// FetchError wraps a per-pair fetch failure with the pair it belongs to.
type FetchError struct {
	Symbol   string
	Interval model.Interval
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s: %v", e.Symbol, e.Interval, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
