package cache

import (
	"fmt"
	"log"

	"MarketVault/internal/indicator"
	"MarketVault/internal/model"
)

// smaPeriods are the moving-average windows kept warm per series.
var smaPeriods = []int{20, 50, 200}

const (
	rsiPeriod   = 14
	rangeLookup = 252 // ~52 trading weeks
)

// ComputeIndicators derives SMA(20/50/200), RSI(14) and the 52-week
// high/low from the cached bars of (symbol, interval), and upserts them into
// the indicators table stamped with the latest bar's timestamp. A series too
// short for a given indicator skips that indicator with a warning.
func (c *HistoricalCache) ComputeIndicators(symbol string, interval model.Interval) error {
	bars, err := c.store.QueryBars(symbol, interval, nil, nil)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("no cached bars for %s/%s", symbol, interval)
	}
	asOf := bars[len(bars)-1].Timestamp

	for _, period := range smaPeriods {
		v, err := indicator.SMA(bars, period)
		if err != nil {
			log.Printf("[WARN] SMA(%d) for %s/%s: %v", period, symbol, interval, err)
			continue
		}
		if err := c.store.UpsertIndicator(symbol, interval, asOf, "sma", period, v); err != nil {
			return err
		}
	}

	if v, err := indicator.RSI(bars, rsiPeriod); err != nil {
		log.Printf("[WARN] RSI(%d) for %s/%s: %v", rsiPeriod, symbol, interval, err)
	} else if err := c.store.UpsertIndicator(symbol, interval, asOf, "rsi", rsiPeriod, v); err != nil {
		return err
	}

	high, low, err := indicator.HighLow(bars, rangeLookup)
	if err != nil {
		return err
	}
	if err := c.store.UpsertIndicator(symbol, interval, asOf, "range_high", rangeLookup, high); err != nil {
		return err
	}
	return c.store.UpsertIndicator(symbol, interval, asOf, "range_low", rangeLookup, low)
}

// GetIndicator returns the most recent stored value for a derived indicator,
// or (0, false, nil) when none has been computed yet.
func (c *HistoricalCache) GetIndicator(symbol string, interval model.Interval, name string, period int) (float64, bool, error) {
	return c.store.QueryIndicator(symbol, interval, name, period)
}
