// Package cache implements the local historical market-data cache: batch
// download orchestration, local reads, staleness-gated refresh, and
// maintenance over the SQLite store and metadata tracker.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"MarketVault/internal/meta"
	"MarketVault/internal/model"
	"MarketVault/internal/provider"
	"MarketVault/internal/store"
)

const (
	// DefaultConcurrency bounds parallel fetches. This is a throttle to
	// respect upstream rate limits, not a performance knob.
	DefaultConcurrency = 5
	// DefaultFetchTimeout bounds one (symbol, interval) fetch.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultStaleAfter is how long cached data stays fresh enough to skip
	// a refresh.
	DefaultStaleAfter = time.Hour
	// refreshPeriod is the lookback window for a light per-symbol refresh,
	// as opposed to a heavy initial download.
	refreshPeriod = "1mo"
)

// Options tunes the cache. Zero fields fall back to the defaults above.
type Options struct {
	Concurrency  int
	FetchTimeout time.Duration
	StaleAfter   time.Duration
}

// HistoricalCache owns the local store of OHLCV bars plus per-symbol
// staleness metadata. Construct one instance at startup and hand it to every
// caller; it is safe for concurrent use.
type HistoricalCache struct {
	store   *store.SQLiteStore
	tracker *meta.Tracker
	source  provider.Source

	concurrency  int
	fetchTimeout time.Duration
	staleAfter   time.Duration

	now func() time.Time // overridable in tests
}

// New assembles a cache from its collaborators.
func New(st *store.SQLiteStore, tr *meta.Tracker, src provider.Source, opts Options) *HistoricalCache {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	return &HistoricalCache{
		store:        st,
		tracker:      tr,
		source:       src,
		concurrency:  opts.Concurrency,
		fetchTimeout: opts.FetchTimeout,
		staleAfter:   opts.StaleAfter,
		now:          time.Now,
	}
}

type fetchJob struct {
	symbol   string
	interval model.Interval
}

type fetchResult struct {
	job   fetchJob
	bars  []model.Bar
	err   error
	empty bool
}

// DownloadHistoricalData fetches bars for every (symbol, interval) pair using
// a bounded worker pool and upserts the successful results. Per-pair failures
// are logged and skipped; they never abort sibling pairs. The returned map
// holds bar counts only for pairs that succeeded with data.
//
// Metadata records an attempt for every requested symbol regardless of
// per-interval outcome. There is no retry here; that's the caller's call.
func (c *HistoricalCache) DownloadHistoricalData(ctx context.Context, symbols []string, period string, intervals []model.Interval) (map[string]map[model.Interval]int, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no symbols given")
	}
	if period == "" {
		period = "1y"
	}
	if len(intervals) == 0 {
		intervals = model.DefaultIntervals()
	}
	for _, iv := range intervals {
		if !iv.Valid() {
			return nil, fmt.Errorf("invalid interval %q", iv)
		}
	}

	jobs := make(chan fetchJob)
	results := make(chan fetchResult)

	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- c.fetchOne(ctx, job, period)
			}
		}()
	}

	go func() {
		for _, sym := range symbols {
			for _, iv := range intervals {
				jobs <- fetchJob{symbol: sym, interval: iv}
			}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	counts := make(map[string]map[model.Interval]int)
	attempted := len(symbols) * len(intervals)
	failed := 0

	for res := range results {
		job := res.job
		switch {
		case res.err != nil:
			failed++
			log.Printf("[WARN] fetch %s/%s failed: %v", job.symbol, job.interval, res.err)
		case res.empty:
			log.Printf("[INFO] no data for %s/%s", job.symbol, job.interval)
		default:
			if err := c.store.UpsertBars(res.bars); err != nil {
				failed++
				log.Printf("[ERROR] store %s/%s: %v", job.symbol, job.interval, err)
				continue
			}
			first := res.bars[0].Timestamp
			last := res.bars[len(res.bars)-1].Timestamp
			if err := c.tracker.RecordSuccess(job.symbol, job.interval, first, last, len(res.bars)); err != nil {
				log.Printf("[WARN] record metadata for %s: %v", job.symbol, err)
			}
			if counts[job.symbol] == nil {
				counts[job.symbol] = make(map[model.Interval]int)
			}
			counts[job.symbol][job.interval] = len(res.bars)
		}
	}

	// An update was attempted for every symbol, whatever the outcome.
	at := c.now()
	for _, sym := range symbols {
		if err := c.tracker.RecordAttempt(sym, at); err != nil {
			log.Printf("[WARN] record attempt for %s: %v", sym, err)
		}
	}

	log.Printf("[INFO] download complete: %d/%d pairs succeeded", attempted-failed, attempted)
	return counts, nil
}

// fetchOne runs a single provider fetch under the per-task timeout.
func (c *HistoricalCache) fetchOne(ctx context.Context, job fetchJob, period string) fetchResult {
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	bars, err := c.source.FetchBars(fctx, job.symbol, period, job.interval)
	if err != nil {
		if errors.Is(err, provider.ErrNoData) {
			return fetchResult{job: job, empty: true}
		}
		return fetchResult{job: job, err: &provider.FetchError{Symbol: job.symbol, Interval: job.interval, Err: err}}
	}
	if len(bars) == 0 {
		return fetchResult{job: job, empty: true}
	}
	return fetchResult{job: job, bars: bars}
}

// GetHistoricalData returns the cached bars for (symbol, interval), ascending
// by timestamp, optionally restricted to the inclusive [from, to] window.
// It never touches the network or mutates metadata; no cached data means an
// empty result, not an error.
func (c *HistoricalCache) GetHistoricalData(symbol string, interval model.Interval, from, to *time.Time) ([]model.Bar, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}
	return c.store.QueryBars(symbol, interval, from, to)
}

// GetBatchData returns cached series per symbol for the window. Symbols with
// no cached bars are omitted from the map.
func (c *HistoricalCache) GetBatchData(symbols []string, from, to *time.Time, interval model.Interval) (map[string][]model.Bar, error) {
	out := make(map[string][]model.Bar)
	for _, sym := range symbols {
		bars, err := c.GetHistoricalData(sym, interval, from, to)
		if err != nil {
			return nil, err
		}
		if len(bars) > 0 {
			out[sym] = bars
		}
	}
	return out, nil
}

// ShouldUpdate reports whether a symbol's cached data is stale enough to
// warrant a network refresh: forced, never fetched, or past the threshold.
func (c *HistoricalCache) ShouldUpdate(symbol string, force bool) bool {
	if force {
		return true
	}
	m, ok := c.tracker.Get(symbol)
	if !ok || m.LastUpdate.IsZero() {
		return true
	}
	return c.now().Sub(m.LastUpdate) > c.staleAfter
}

// UpdateSymbolData performs a light refresh of one symbol across the default
// interval set if the staleness policy calls for it. Returns false when the
// data was fresh and the refresh was skipped.
func (c *HistoricalCache) UpdateSymbolData(ctx context.Context, symbol string, force bool) (bool, error) {
	if !c.ShouldUpdate(symbol, force) {
		log.Printf("[INFO] %s is fresh, skipping update", symbol)
		return false, nil
	}
	_, err := c.DownloadHistoricalData(ctx, []string{symbol}, refreshPeriod, model.DefaultIntervals())
	if err != nil {
		return false, err
	}
	return true, nil
}

// CleanupOldData deletes bars and prediction rows older than daysToKeep days.
// Symbols whose bars were fully pruned get their metadata reset so the next
// access re-fetches instead of trusting a stale LastUpdate.
func (c *HistoricalCache) CleanupOldData(daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		return 0, fmt.Errorf("daysToKeep must be positive, got %d", daysToKeep)
	}
	cutoff := c.now().AddDate(0, 0, -daysToKeep)

	deleted, err := c.store.DeleteBarsBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if _, err := c.store.DeletePredictionsBefore(cutoff); err != nil {
		return deleted, err
	}

	surviving, err := c.store.SymbolsWithBars()
	if err != nil {
		return deleted, err
	}
	remaining := make(map[string]bool, len(surviving))
	for _, sym := range surviving {
		remaining[sym] = true
	}
	for _, sym := range c.tracker.Symbols() {
		if remaining[sym] {
			continue
		}
		if err := c.tracker.Reset(sym); err != nil {
			log.Printf("[WARN] reset metadata for %s: %v", sym, err)
		}
	}

	log.Printf("[INFO] pruned %d bars older than %d days", deleted, daysToKeep)
	return deleted, nil
}

// GetDataStatistics returns aggregate diagnostics; an empty store yields
// zeros rather than an error.
func (c *HistoricalCache) GetDataStatistics() (*model.Statistics, error) {
	return c.store.Stats()
}

// GetMetadata returns the refresh bookkeeping for a symbol, if any.
func (c *HistoricalCache) GetMetadata(symbol string) (model.SeriesMetadata, bool) {
	return c.tracker.Get(symbol)
}

// StoreBacktestResult persists one backtest summary row.
func (c *HistoricalCache) StoreBacktestResult(r *model.BacktestResult) (int64, error) {
	return c.store.InsertBacktest(r)
}

// GetBestModels returns backtest results for a symbol ranked by metric.
func (c *HistoricalCache) GetBestModels(symbol, metric string, limit int) ([]model.BacktestResult, error) {
	return c.store.BestBacktests(symbol, metric, limit)
}

// StorePrediction persists one prediction row.
func (c *HistoricalCache) StorePrediction(p *model.PredictionRecord) (int64, error) {
	return c.store.InsertPrediction(p, c.now())
}

// FillPredictionOutcome records the realized outcome for a prediction.
func (c *HistoricalCache) FillPredictionOutcome(id int64, actualPrice float64, actualDir string, absError float64) error {
	return c.store.FillPredictionOutcome(id, actualPrice, actualDir, absError)
}
