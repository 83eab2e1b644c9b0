package store

import (
	"path/filepath"
	"testing"
	"time"

	"MarketVault/internal/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func dailyBars(symbol string, start time.Time, n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		p := 100.0 + float64(i)
		bars[i] = model.Bar{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Open:      p - 0.5,
			High:      p + 1,
			Low:       p - 1,
			Close:     p,
			Volume:    1000 + int64(i),
			Interval:  model.Interval1d,
		}
	}
	return bars
}

func TestUpsertIdempotence(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := dailyBars("AAPL", start, 5)

	if err := s.UpsertBars(bars); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertBars(bars); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.QueryBars("AAPL", model.Interval1d, nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 bars after double upsert, got %d", len(got))
	}
	for i, b := range got {
		if b.Close != bars[i].Close {
			t.Errorf("bar %d close = %v, want %v", i, b.Close, bars[i].Close)
		}
	}
}

func TestUpsertOverwritesSameKey(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bar := model.Bar{Symbol: "MSFT", Timestamp: ts, Close: 400, Volume: 10, Interval: model.Interval1d}

	if err := s.UpsertBars([]model.Bar{bar}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	bar.Close = 410
	if err := s.UpsertBars([]model.Bar{bar}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := s.QueryBars("MSFT", model.Interval1d, nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(got))
	}
	if got[0].Close != 410 {
		t.Errorf("close = %v, want 410 (overwrite)", got[0].Close)
	}
}

func TestQueryOrderingRegardlessOfInsertOrder(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := dailyBars("CBA.AX", start, 6)

	// Insert out of order, in separate batches.
	if err := s.UpsertBars([]model.Bar{bars[4], bars[1], bars[5]}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertBars([]model.Bar{bars[0], bars[3], bars[2]}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.QueryBars("CBA.AX", model.Interval1d, nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("expected 6 bars, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("bars out of order at %d: %v after %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestRangeFilterInclusive(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertBars(dailyBars("AAPL", start, 10)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	from := start.AddDate(0, 0, 2)
	to := start.AddDate(0, 0, 6)
	got, err := s.QueryBars("AAPL", model.Interval1d, &from, &to)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 bars in [day2, day6], got %d", len(got))
	}
	if !got[0].Timestamp.Equal(from) {
		t.Errorf("first bar = %v, want %v (inclusive start)", got[0].Timestamp, from)
	}
	if !got[len(got)-1].Timestamp.Equal(to) {
		t.Errorf("last bar = %v, want %v (inclusive end)", got[len(got)-1].Timestamp, to)
	}
}

func TestEmptyWindowReturnsEmptyNotError(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertBars(dailyBars("AAPL", start, 3)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	from := start.AddDate(1, 0, 0) // past the newest bar
	got, err := s.QueryBars("AAPL", model.Interval1d, &from, nil)
	if err != nil {
		t.Fatalf("expected no error for empty window, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d bars", len(got))
	}
}

func TestIntervalsDoNotBleed(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	daily := model.Bar{Symbol: "AAPL", Timestamp: ts, Close: 1, Interval: model.Interval1d}
	weekly := model.Bar{Symbol: "AAPL", Timestamp: ts, Close: 2, Interval: model.Interval1wk}
	if err := s.UpsertBars([]model.Bar{daily, weekly}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.QueryBars("AAPL", model.Interval1d, nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Close != 1 {
		t.Errorf("daily query leaked other intervals: %+v", got)
	}
}

func TestDeleteBarsBefore(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertBars(dailyBars("AAPL", start, 10)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cutoff := start.AddDate(0, 0, 4)
	deleted, err := s.DeleteBarsBefore(cutoff)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4 (strictly older than cutoff)", deleted)
	}

	got, err := s.QueryBars("AAPL", model.Interval1d, nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("expected 6 surviving bars, got %d", len(got))
	}
	if got[0].Timestamp.Before(cutoff) {
		t.Errorf("bar older than cutoff survived: %v", got[0].Timestamp)
	}
}

func TestStatsEmptyStore(t *testing.T) {
	s := openTestStore(t)
	st, err := s.Stats()
	if err != nil {
		t.Fatalf("stats on empty store: %v", err)
	}
	if st.TotalBars != 0 || st.UniqueSymbols != 0 || st.TotalBacktests != 0 {
		t.Errorf("expected zero stats, got %+v", st)
	}
	if !st.FirstBar.IsZero() {
		t.Errorf("expected zero FirstBar, got %v", st.FirstBar)
	}
}

func TestStatsPopulated(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertBars(dailyBars("AAPL", start, 5)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertBars(dailyBars("MSFT", start, 5)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalBars != 10 {
		t.Errorf("TotalBars = %d, want 10", st.TotalBars)
	}
	if st.UniqueSymbols != 2 {
		t.Errorf("UniqueSymbols = %d, want 2", st.UniqueSymbols)
	}
	if !st.FirstBar.Equal(start) {
		t.Errorf("FirstBar = %v, want %v", st.FirstBar, start)
	}
	if st.StorageSizeBytes <= 0 {
		t.Errorf("expected positive storage size, got %d", st.StorageSizeBytes)
	}
}

func TestBestBacktestsRanking(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 6, 0)

	for i, sharpe := range []float64{0.5, 2.1, 1.3} {
		_, err := s.InsertBacktest(&model.BacktestResult{
			Symbol:    "AAPL",
			StartDate: start,
			EndDate:   end,
			ModelName: []string{"sma_cross", "momentum", "mean_revert"}[i],
			Sharpe:    sharpe,
		})
		if err != nil {
			t.Fatalf("insert backtest: %v", err)
		}
	}

	got, err := s.BestBacktests("AAPL", "sharpe", 2)
	if err != nil {
		t.Fatalf("best backtests: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ModelName != "momentum" || got[1].ModelName != "mean_revert" {
		t.Errorf("wrong ranking: %s, %s", got[0].ModelName, got[1].ModelName)
	}

	if _, err := s.BestBacktests("AAPL", "close; DROP TABLE bars", 1); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestPredictionOutcomeFill(t *testing.T) {
	s := openTestStore(t)
	id, err := s.InsertPrediction(&model.PredictionRecord{
		Symbol:         "AAPL",
		Timestamp:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ModelName:      "ensemble",
		PredictedPrice: 190,
		PredictedDir:   "up",
		Confidence:     0.7,
	}, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("insert prediction: %v", err)
	}

	if err := s.FillPredictionOutcome(id, 188.5, "down", 1.5); err != nil {
		t.Fatalf("fill outcome: %v", err)
	}
	if err := s.FillPredictionOutcome(id+999, 0, "", 0); err == nil {
		t.Error("expected error for unknown prediction id")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s1.UpsertBars(dailyBars("AAPL", start, 3)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	s1.Close()

	// Re-opening migrates again and must not disturb existing data.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	got, err := s2.QueryBars("AAPL", model.Interval1d, nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 bars to survive reopen, got %d", len(got))
	}
}
