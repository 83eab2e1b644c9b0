package provider

import (
	"context"
	"sync"
	"time"

	"MarketVault/internal/model"
)

// MockSource returns controllable fixed data for development and testing.
// Bars maps "symbol/interval" to canned results; Errors forces a failure for
// that pair. Pairs absent from both maps get generated bars. Safe for
// concurrent use by the download pool.
type MockSource struct {
	Bars   map[string][]model.Bar
	Errors map[string]error

	mu    sync.Mutex
	calls int
}

func NewMockSource() *MockSource {
	return &MockSource{
		Bars:   make(map[string][]model.Bar),
		Errors: make(map[string]error),
	}
}

func (m *MockSource) Name() string { return "mock" }

// SetBars registers canned bars for a (symbol, interval) pair.
func (m *MockSource) SetBars(symbol string, interval model.Interval, bars []model.Bar) {
	m.Bars[symbol+"/"+string(interval)] = bars
}

// FailWith forces FetchBars to return err for a (symbol, interval) pair.
func (m *MockSource) FailWith(symbol string, interval model.Interval, err error) {
	m.Errors[symbol+"/"+string(interval)] = err
}

// CallCount returns how many times FetchBars has been invoked.
func (m *MockSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockSource) FetchBars(_ context.Context, symbol, _ string, interval model.Interval) ([]model.Bar, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	key := symbol + "/" + string(interval)
	if err, ok := m.Errors[key]; ok {
		return nil, err
	}
	if bars, ok := m.Bars[key]; ok {
		return bars, nil
	}
	return GenerateBars(symbol, interval, 100.0, 5), nil
}

// GenerateBars produces count synthetic daily-spaced bars ending now.
func GenerateBars(symbol string, interval model.Interval, basePrice float64, count int) []model.Bar {
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Symbol:    symbol,
			Timestamp: time.Now().UTC().AddDate(0, 0, -(count - i)).Truncate(24 * time.Hour),
			Open:      p * 0.999,
			High:      p * 1.005,
			Low:       p * 0.995,
			Close:     p,
			Volume:    1000000,
			Interval:  interval,
		}
	}
	return bars
}
