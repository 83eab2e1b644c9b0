package model

import "time"

// PredictionRecord is an opaque prediction row stored for later evaluation.
// The cache persists and retrieves these; it does not interpret them.
type PredictionRecord struct {
	ID              int64
	Symbol          string
	Timestamp       time.Time
	ModelName       string
	PredictedPrice  float64
	PredictedDir    string // "up" or "down"
	Confidence      float64
	ActualPrice     float64
	ActualDir       string
	AbsError        float64
	OutcomeRecorded bool
}

// BacktestResult is an opaque backtest summary row, append-only.
type BacktestResult struct {
	ID        int64
	Symbol    string
	StartDate time.Time
	EndDate   time.Time
	ModelName string
	Accuracy  float64
	Sharpe    float64
	Drawdown  float64
	Return    float64
	WinRate   float64
	Params    string // serialized parameters, stored verbatim
	CreatedAt time.Time
}

// Statistics is the read-only aggregate snapshot returned for diagnostics.
// All fields are zero values when the store is empty.
type Statistics struct {
	TotalBars        int64
	UniqueSymbols    int64
	FirstBar         time.Time
	LastBar          time.Time
	StorageSizeBytes int64
	TotalBacktests   int64
	TotalPredictions int64
}
