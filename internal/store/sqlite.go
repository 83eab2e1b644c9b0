package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"MarketVault/internal/model"
)

// SQLiteStore persists bars, derived indicators, predictions and backtest
// results in a single SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the SQLite database and runs migrations.
// Migration is idempotent; calling Open on every startup is safe.
func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers don't block on concurrent fetch-writers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol    TEXT    NOT NULL,
			timestamp INTEGER NOT NULL,
			interval  TEXT    NOT NULL,
			open      REAL,
			high      REAL,
			low       REAL,
			close     REAL,
			volume    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, timestamp, interval)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_symbol_ts ON bars(symbol, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_ts ON bars(timestamp)`,

		`CREATE TABLE IF NOT EXISTS indicators (
			symbol    TEXT    NOT NULL,
			timestamp INTEGER NOT NULL,
			interval  TEXT    NOT NULL,
			name      TEXT    NOT NULL,
			period    INTEGER NOT NULL,
			value     REAL,
			PRIMARY KEY (symbol, timestamp, interval, name, period)
		)`,

		`CREATE TABLE IF NOT EXISTS predictions (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol           TEXT    NOT NULL,
			timestamp        INTEGER NOT NULL,
			model_name       TEXT    NOT NULL,
			predicted_price  REAL,
			predicted_dir    TEXT,
			confidence       REAL,
			actual_price     REAL,
			actual_dir       TEXT,
			abs_error        REAL,
			outcome_recorded INTEGER NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_symbol ON predictions(symbol, timestamp)`,

		`CREATE TABLE IF NOT EXISTS backtest_results (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			start_date INTEGER NOT NULL,
			end_date   INTEGER NOT NULL,
			model_name TEXT    NOT NULL,
			accuracy   REAL,
			sharpe     REAL,
			drawdown   REAL,
			return     REAL,
			win_rate   REAL,
			params     TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtests_symbol ON backtest_results(symbol)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// UpsertBars writes a batch of bars in a single transaction, overwriting any
// existing rows with the same (symbol, timestamp, interval) key.
func (s *SQLiteStore) UpsertBars(bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO bars
		(symbol, timestamp, interval, open, high, low, close, volume)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.Symbol, b.Timestamp.Unix(), string(b.Interval),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert bar %s/%s@%d: %w", b.Symbol, b.Interval, b.Timestamp.Unix(), err)
		}
	}
	return tx.Commit()
}

// QueryBars returns the bars for (symbol, interval), ascending by timestamp.
// from/to bound the window inclusively; either may be nil for an open end.
// An empty result is a normal outcome, not an error.
func (s *SQLiteStore) QueryBars(symbol string, interval model.Interval, from, to *time.Time) ([]model.Bar, error) {
	q := `SELECT symbol, timestamp, interval, open, high, low, close, volume
		FROM bars WHERE symbol = ? AND interval = ?`
	args := []interface{}{symbol, string(interval)}
	if from != nil {
		q += ` AND timestamp >= ?`
		args = append(args, from.Unix())
	}
	if to != nil {
		q += ` AND timestamp <= ?`
		args = append(args, to.Unix())
	}
	q += ` ORDER BY timestamp ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var ts int64
		var iv string
		if err := rows.Scan(&b.Symbol, &ts, &iv, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = time.Unix(ts, 0).UTC()
		b.Interval = model.Interval(iv)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// SymbolsWithBars returns the distinct symbols that still have bars stored.
func (s *SQLiteStore) SymbolsWithBars() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT symbol FROM bars`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// DeleteBarsBefore removes all bars older than cutoff. Returns rows deleted.
func (s *SQLiteStore) DeleteBarsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM bars WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete bars: %w", err)
	}
	return res.RowsAffected()
}

// DeletePredictionsBefore removes prediction rows created before cutoff.
func (s *SQLiteStore) DeletePredictionsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM predictions WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete predictions: %w", err)
	}
	return res.RowsAffected()
}

// UpsertIndicator writes one derived indicator value.
func (s *SQLiteStore) UpsertIndicator(symbol string, interval model.Interval, ts time.Time, name string, period int, value float64) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO indicators
		(symbol, timestamp, interval, name, period, value) VALUES (?,?,?,?,?,?)`,
		symbol, ts.Unix(), string(interval), name, period, value)
	if err != nil {
		return fmt.Errorf("upsert indicator %s(%d) for %s: %w", name, period, symbol, err)
	}
	return nil
}

// QueryIndicator returns the most recent stored value for an indicator, or
// (0, false, nil) when none exists.
func (s *SQLiteStore) QueryIndicator(symbol string, interval model.Interval, name string, period int) (float64, bool, error) {
	var v float64
	err := s.db.QueryRow(`SELECT value FROM indicators
		WHERE symbol = ? AND interval = ? AND name = ? AND period = ?
		ORDER BY timestamp DESC LIMIT 1`,
		symbol, string(interval), name, period).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query indicator: %w", err)
	}
	return v, true, nil
}

// InsertPrediction appends a prediction row stamped createdAt and returns
// its id. The caller owns the clock so retention can be tested against a
// simulated one.
func (s *SQLiteStore) InsertPrediction(p *model.PredictionRecord, createdAt time.Time) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO predictions
		(symbol, timestamp, model_name, predicted_price, predicted_dir, confidence, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		p.Symbol, p.Timestamp.Unix(), p.ModelName,
		p.PredictedPrice, p.PredictedDir, p.Confidence, createdAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert prediction: %w", err)
	}
	return res.LastInsertId()
}

// FillPredictionOutcome records the realized price and direction for a
// previously stored prediction.
func (s *SQLiteStore) FillPredictionOutcome(id int64, actualPrice float64, actualDir string, absError float64) error {
	res, err := s.db.Exec(`UPDATE predictions
		SET actual_price = ?, actual_dir = ?, abs_error = ?, outcome_recorded = 1
		WHERE id = ?`, actualPrice, actualDir, absError, id)
	if err != nil {
		return fmt.Errorf("fill prediction outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("prediction %d not found", id)
	}
	return nil
}

// InsertBacktest appends a backtest result row and returns its id.
func (s *SQLiteStore) InsertBacktest(r *model.BacktestResult) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO backtest_results
		(symbol, start_date, end_date, model_name, accuracy, sharpe, drawdown, return, win_rate, params, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.Symbol, r.StartDate.Unix(), r.EndDate.Unix(), r.ModelName,
		r.Accuracy, r.Sharpe, r.Drawdown, r.Return, r.WinRate, r.Params, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert backtest: %w", err)
	}
	return res.LastInsertId()
}

// backtestMetrics whitelists the columns BestBacktests may rank by.
var backtestMetrics = map[string]string{
	"accuracy": "accuracy",
	"sharpe":   "sharpe",
	"drawdown": "drawdown",
	"return":   "return",
	"win_rate": "win_rate",
}

// BestBacktests returns up to limit backtest results for a symbol, ranked
// descending by the named metric. Unknown metrics are rejected.
func (s *SQLiteStore) BestBacktests(symbol, metric string, limit int) ([]model.BacktestResult, error) {
	col, ok := backtestMetrics[metric]
	if !ok {
		return nil, fmt.Errorf("unknown backtest metric %q", metric)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(fmt.Sprintf(`SELECT
		id, symbol, start_date, end_date, model_name, accuracy, sharpe, drawdown, "return", win_rate, params, created_at
		FROM backtest_results WHERE symbol = ? ORDER BY "%s" DESC LIMIT ?`, col),
		symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query backtests: %w", err)
	}
	defer rows.Close()

	var results []model.BacktestResult
	for rows.Next() {
		var r model.BacktestResult
		var start, end, created int64
		if err := rows.Scan(&r.ID, &r.Symbol, &start, &end, &r.ModelName,
			&r.Accuracy, &r.Sharpe, &r.Drawdown, &r.Return, &r.WinRate, &r.Params, &created); err != nil {
			return nil, fmt.Errorf("scan backtest: %w", err)
		}
		r.StartDate = time.Unix(start, 0).UTC()
		r.EndDate = time.Unix(end, 0).UTC()
		r.CreatedAt = time.Unix(created, 0).UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}

// Stats returns aggregate diagnostics. An empty store yields zero values.
func (s *SQLiteStore) Stats() (*model.Statistics, error) {
	st := &model.Statistics{}

	var minTS, maxTS sql.NullInt64
	err := s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT symbol), MIN(timestamp), MAX(timestamp) FROM bars`).
		Scan(&st.TotalBars, &st.UniqueSymbols, &minTS, &maxTS)
	if err != nil {
		return nil, fmt.Errorf("bar stats: %w", err)
	}
	if minTS.Valid {
		st.FirstBar = time.Unix(minTS.Int64, 0).UTC()
	}
	if maxTS.Valid {
		st.LastBar = time.Unix(maxTS.Int64, 0).UTC()
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM backtest_results`).Scan(&st.TotalBacktests); err != nil {
		return nil, fmt.Errorf("backtest stats: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&st.TotalPredictions); err != nil {
		return nil, fmt.Errorf("prediction stats: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		st.StorageSizeBytes = info.Size()
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}
