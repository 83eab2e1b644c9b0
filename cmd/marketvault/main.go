package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"MarketVault/internal/cache"
	"MarketVault/internal/config"
	"MarketVault/internal/meta"
	"MarketVault/internal/model"
	"MarketVault/internal/provider"
	"MarketVault/internal/scheduler"
	"MarketVault/internal/store"

	"github.com/spf13/cobra"
)

var (
	configPath string

	symbolsFlag   string
	periodFlag    string
	intervalsFlag string
	intervalFlag  string
	fromFlag      string
	toFlag        string
	forceFlag     bool
	daysFlag      int
	metricFlag    string
	limitFlag     int
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	rootCmd := &cobra.Command{
		Use:   "marketvault",
		Short: "Local historical market-data cache",
		Long:  "MarketVault maintains a local SQLite cache of OHLCV bars per (symbol, interval), with batch download, staleness-gated refresh, and retention pruning.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")

	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Batch-download bars for a set of symbols and intervals",
		RunE:  runDownload,
	}
	downloadCmd.Flags().StringVar(&symbolsFlag, "symbols", "", "comma-separated symbols (defaults to configured set)")
	downloadCmd.Flags().StringVar(&periodFlag, "period", "1y", "provider lookback token, e.g. 5d, 1mo, 1y, max")
	downloadCmd.Flags().StringVar(&intervalsFlag, "intervals", "", "comma-separated intervals (defaults to 1d,60m,30m,5m)")

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Print cached bars for one symbol",
		RunE:  runQuery,
	}
	queryCmd.Flags().StringVar(&symbolsFlag, "symbol", "", "symbol to query")
	queryCmd.Flags().StringVar(&intervalFlag, "interval", "1d", "bar interval")
	queryCmd.Flags().StringVar(&fromFlag, "from", "", "window start (YYYY-MM-DD)")
	queryCmd.Flags().StringVar(&toFlag, "to", "", "window end (YYYY-MM-DD)")
	queryCmd.MarkFlagRequired("symbol")

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh one symbol if its cache is stale",
		RunE:  runUpdate,
	}
	updateCmd.Flags().StringVar(&symbolsFlag, "symbol", "", "symbol to refresh")
	updateCmd.Flags().BoolVar(&forceFlag, "force", false, "refresh even if fresh")
	updateCmd.MarkFlagRequired("symbol")

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete bars and predictions older than a retention window",
		RunE:  runPrune,
	}
	pruneCmd.Flags().IntVar(&daysFlag, "days", 365, "days of data to keep")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics",
		RunE:  runStats,
	}

	bestCmd := &cobra.Command{
		Use:   "best-models",
		Short: "Print stored backtest results ranked by a metric",
		RunE:  runBestModels,
	}
	bestCmd.Flags().StringVar(&symbolsFlag, "symbol", "", "symbol to rank")
	bestCmd.Flags().StringVar(&metricFlag, "metric", "sharpe", "ranking metric: accuracy, sharpe, drawdown, return, win_rate")
	bestCmd.Flags().IntVar(&limitFlag, "limit", 10, "max results")
	bestCmd.MarkFlagRequired("symbol")

	indicatorsCmd := &cobra.Command{
		Use:   "indicators",
		Short: "Compute and store derived indicators from cached bars",
		RunE:  runIndicators,
	}
	indicatorsCmd.Flags().StringVar(&symbolsFlag, "symbol", "", "symbol to compute")
	indicatorsCmd.Flags().StringVar(&intervalFlag, "interval", "1d", "bar interval")
	indicatorsCmd.MarkFlagRequired("symbol")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic refresh daemon",
		RunE:  runServe,
	}

	rootCmd.AddCommand(downloadCmd, queryCmd, updateCmd, pruneCmd, statsCmd, bestCmd, indicatorsCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup wires config -> store -> tracker -> provider -> cache.
func setup() (*config.Config, *cache.HistoricalCache, func(), error) {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("config validation: %w", err)
	}

	st, err := store.Open(cfg.Database.SQLitePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	tracker, err := meta.NewTracker(cfg.Database.MetaFile)
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("init metadata tracker: %w", err)
	}

	var src provider.Source
	if cfg.DataSource.Provider == "alphavantage" {
		src = provider.NewAlphaVantageSource(cfg.DataSource.APIKey, cfg.Proxy)
	} else {
		src = provider.NewYahooSource(cfg.Proxy)
	}
	log.Printf("[INFO] data source: %s", src.Name())

	c := cache.New(st, tracker, src, cache.Options{
		Concurrency:  cfg.Download.Concurrency,
		FetchTimeout: time.Duration(cfg.Download.FetchTimeout),
		StaleAfter:   time.Duration(cfg.Download.StaleAfter),
	})
	return cfg, c, func() { st.Close() }, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntervals(s string) ([]model.Interval, error) {
	var out []model.Interval
	for _, raw := range splitList(s) {
		iv, err := model.ParseInterval(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	t = t.UTC()
	return &t, nil
}

func runDownload(cmd *cobra.Command, _ []string) error {
	cfg, c, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	symbols := splitList(symbolsFlag)
	if len(symbols) == 0 {
		symbols = cfg.DataSource.Symbols
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols: pass --symbols or configure data_source.symbols")
	}
	intervals, err := parseIntervals(intervalsFlag)
	if err != nil {
		return err
	}

	counts, err := c.DownloadHistoricalData(cmd.Context(), symbols, periodFlag, intervals)
	if err != nil {
		return err
	}
	for sym, perInterval := range counts {
		for iv, n := range perInterval {
			fmt.Printf("%s\t%s\t%d bars\n", sym, iv, n)
		}
	}
	return nil
}

func runQuery(_ *cobra.Command, _ []string) error {
	_, c, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	iv, err := model.ParseInterval(intervalFlag)
	if err != nil {
		return err
	}
	from, err := parseDate(fromFlag)
	if err != nil {
		return err
	}
	to, err := parseDate(toFlag)
	if err != nil {
		return err
	}

	bars, err := c.GetHistoricalData(symbolsFlag, iv, from, to)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		fmt.Println("no cached data; run `marketvault download` first")
		return nil
	}
	for _, b := range bars {
		fmt.Printf("%s\t%.4f\t%.4f\t%.4f\t%.4f\t%d\n",
			b.Timestamp.Format("2006-01-02 15:04"), b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	return nil
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	_, c, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	updated, err := c.UpdateSymbolData(cmd.Context(), symbolsFlag, forceFlag)
	if err != nil {
		return err
	}
	if updated {
		fmt.Printf("%s refreshed\n", symbolsFlag)
	} else {
		fmt.Printf("%s is fresh, skipped\n", symbolsFlag)
	}
	return nil
}

func runPrune(_ *cobra.Command, _ []string) error {
	_, c, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	deleted, err := c.CleanupOldData(daysFlag)
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d bars older than %d days\n", deleted, daysFlag)
	return nil
}

func runStats(_ *cobra.Command, _ []string) error {
	_, c, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := c.GetDataStatistics()
	if err != nil {
		return err
	}
	fmt.Printf("bars:        %d\n", st.TotalBars)
	fmt.Printf("symbols:     %d\n", st.UniqueSymbols)
	if !st.FirstBar.IsZero() {
		fmt.Printf("date range:  %s .. %s\n", st.FirstBar.Format("2006-01-02"), st.LastBar.Format("2006-01-02"))
	}
	fmt.Printf("db size:     %d bytes\n", st.StorageSizeBytes)
	fmt.Printf("backtests:   %d\n", st.TotalBacktests)
	fmt.Printf("predictions: %d\n", st.TotalPredictions)
	return nil
}

func runBestModels(_ *cobra.Command, _ []string) error {
	_, c, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := c.GetBestModels(symbolsFlag, metricFlag, limitFlag)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s\t%s\tacc=%.3f sharpe=%.3f dd=%.3f ret=%.3f win=%.3f\n",
			r.ModelName, r.Symbol, r.Accuracy, r.Sharpe, r.Drawdown, r.Return, r.WinRate)
	}
	return nil
}

func runIndicators(_ *cobra.Command, _ []string) error {
	_, c, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	iv, err := model.ParseInterval(intervalFlag)
	if err != nil {
		return err
	}
	if err := c.ComputeIndicators(symbolsFlag, iv); err != nil {
		return err
	}

	for _, ind := range []struct {
		name   string
		period int
	}{
		{"sma", 20}, {"sma", 50}, {"sma", 200},
		{"rsi", 14},
		{"range_high", 252}, {"range_low", 252},
	} {
		v, ok, err := c.GetIndicator(symbolsFlag, iv, ind.name, ind.period)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("%s(%d)\t%.4f\n", ind.name, ind.period, v)
		}
	}
	return nil
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, c, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if len(cfg.DataSource.Symbols) == 0 {
		return fmt.Errorf("no symbols configured: set data_source.symbols")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(ctx, c, cfg.DataSource.Symbols)
	if err := sched.Register(cfg.Schedule.RefreshCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing refresh now")
		go sched.RunNow()
	}

	log.Println("[INFO] MarketVault refresh daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	return nil
}
