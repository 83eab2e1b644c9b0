package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"MarketVault/internal/model"
)

// AlphaVantageSource implements Source using the Alpha Vantage REST API.
type AlphaVantageSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewAlphaVantageSource creates a new source with optional proxy support.
func NewAlphaVantageSource(apiKey, proxyURL string) *AlphaVantageSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &AlphaVantageSource{
		BaseURL: "https://www.alphavantage.co",
		APIKey:  apiKey,
		Client:  &http.Client{Transport: transport},
	}
}

func (s *AlphaVantageSource) Name() string { return "alphavantage" }

// avFunction maps an interval to the Alpha Vantage function name and, for
// intraday granularities, the interval query parameter.
func avFunction(interval model.Interval) (function, intraday string, err error) {
	switch interval {
	case model.Interval1d:
		return "TIME_SERIES_DAILY", "", nil
	case model.Interval1wk:
		return "TIME_SERIES_WEEKLY", "", nil
	case model.Interval1mo:
		return "TIME_SERIES_MONTHLY", "", nil
	case model.Interval1m:
		return "TIME_SERIES_INTRADAY", "1min", nil
	case model.Interval5m:
		return "TIME_SERIES_INTRADAY", "5min", nil
	case model.Interval15m:
		return "TIME_SERIES_INTRADAY", "15min", nil
	case model.Interval30m:
		return "TIME_SERIES_INTRADAY", "30min", nil
	case model.Interval60m:
		return "TIME_SERIES_INTRADAY", "60min", nil
	default:
		return "", "", fmt.Errorf("alphavantage: unsupported interval %q", interval)
	}
}

// outputSize maps the provider period token onto Alpha Vantage's two output
// sizes: "compact" (latest 100 points) for short lookbacks, "full" otherwise.
func outputSize(period string) string {
	switch period {
	case "1d", "5d", "1mo", "3mo":
		return "compact"
	default:
		return "full"
	}
}

// avResponse covers the daily/weekly/monthly/intraday envelope. The time
// series key varies by function, so it's decoded as a raw map first.
type avResponse struct {
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
}

func (s *AlphaVantageSource) FetchBars(ctx context.Context, symbol, period string, interval model.Interval) ([]model.Bar, error) {
	function, intraday, err := avFunction(interval)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("function", function)
	q.Set("symbol", symbol)
	q.Set("apikey", s.APIKey)
	q.Set("outputsize", outputSize(period))
	if intraday != "" {
		q.Set("interval", intraday)
	}
	endpoint := fmt.Sprintf("%s/query?%s", s.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alphavantage fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alphavantage read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage: status %d, body: %s", resp.StatusCode, string(body))
	}

	var envelope avResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("alphavantage decode: %w", err)
	}
	if envelope.ErrorMessage != "" {
		// Unknown symbol; no bars to report.
		return nil, nil
	}
	if envelope.Note != "" || envelope.Information != "" {
		return nil, fmt.Errorf("alphavantage: rate limited: %s%s", envelope.Note, envelope.Information)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("alphavantage decode: %w", err)
	}

	// Find the "Time Series ..." key; its exact name varies per function.
	var series map[string]map[string]string
	for key, val := range raw {
		if !strings.Contains(key, "Time Series") {
			continue
		}
		if err := json.Unmarshal(val, &series); err != nil {
			return nil, fmt.Errorf("alphavantage decode series: %w", err)
		}
		break
	}
	if len(series) == 0 {
		return nil, nil
	}

	bars := make([]model.Bar, 0, len(series))
	for stamp, fields := range series {
		ts, err := parseAVTimestamp(stamp)
		if err != nil {
			return nil, fmt.Errorf("alphavantage timestamp %q: %w", stamp, err)
		}
		bar := model.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      avField(fields, "1. open"),
			High:      avField(fields, "2. high"),
			Low:       avField(fields, "3. low"),
			Close:     avField(fields, "4. close"),
			Volume:    int64(avField(fields, "5. volume")),
			Interval:  interval,
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func parseAVTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func avField(fields map[string]string, key string) float64 {
	v, ok := fields[key]
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
