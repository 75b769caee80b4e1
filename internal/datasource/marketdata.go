package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"sectorpulse/pkg/models"
)

// sectorETFs maps thematic sectors to their proxy ETF tickers. Unknown
// sectors fall back to the broad-market proxy.
var sectorETFs = map[string]string{
	"semiconductors": "SOXX",
	"biotech":        "XBI",
	"ai":             "BOTZ",
	"defense":        "PPA",
	"blockchain":     "BLOK",
}

// DefaultSectorETF is the broad-market proxy used for unmapped sectors.
const DefaultSectorETF = "SPY"

// TickerForSector resolves a sector name to its proxy ETF. Matching is
// case-insensitive on the normalized sector name.
func TickerForSector(sector string) string {
	key := strings.ToLower(strings.TrimSpace(sector))
	if ticker, ok := sectorETFs[key]; ok {
		return ticker
	}
	// Allow loose names like "AI / robotics" or "semiconductor stocks".
	for name, ticker := range sectorETFs {
		if strings.Contains(key, name) {
			return ticker
		}
	}
	return DefaultSectorETF
}

// MarketData fetches daily price history from the Yahoo Finance chart API.
type MarketData struct {
	baseURL string
	client  *http.Client
	cache   *Cache
	limiter *RateLimiter
}

// MarketDataOption configures the client.
type MarketDataOption func(*MarketData)

// WithMarketDataBaseURL points the client at an alternate endpoint.
func WithMarketDataBaseURL(url string) MarketDataOption {
	return func(m *MarketData) { m.baseURL = strings.TrimRight(url, "/") }
}

// WithMarketDataHTTPClient sets a custom HTTP client.
func WithMarketDataHTTPClient(client *http.Client) MarketDataOption {
	return func(m *MarketData) { m.client = client }
}

// NewMarketData creates a Yahoo Finance market data client.
func NewMarketData(opts ...MarketDataOption) *MarketData {
	m := &MarketData{
		baseURL: "https://query1.finance.yahoo.com",
		client:  HTTPClient,
		cache:   NewCache(15 * time.Minute),
		limiter: NewRateLimiter(5, time.Second), // 5 req/s
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DailyCloses returns the daily closing price series for ticker over the
// trailing lookback window, oldest first. Days without a close are dropped.
func (m *MarketData) DailyCloses(ctx context.Context, ticker string, lookback time.Duration) ([]models.PricePoint, error) {
	cacheKey := "closes:" + ticker
	if cached, ok := m.cache.Get(cacheKey); ok {
		return cached.([]models.PricePoint), nil
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	to := time.Now()
	from := to.Add(-lookback)
	url := fmt.Sprintf(
		"%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		m.baseURL, ticker, from.Unix(), to.Unix(),
	)

	body, _, err := doGet(ctx, m.client, url)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", ticker, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp chartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse chart: %w", err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrDataUnavailable, ticker, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s: empty chart result", ErrDataUnavailable, ticker)
	}

	points := parseClosePoints(resp.Chart.Result[0])
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s: no closes in window", ErrDataUnavailable, ticker)
	}

	m.cache.Set(cacheKey, points)
	return points, nil
}

// --- Yahoo Finance v8 chart API types ---

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func parseClosePoints(result chartResult) []models.PricePoint {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	closes := result.Indicators.Quote[0].Close

	points := make([]models.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // market holiday or missing tick
		}
		points = append(points, models.PricePoint{
			Date:  time.Unix(ts, 0).UTC(),
			Close: *closes[i],
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}

// SMA returns the simple moving average of the trailing window closes.
// It averages the whole series when fewer than window points exist.
func SMA(points []models.PricePoint, window int) float64 {
	if len(points) == 0 || window <= 0 {
		return 0
	}
	start := len(points) - window
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, p := range points[start:] {
		sum += p.Close
	}
	return sum / float64(len(points)-start)
}
