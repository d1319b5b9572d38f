package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"SwingScan/internal/domain/models"
	domrepo "SwingScan/internal/domain/repository"
	"SwingScan/internal/service/ratelimit"
	xhttp "SwingScan/pkg/http"
	xlogger "SwingScan/pkg/logger"
	"SwingScan/pkg/util"
)

// RetryPolicy controls fetch retries. Rate-limit rejections back off more
// aggressively than transport errors; both scale linearly with the attempt
// number.
type RetryPolicy struct {
	MaxRetries       int
	RateLimitBackoff time.Duration
	RetryBackoff     time.Duration
}

// ClientConfig configures the exchange REST client.
type ClientConfig struct {
	BaseURL        string
	QuoteAsset     string
	MinQuoteVolume float64
	MaxSymbols     int
	RequestTimeout time.Duration
	Retry          RetryPolicy
}

// Client fetches candle series and symbol metadata from a Binance-style REST
// API. All requests go through the shared limiter; candles are validated and
// converted before they reach the core.
type Client struct {
	cfg     ClientConfig
	httpc   *xhttp.Client
	limiter *ratelimit.Limiter
	log     *xlogger.Logger
	metrics domrepo.Metrics
}

// NewClient creates a new exchange client.
func NewClient(cfg ClientConfig, limiter *ratelimit.Limiter, log *xlogger.Logger, metrics domrepo.Metrics) *Client {
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.RateLimitBackoff <= 0 {
		cfg.Retry.RateLimitBackoff = 2 * time.Second
	}
	if cfg.Retry.RetryBackoff <= 0 {
		cfg.Retry.RetryBackoff = 500 * time.Millisecond
	}
	return &Client{
		cfg:     cfg,
		httpc:   xhttp.NewClient(xhttp.WithBaseURL(cfg.BaseURL), xhttp.WithTimeout(cfg.RequestTimeout)),
		limiter: limiter,
		log:     log,
		metrics: metrics,
	}
}

// FetchCandles retrieves up to `limit` most recent candles for one symbol and
// timeframe, oldest first.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(tf))
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	if err := c.fetch(ctx, "klines", "/api/v3/klines", q, &rows); err != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", symbol, tf, err)
	}
	return parseKlines(rows)
}

// FetchDailyCandles retrieves the daily series used for higher-timeframe
// trend confirmation.
func (c *Client) FetchDailyCandles(ctx context.Context, symbol string) ([]models.Candle, error) {
	return c.FetchCandles(ctx, symbol, domrepo.TF1d, 60)
}

// FetchCandlesBatch fetches candles for many symbols concurrently. One
// symbol's failure never aborts the others: it is logged, counted, and left
// out of the result map.
func (c *Client) FetchCandlesBatch(ctx context.Context, symbols []string, tf domrepo.Timeframe, limit int) map[string][]models.Candle {
	out := make(map[string][]models.Candle, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			candles, err := c.FetchCandles(ctx, symbol, tf, limit)
			if err != nil {
				if c.metrics != nil {
					c.metrics.RecordError("fetch_candles")
				}
				if c.log != nil {
					c.log.Warn("candle fetch failed",
						xlogger.String("symbol", symbol),
						xlogger.String("tf", string(tf)),
						xlogger.Error(err))
				}
				return
			}
			mu.Lock()
			out[symbol] = candles
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return out
}

type ticker24h struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

// EligibleSymbols lists tradable symbols on the configured quote asset with
// sufficient 24h quote volume, highest volume first.
func (c *Client) EligibleSymbols(ctx context.Context) ([]string, error) {
	var tickers []ticker24h
	if err := c.fetch(ctx, "tickers", "/api/v3/ticker/24hr", nil, &tickers); err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}

	type cand struct {
		symbol string
		vol    float64
	}
	cands := make([]cand, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, c.cfg.QuoteAsset) {
			continue
		}
		vol := util.ParseFloat(t.QuoteVolume)
		if vol < c.cfg.MinQuoteVolume {
			continue
		}
		cands = append(cands, cand{symbol: t.Symbol, vol: vol})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].vol > cands[j].vol })

	if c.cfg.MaxSymbols > 0 && len(cands) > c.cfg.MaxSymbols {
		cands = cands[:c.cfg.MaxSymbols]
	}
	out := make([]string, len(cands))
	for i, s := range cands {
		out[i] = s.symbol
	}
	return out, nil
}

// fetch runs one limited, retried GET. The last error is surfaced once
// retries are exhausted.
func (c *Client) fetch(ctx context.Context, kind, path string, q url.Values, dest interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retry.MaxRetries; attempt++ {
		start := time.Now()
		err := c.limiter.Do(ctx, func() error {
			return c.httpc.GetJSON(ctx, path, q, dest)
		})
		if c.metrics != nil {
			c.metrics.RecordFetch(kind, time.Since(start).Seconds())
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}

		backoff := time.Duration(attempt) * c.cfg.Retry.RetryBackoff
		if xhttp.IsRateLimited(err) {
			backoff = time.Duration(attempt) * c.cfg.Retry.RateLimitBackoff
			if c.metrics != nil {
				c.metrics.RecordError("rate_limited")
			}
		}
		if attempt == c.cfg.Retry.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

// parseKlines converts raw kline rows into candles, validating shape. Rows
// arrive as JSON arrays of mixed number/string entries.
func parseKlines(rows [][]json.RawMessage) ([]models.Candle, error) {
	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row %d: want at least 6 fields, got %d", i, len(row))
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("kline row %d: open time: %w", i, err)
		}
		vals := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			var s string
			if err := json.Unmarshal(row[j], &s); err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, j, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, j, err)
			}
			vals[j-1] = v
		}
		out = append(out, models.Candle{
			Timestamp: openMs / 1000,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return out, nil
}

var _ domrepo.CandleSource = (*Client)(nil)
