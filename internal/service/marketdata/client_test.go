package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domrepo "SwingScan/internal/domain/repository"
	"SwingScan/internal/service/ratelimit"
)

type fakeMetrics struct {
	errors int64
}

func (m *fakeMetrics) RecordScanCycle(string, float64) {}
func (m *fakeMetrics) RecordEvaluation(string) {}
func (m *fakeMetrics) RecordSetupEvent(string, string) {}
func (m *fakeMetrics) RecordActiveSetups(string, string, int) {}
func (m *fakeMetrics) RecordFetch(string, float64) {}
func (m *fakeMetrics) RecordError(string)                 { atomic.AddInt64(&m.errors, 1) }
func (m *fakeMetrics) RecordLastPrice(string, float64) {}

func newTestClient(t *testing.T, baseURL string, retry RetryPolicy) *Client {
	t.Helper()
	limiter := ratelimit.New(5, 0)
	t.Cleanup(limiter.Stop)
	return NewClient(ClientConfig{
		BaseURL:        baseURL,
		QuoteAsset:     "USDT",
		MinQuoteVolume: 1000,
		MaxSymbols:     2,
		RequestTimeout: 2 * time.Second,
		Retry:          retry,
	}, limiter, nil, &fakeMetrics{})
}

func klineRow(openMs int64, o, h, l, c, v string) string {
	return fmt.Sprintf(`[%d,"%s","%s","%s","%s","%s",0]`, openMs, o, h, l, c, v)
}

func TestFetchCandlesParsesKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("symbol query = %s", got)
		}
		if got := r.URL.Query().Get("interval"); got != "1h" {
			t.Fatalf("interval query = %s", got)
		}
		fmt.Fprintf(w, "[%s,%s]",
			klineRow(1700000000000, "100", "105", "99", "104", "1234.5"),
			klineRow(1700003600000, "104", "110", "103", "109", "999"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, RetryPolicy{})
	candles, err := client.FetchCandles(context.Background(), "BTCUSDT", domrepo.TF1h, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	first := candles[0]
	if first.Timestamp != 1700000000 {
		t.Fatalf("timestamp = %d, want unix seconds", first.Timestamp)
	}
	if first.Open != 100 || first.High != 105 || first.Low != 99 || first.Close != 104 || first.Volume != 1234.5 {
		t.Fatalf("candle fields wrong: %+v", first)
	}
}

func TestFetchCandlesRejectsMalformedRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[1700000000000,"100","105"]]`) // too few fields
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, RetryPolicy{})
	if _, err := client.FetchCandles(context.Background(), "BTCUSDT", domrepo.TF1h, 1); err == nil {
		t.Fatalf("expected shape validation error")
	}
}

func TestFetchRetriesOnRateLimit(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprintf(w, "[%s]", klineRow(1700000000000, "1", "2", "0.5", "1.5", "10"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, RetryPolicy{
		MaxRetries:       3,
		RateLimitBackoff: 10 * time.Millisecond,
		RetryBackoff:     time.Millisecond,
	})
	candles, err := client.FetchCandles(context.Background(), "BTCUSDT", domrepo.TF1h, 1)
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("got %d candles", len(candles))
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Fatalf("server saw %d calls, want 2", got)
	}
}

func TestFetchSurfacesLastError(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, RetryPolicy{
		MaxRetries:       2,
		RateLimitBackoff: time.Millisecond,
		RetryBackoff:     time.Millisecond,
	})
	if _, err := client.FetchCandles(context.Background(), "BTCUSDT", domrepo.TF1h, 1); err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Fatalf("server saw %d calls, want exactly MaxRetries", got)
	}
}

func TestFetchCandlesBatchIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BADUSDT" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "[%s]", klineRow(1700000000000, "1", "2", "0.5", "1.5", "10"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, RetryPolicy{
		MaxRetries:       1,
		RateLimitBackoff: time.Millisecond,
		RetryBackoff:     time.Millisecond,
	})
	out := client.FetchCandlesBatch(context.Background(), []string{"BTCUSDT", "BADUSDT", "ETHUSDT"}, domrepo.TF1h, 1)
	if len(out) != 2 {
		t.Fatalf("got %d results, want the 2 healthy symbols", len(out))
	}
	if _, ok := out["BADUSDT"]; ok {
		t.Fatalf("failed symbol must be excluded")
	}
	if _, ok := out["BTCUSDT"]; !ok {
		t.Fatalf("healthy symbol missing from batch")
	}
}

func TestEligibleSymbolsFilterSortCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/24hr" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{"symbol":"BTCUSDT","lastPrice":"50000","quoteVolume":"9000"},
			{"symbol":"ETHUSDT","lastPrice":"3000","quoteVolume":"50000"},
			{"symbol":"DOGEUSDT","lastPrice":"0.1","quoteVolume":"2000"},
			{"symbol":"LOWUSDT","lastPrice":"1","quoteVolume":"10"},
			{"symbol":"BTCBUSD","lastPrice":"50000","quoteVolume":"99999"}
		]`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, RetryPolicy{})
	symbols, err := client.EligibleSymbols(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// quote-asset filter drops BTCBUSD, volume floor drops LOWUSDT, cap keeps
	// the top two by quote volume
	want := []string{"ETHUSDT", "BTCUSDT"}
	if len(symbols) != len(want) {
		t.Fatalf("symbols = %v, want %v", symbols, want)
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Fatalf("symbols = %v, want %v", symbols, want)
		}
	}
}
