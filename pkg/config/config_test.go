package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
environment: test
exchange:
  base_url: https://api.example.com
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Environment != "test" {
		t.Errorf("environment = %q, want test", cfg.Environment)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" || cfg.Logging.Output != "stdout" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Exchange.QuoteAsset != "USDT" {
		t.Errorf("quote asset = %q, want USDT", cfg.Exchange.QuoteAsset)
	}
	if cfg.Exchange.RequestTimeout != 15*time.Second {
		t.Errorf("request timeout = %v", cfg.Exchange.RequestTimeout)
	}
	if cfg.RateLimit.MaxConcurrent != 5 || cfg.RateLimit.MinDelay != 120*time.Millisecond {
		t.Errorf("ratelimit defaults = %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.MaxRetries != 3 || cfg.RateLimit.RateLimitBackoff != 2*time.Second {
		t.Errorf("retry defaults = %+v", cfg.RateLimit)
	}
	if len(cfg.Scanner.Timeframes) != 2 || cfg.Scanner.Timeframes[0] != "1h" || cfg.Scanner.Timeframes[1] != "4h" {
		t.Errorf("scanner timeframes = %v", cfg.Scanner.Timeframes)
	}
	if cfg.Scanner.Interval != 5*time.Minute || cfg.Scanner.CandleLimit != 100 {
		t.Errorf("scanner defaults = %+v", cfg.Scanner)
	}
	if cfg.Detector.RSIPeriod != 14 || cfg.Detector.Oversold != 30 || cfg.Detector.DeepOversold != 20 {
		t.Errorf("detector defaults = %+v", cfg.Detector)
	}
	if cfg.Detector.MinImpulsePct != 5 || cfg.Detector.Lookback != 20 {
		t.Errorf("detector defaults = %+v", cfg.Detector)
	}
	if cfg.Backend.Type != "log" {
		t.Errorf("backend type = %q, want log", cfg.Backend.Type)
	}
	if cfg.Cache.HTFTTL != time.Hour {
		t.Errorf("htf ttl = %v, want 1h", cfg.Cache.HTFTTL)
	}
}

func TestLoadExplicitValuesWin(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
environment: production
server:
  port: 9090
  read_timeout: 10s
exchange:
  base_url: https://api.example.com
  quote_asset: BUSD
  max_symbols: 50
ratelimit:
  max_concurrent: 12
scanner:
  timeframes: ["15m", "1d"]
  interval: 1m
detector:
  rsi_period: 7
  oversold: 25
  deep_oversold: 15
backend:
  type: clickhouse
clickhouse:
  host: ch.internal
  port: 9000
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Exchange.QuoteAsset != "BUSD" || cfg.Exchange.MaxSymbols != 50 {
		t.Errorf("exchange = %+v", cfg.Exchange)
	}
	if cfg.RateLimit.MaxConcurrent != 12 {
		t.Errorf("max concurrent = %d, want 12", cfg.RateLimit.MaxConcurrent)
	}
	if len(cfg.Scanner.Timeframes) != 2 || cfg.Scanner.Timeframes[0] != "15m" {
		t.Errorf("timeframes = %v", cfg.Scanner.Timeframes)
	}
	if cfg.Scanner.Interval != time.Minute {
		t.Errorf("interval = %v, want 1m", cfg.Scanner.Interval)
	}
	if cfg.Detector.RSIPeriod != 7 || cfg.Detector.Oversold != 25 || cfg.Detector.DeepOversold != 15 {
		t.Errorf("detector = %+v", cfg.Detector)
	}
	if cfg.Backend.Type != "clickhouse" || cfg.ClickHouse.Host != "ch.internal" {
		t.Errorf("backend = %+v clickhouse = %+v", cfg.Backend, cfg.ClickHouse)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "environment: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing environment",
			yaml: "exchange:\n  base_url: https://api.example.com\n",
			want: "environment is required",
		},
		{
			name: "missing base url",
			yaml: "environment: test\n",
			want: "exchange.base_url is required",
		},
		{
			name: "unknown backend",
			yaml: minimalYAML + "backend:\n  type: rabbitmq\n",
			want: "backend.type",
		},
		{
			name: "kafka backend without brokers",
			yaml: minimalYAML + "backend:\n  type: kafka\n",
			want: "kafka.brokers required",
		},
		{
			name: "clickhouse backend without host",
			yaml: minimalYAML + "backend:\n  type: clickhouse\n",
			want: "clickhouse.host required",
		},
		{
			name: "deep oversold above oversold",
			yaml: minimalYAML + "detector:\n  oversold: 20\n  deep_oversold: 35\n",
			want: "deep_oversold must be below",
		},
		{
			name: "unsupported timeframe",
			yaml: minimalYAML + "scanner:\n  timeframes: [\"3h\"]\n",
			want: "unsupported timeframe",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want contains %q", err, tc.want)
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("EXCHANGE_BASE_URL", "https://override.example.com")
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("KAFKA_TOPIC", "setups.v2")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Exchange.BaseURL != "https://override.example.com" {
		t.Errorf("base url = %q", cfg.Exchange.BaseURL)
	}
	if cfg.Backend.Type != "kafka" {
		t.Errorf("backend = %q, want kafka", cfg.Backend.Type)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topic != "setups.v2" {
		t.Errorf("topic = %q", cfg.Kafka.Topic)
	}
	if cfg.Cache.Redis.Addr != "redis.internal:6379" {
		t.Errorf("redis addr = %q", cfg.Cache.Redis.Addr)
	}
}
