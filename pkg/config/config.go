package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"SwingScan/pkg/util"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Exchange struct {
		BaseURL        string        `yaml:"base_url"`
		WebSocketURL   string        `yaml:"websocket_url"`
		QuoteAsset     string        `yaml:"quote_asset"`
		MinQuoteVolume float64       `yaml:"min_quote_volume"`
		MaxSymbols     int           `yaml:"max_symbols"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		StreamEnabled  bool          `yaml:"stream_enabled"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	} `yaml:"exchange"`
	RateLimit struct {
		MaxConcurrent    int           `yaml:"max_concurrent"`
		MinDelay         time.Duration `yaml:"min_delay"`
		MaxRetries       int           `yaml:"max_retries"`
		RateLimitBackoff time.Duration `yaml:"ratelimit_backoff"`
		RetryBackoff     time.Duration `yaml:"retry_backoff"`
	} `yaml:"ratelimit"`
	Scanner struct {
		Timeframes    []string      `yaml:"timeframes"`
		Interval      time.Duration `yaml:"interval"`
		CandleLimit   int           `yaml:"candle_limit"`
		SymbolRefresh time.Duration `yaml:"symbol_refresh"`
		HTFConfirm    bool          `yaml:"htf_confirm"`
	} `yaml:"scanner"`
	Detector struct {
		RSIPeriod     int     `yaml:"rsi_period"`
		Oversold      float64 `yaml:"oversold"`
		DeepOversold  float64 `yaml:"deep_oversold"`
		MinImpulsePct float64 `yaml:"min_impulse_pct"`
		Lookback      int     `yaml:"lookback"`
	} `yaml:"detector"`
	Backend struct {
		Type string `yaml:"type"` // kafka, clickhouse, or log
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host        string        `yaml:"host"`
		Port        int           `yaml:"port"`
		Database    string        `yaml:"database"`
		User        string        `yaml:"user"`
		Password    string        `yaml:"password"`
		DialTimeout time.Duration `yaml:"dial_timeout"`
		ReadTimeout time.Duration `yaml:"read_timeout"`
	} `yaml:"clickhouse"`
	Cache struct {
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		HTFTTL time.Duration `yaml:"htf_ttl"`
	} `yaml:"cache"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("EXCHANGE_BASE_URL"); v != "" {
		c.Exchange.BaseURL = v
	}
	if v := os.Getenv("QUOTE_ASSET"); v != "" {
		c.Exchange.QuoteAsset = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Exchange.QuoteAsset == "" {
		c.Exchange.QuoteAsset = "USDT"
	}
	if c.Exchange.RequestTimeout <= 0 {
		c.Exchange.RequestTimeout = 15 * time.Second
	}
	if c.Exchange.ReconnectDelay <= 0 {
		c.Exchange.ReconnectDelay = 5 * time.Second
	}
	if c.RateLimit.MaxConcurrent <= 0 {
		c.RateLimit.MaxConcurrent = 5
	}
	if c.RateLimit.MinDelay <= 0 {
		c.RateLimit.MinDelay = 120 * time.Millisecond
	}
	if c.RateLimit.MaxRetries <= 0 {
		c.RateLimit.MaxRetries = 3
	}
	if c.RateLimit.RateLimitBackoff <= 0 {
		c.RateLimit.RateLimitBackoff = 2 * time.Second
	}
	if c.RateLimit.RetryBackoff <= 0 {
		c.RateLimit.RetryBackoff = 500 * time.Millisecond
	}
	if len(c.Scanner.Timeframes) == 0 {
		c.Scanner.Timeframes = []string{"1h", "4h"}
	}
	if c.Scanner.Interval <= 0 {
		c.Scanner.Interval = 5 * time.Minute
	}
	if c.Scanner.CandleLimit <= 0 {
		c.Scanner.CandleLimit = 100
	}
	if c.Scanner.SymbolRefresh <= 0 {
		c.Scanner.SymbolRefresh = time.Hour
	}
	if c.Detector.RSIPeriod <= 0 {
		c.Detector.RSIPeriod = 14
	}
	if c.Detector.Oversold <= 0 {
		c.Detector.Oversold = 30
	}
	if c.Detector.DeepOversold <= 0 {
		c.Detector.DeepOversold = 20
	}
	if c.Detector.MinImpulsePct <= 0 {
		c.Detector.MinImpulsePct = 5
	}
	if c.Detector.Lookback <= 0 {
		c.Detector.Lookback = 20
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "log"
	}
	if c.Cache.HTFTTL <= 0 {
		c.Cache.HTFTTL = time.Hour
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	switch c.Backend.Type {
	case "kafka", "clickhouse", "log":
	default:
		return fmt.Errorf("backend.type must be 'kafka', 'clickhouse' or 'log', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for kafka backend")
	}
	if c.Backend.Type == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host required for clickhouse backend")
	}
	if c.Detector.DeepOversold >= c.Detector.Oversold {
		return fmt.Errorf("detector.deep_oversold must be below detector.oversold")
	}
	for _, tf := range c.Scanner.Timeframes {
		switch tf {
		case "15m", "1h", "4h", "1d":
		default:
			return fmt.Errorf("scanner.timeframes: unsupported timeframe '%s'", tf)
		}
	}
	return nil
}
