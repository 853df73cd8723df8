package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is sent on REST calls to the exchange.
	DefaultUserAgent = "auction-go/1.0"

	envPrefix = "AMT_"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Feed struct {
		WSURL          string        `yaml:"ws_url"`
		RestURL        string        `yaml:"rest_url"`
		Symbols        []string      `yaml:"symbols"`
		CandleInterval time.Duration `yaml:"candle_interval"`
	} `yaml:"feed"`

	Engine struct {
		TickInterval time.Duration `yaml:"tick_interval"`
		Lookback     time.Duration `yaml:"lookback"`
		MaxWorkers   int           `yaml:"max_workers"`
		StaleAfter   time.Duration `yaml:"stale_after"`
	} `yaml:"engine"`

	Strategy StrategyConfig `yaml:"strategy"`

	Execution struct {
		StartingEquity decimal.Decimal `yaml:"starting_equity"`
		MaxPositions   int             `yaml:"max_positions"`
		QtyStep        decimal.Decimal `yaml:"qty_step"`
	} `yaml:"execution"`

	Kafka struct {
		Enabled  bool     `yaml:"enabled"`
		Brokers  []string `yaml:"brokers"`
		Topic    string   `yaml:"topic"`
		ClientID string   `yaml:"client_id"`
	} `yaml:"kafka"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"api"`

	// resolved holds defaults with each symbol's overrides applied.
	resolved map[string]strategy.Params
}

// StrategyConfig carries the default parameter set and sparse per-symbol
// overrides. An override only names the keys it changes.
type StrategyConfig struct {
	Defaults strategy.Params      `yaml:"defaults"`
	Symbols  map[string]yaml.Node `yaml:"symbols"`
}

// DefaultConfig returns a configuration usable without a file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "auction-go"
	cfg.App.Version = "dev"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Storage.Path = "data/auction.db"
	cfg.Feed.WSURL = "wss://stream.binance.com:9443/stream"
	cfg.Feed.RestURL = "https://api.binance.com"
	cfg.Feed.Symbols = []string{"BTCUSDT"}
	cfg.Feed.CandleInterval = time.Minute
	cfg.Engine.TickInterval = time.Second
	cfg.Engine.MaxWorkers = 4
	cfg.Engine.StaleAfter = 3 * time.Minute
	cfg.Strategy.Defaults = strategy.DefaultParams()
	cfg.Execution.StartingEquity = decimal.NewFromInt(10000)
	cfg.Execution.MaxPositions = 3
	cfg.Execution.QtyStep = decimal.New(1, -4)
	cfg.Kafka.Topic = "auction.signals"
	cfg.Kafka.ClientID = "auction-go"
	cfg.API.Enabled = true
	cfg.API.Addr = ":8080"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다. 빈 경로는 기본값을 사용합니다.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
			}
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &domain.ConfigError{Field: path, Err: err}
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolve folds the feed/engine window settings into the defaults and decodes
// every per-symbol override onto its own copy of them.
func (c *Config) resolve() error {
	if c.Feed.CandleInterval > 0 {
		c.Strategy.Defaults.CandleInterval = c.Feed.CandleInterval
	}
	if c.Engine.Lookback > 0 {
		c.Strategy.Defaults.Lookback = c.Engine.Lookback
	}

	c.resolved = make(map[string]strategy.Params, len(c.Strategy.Symbols))
	for symbol, node := range c.Strategy.Symbols {
		p := c.Strategy.Defaults
		if err := node.Decode(&p); err != nil {
			return &domain.ConfigError{Field: "strategy.symbols." + symbol, Err: err}
		}
		c.resolved[strings.ToUpper(symbol)] = p
	}
	return nil
}

// Params returns the effective parameter set for symbol.
func (c *Config) Params(symbol string) strategy.Params {
	if p, ok := c.resolved[strings.ToUpper(symbol)]; ok {
		return p
	}
	return c.Strategy.Defaults
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
		return &domain.ConfigError{Field: "feed.ws_url", Err: fmt.Errorf("invalid websocket url %q", c.Feed.WSURL)}
	}
	if len(c.Feed.Symbols) == 0 {
		return &domain.ConfigError{Field: "feed.symbols", Err: errors.New("at least one symbol is required")}
	}
	if c.Feed.CandleInterval <= 0 {
		return &domain.ConfigError{Field: "feed.candle_interval", Err: errors.New("must be positive")}
	}
	if c.Engine.TickInterval <= 0 {
		return &domain.ConfigError{Field: "engine.tick_interval", Err: errors.New("must be positive")}
	}
	if c.Engine.MaxWorkers <= 0 {
		return &domain.ConfigError{Field: "engine.max_workers", Err: errors.New("must be positive")}
	}
	if c.Engine.StaleAfter < 0 {
		return &domain.ConfigError{Field: "engine.stale_after", Err: errors.New("must not be negative")}
	}
	if !c.Execution.StartingEquity.IsPositive() {
		return &domain.ConfigError{Field: "execution.starting_equity", Err: errors.New("must be positive")}
	}
	if c.Execution.MaxPositions <= 0 {
		return &domain.ConfigError{Field: "execution.max_positions", Err: errors.New("must be positive")}
	}
	if c.Execution.QtyStep.IsNegative() {
		return &domain.ConfigError{Field: "execution.qty_step", Err: errors.New("must not be negative")}
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return &domain.ConfigError{Field: "kafka", Err: errors.New("brokers and topic are required when enabled")}
	}

	if err := c.Strategy.Defaults.Validate(); err != nil {
		return err
	}
	for symbol, p := range c.resolved {
		if err := p.Validate(); err != nil {
			var ce *domain.ConfigError
			if errors.As(err, &ce) {
				return &domain.ConfigError{Field: "strategy.symbols." + symbol + "." + ce.Field, Err: ce.Err}
			}
			return err
		}
	}
	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(envPrefix + "WS_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := os.Getenv(envPrefix + "REST_URL"); v != "" {
		cfg.Feed.RestURL = v
	}
	if v := os.Getenv(envPrefix + "SYMBOLS"); v != "" {
		cfg.Feed.Symbols = splitList(v)
	}
	if v := os.Getenv(envPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv(envPrefix + "API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ======================================================================================
// ConfigStore
// ======================================================================================

// ConfigStore serves the current configuration and swaps it atomically on
// reload. Readers never see a partially applied file.
type ConfigStore struct {
	path    string
	current atomic.Pointer[Config]

	mu      sync.Mutex
	modTime time.Time
}

// NewConfigStore loads path and returns a store holding it.
func NewConfigStore(path string) (*ConfigStore, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	s := &ConfigStore{path: path}
	s.current.Store(cfg)
	if path != "" {
		if fi, err := os.Stat(path); err == nil {
			s.modTime = fi.ModTime()
		}
	}
	return s, nil
}

// Current returns the active configuration. Callers must not mutate it.
func (s *ConfigStore) Current() *Config {
	return s.current.Load()
}

// Params implements strategy.ParamsSource.
func (s *ConfigStore) Params(symbol string) strategy.Params {
	return s.current.Load().Params(symbol)
}

// Reload re-reads the file. On failure the previous configuration stays
// active and the error is returned.
func (s *ConfigStore) Reload() error {
	cfg, err := LoadConfig(s.path)
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// Watch polls the file modification time every interval and reloads on
// change until ctx is done.
func (s *ConfigStore) Watch(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if s.path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.changed() {
				continue
			}
			if err := s.Reload(); err != nil {
				logger.Warn("Config reload failed, keeping previous", slog.String("path", s.path), slog.Any("error", err))
				continue
			}
			logger.Info("Config reloaded", slog.String("path", s.path))
		}
	}
}

func (s *ConfigStore) changed() bool {
	fi, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if fi.ModTime().Equal(s.modTime) {
		return false
	}
	s.modTime = fi.ModTime()
	return true
}

var _ strategy.ParamsSource = (*ConfigStore)(nil)
