package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when STOCKDASH_CONFIG is unset.
const DefaultPath = "config/stockdash.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stock dashboard.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Logging   Logging   `yaml:"logging"`
	Catalog   Catalog   `yaml:"catalog"`
	Dashboard Dashboard `yaml:"dashboard"`
	Ingest    Ingest    `yaml:"ingest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
	Watchlist string `yaml:"watchlist"`
}

// Logging configures the application logger. When File is set, logs are also
// written to a size-rotated file.
type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Catalog selects the symbols offered by the dashboard. An empty Symbols
// list means every symbol found in the bar store, in sorted order.
type Catalog struct {
	Market  string   `yaml:"market"`
	Symbols []string `yaml:"symbols"`
}

// Dashboard holds presentation defaults.
type Dashboard struct {
	Brand            string        `yaml:"brand"`
	Title            string        `yaml:"title"`
	DefaultRangeDays int           `yaml:"default_range_days"`
	LineDefaults     int           `yaml:"line_defaults"`
	PieDefaults      int           `yaml:"pie_defaults"`
	LoadingPanels    []string      `yaml:"loading_panels"`
	EvalTimeout      time.Duration `yaml:"eval_timeout"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

// Ingest controls how bar history is loaded into the store.
type Ingest struct {
	Schedule        string `yaml:"schedule"`
	StartDate       string `yaml:"start_date"`
	CSVDir          string `yaml:"csv_dir"`
	BatchSize       int    `yaml:"batch_size"`
	MaxWorkers      int    `yaml:"max_workers"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file path, honouring STOCKDASH_CONFIG.
func Path() string {
	if p := os.Getenv("STOCKDASH_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides (including any set
// by a .env file in the working directory), fills defaults and validates.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("STOCKDASH_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("STOCKDASH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	if v := os.Getenv("STOCKDASH_SYMBOLS"); v != "" {
		cfg.Catalog.Symbols = splitList(v)
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8050
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9050
	}
	if c.Alpaca.Feed == "" {
		c.Alpaca.Feed = "iex"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Catalog.Market == "" {
		c.Catalog.Market = "nse"
	}
	d := &c.Dashboard
	if d.Brand == "" {
		d.Brand = "Stock Dashboard ( IT sector )"
	}
	if d.Title == "" {
		d.Title = "Stock Dashboard"
	}
	if d.DefaultRangeDays == 0 {
		d.DefaultRangeDays = 3
	}
	if d.LineDefaults == 0 {
		d.LineDefaults = 2
	}
	if d.PieDefaults == 0 {
		d.PieDefaults = 3
	}
	if d.LoadingPanels == nil {
		d.LoadingPanels = []string{"candlestick", "line"}
	}
	if d.EvalTimeout == 0 {
		d.EvalTimeout = 10 * time.Second
	}
	if d.CacheTTL == 0 {
		d.CacheTTL = 5 * time.Minute
	}
	in := &c.Ingest
	if in.BatchSize == 0 {
		in.BatchSize = 100
	}
	if in.MaxWorkers == 0 {
		in.MaxWorkers = 4
	}
	if in.RateLimitPerMin == 0 {
		in.RateLimitPerMin = 200
	}
	if in.MaxRetries == 0 {
		in.MaxRetries = 3
	}
	for i, s := range c.Catalog.Symbols {
		c.Catalog.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Catalog.Market {
	case "nse", "us":
	default:
		errs = append(errs, fmt.Errorf("catalog.market %q must be nse or us", c.Catalog.Market))
	}
	if c.Dashboard.DefaultRangeDays < 0 {
		errs = append(errs, errors.New("dashboard.default_range_days must not be negative"))
	}
	for _, p := range c.Dashboard.LoadingPanels {
		switch p {
		case "candlestick", "line", "bar", "pie":
		default:
			errs = append(errs, fmt.Errorf("dashboard.loading_panels: unknown panel %q", p))
		}
	}
	if c.Ingest.StartDate != "" {
		if _, err := time.Parse("2006-01-02", c.Ingest.StartDate); err != nil {
			errs = append(errs, fmt.Errorf("ingest.start_date: %w", err))
		}
	}
	seen := make(map[string]bool, len(c.Catalog.Symbols))
	for _, s := range c.Catalog.Symbols {
		if seen[s] {
			errs = append(errs, fmt.Errorf("catalog.symbols: duplicate %q", s))
		}
		seen[s] = true
	}
	return errors.Join(errs...)
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
