package cfg

import (
	"cmp"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/workflow-pulse/app/collector"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"PostgreSQL connection string (embedded SQLite store is used when empty)"`
	DBPath      string `long:"db-path" env:"DB_PATH" default:"./data/workflows.db" description:"Embedded SQLite database file"`

	// Application configuration
	Port          string   `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	TriggerSecret string   `long:"trigger-secret" env:"TRIGGER_SECRET" description:"Shared secret expected in the X-Trigger-Secret header"`
	AllowedHosts  []string `long:"allowed-hosts" env:"ALLOWED_HOSTS" env-delim:"," default:"*" description:"Host header allowlist (* allows any host)"`
	Countries     []string `long:"countries" env:"COUNTRIES" env-delim:"," default:"US" default:"IN" description:"Country codes covered by scheduled collection"`
	IntervalHours int      `long:"interval-hours" env:"COLLECT_INTERVAL_HOURS" default:"6" description:"Collection interval in hours"`
	SourcesFile   string   `long:"sources-file" env:"SOURCES_FILE" default:"./sources.yml" description:"YAML file overriding source keywords, tables and weights"`
	Collect       string   `long:"collect" choice:"youtube" choice:"forum" choice:"trends" choice:"all" description:"Run a single collection pass for the given source and exit"`

	// Upstream configuration
	YouTubeAPIKey   string `long:"youtube-api-key" env:"YOUTUBE_API_KEY" description:"YouTube Data API key"`
	UpstreamTimeout int    `long:"upstream-timeout" env:"UPSTREAM_TIMEOUT" default:"10" description:"Per-call upstream timeout in seconds"`
	UpstreamPolicy  string `long:"upstream-policy" env:"UPSTREAM_POLICY" default:"fail-fast" choice:"fail-fast" choice:"retry" description:"Failure policy for video platform calls"`

	// Read cache configuration
	RedisAddr string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the read cache (disabled when empty)"`
	CacheTTL  int    `long:"cache-ttl" env:"CACHE_TTL" default:"300" description:"Read cache TTL in seconds"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Workflow Pulse/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses the given command-line arguments on top of the environment.
// A nil config with a nil error means help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DatabaseURL:     raw.DatabaseURL,
		DBPath:          raw.DBPath,
		Port:            raw.Port,
		TriggerSecret:   raw.TriggerSecret,
		AllowedHosts:    trimAll(raw.AllowedHosts),
		Countries:       NormalizeCountries(raw.Countries),
		IntervalHours:   raw.IntervalHours,
		SourcesFile:     raw.SourcesFile,
		Collect:         raw.Collect,
		YouTubeAPIKey:   raw.YouTubeAPIKey,
		UpstreamTimeout: time.Duration(raw.UpstreamTimeout) * time.Second,
		UpstreamPolicy:  raw.UpstreamPolicy,
		RedisAddr:       raw.RedisAddr,
		CacheTTL:        time.Duration(raw.CacheTTL) * time.Second,
		UserAgent:       raw.UserAgent,
		Timezone:        raw.Timezone,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

// NormalizeCountries upper-cases and de-duplicates country codes, dropping blanks.
func NormalizeCountries(countries []string) []string {
	seen := make(map[string]bool, len(countries))
	normalized := make([]string, 0, len(countries))
	for _, c := range countries {
		c = collector.NormalizeCountry(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		normalized = append(normalized, c)
	}
	return normalized
}

func validate(cfg *Cfg) error {
	if cfg.IntervalHours <= 0 {
		return fmt.Errorf("interval hours must be positive")
	}
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive")
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must be non-negative")
	}
	if len(cfg.Countries) == 0 {
		return fmt.Errorf("at least one country is required")
	}
	for _, c := range cfg.Countries {
		if !collector.ValidCountry(c) {
			return fmt.Errorf("invalid country code %q: expected 2 to 8 letters", c)
		}
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
