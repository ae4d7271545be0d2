// Package config handles application configuration from environment variables
// and an optional config file.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileEnv names the environment variable that points at an optional config file.
const FileEnv = "PLACEWATCH_CONFIG"

// Agent kinds.
const (
	AgentBrowser = "browser"
	AgentFeed    = "feed"
)

// Config holds the application configuration.
type Config struct {
	DatabaseDriver string
	DatabasePath   string
	DatabaseURL    string
	LogLevel       string

	Run     RunConfig
	Fetch   FetchConfig
	Retry   RetryConfig
	Agent   AgentConfig
	Enrich  EnrichConfig
	LLM     LLMConfig
	Notify  NotifyConfig
	Metrics MetricsConfig

	ZonesFile string
}

// RunConfig controls one crawl run.
type RunConfig struct {
	MaxDuration            time.Duration
	BatchSize              int
	PaceInterval           time.Duration
	RecycleEvery           int
	MaxConsecutiveFailures int
}

// FetchConfig tunes the early-stop fetcher.
type FetchConfig struct {
	SafetyFloor     int
	Margin          int
	HardCap         int
	StagnationTicks int
	RevealInterval  time.Duration
	TargetTimeout   time.Duration
	RecentMatch     int
	SkipUnchanged   bool
}

// RetryConfig bounds retries of collaborator calls.
type RetryConfig struct {
	Attempts int
	Backoff  time.Duration
}

// AgentConfig selects and configures the fetch agent.
type AgentConfig struct {
	Kind            string
	BrowserRemote   string
	BrowserHeadless bool
}

// EnrichConfig tunes summary refreshes.
type EnrichConfig struct {
	MinItemLength   int
	MinNewItems     int
	SampleSize      int
	SampleMinLength int
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Enabled reports whether an API key is configured.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// NotifyConfig holds Telegram settings.
type NotifyConfig struct {
	TelegramBotToken string
	ChatID           int64
	AllowedUsers     []int64
}

// MetricsConfig holds the optional Pushgateway address.
type MetricsConfig struct {
	PushgatewayURL string
}

var defaults = map[string]any{
	"DATABASE_DRIVER": "sqlite",
	"DATABASE_PATH":   "./data/placewatch.db",
	"DATABASE_URL":    "",
	"LOG_LEVEL":       "info",

	"RUN_MAX_DURATION":             "5h",
	"RUN_BATCH_SIZE":               10000,
	"RUN_PACE_INTERVAL":            "1.5s",
	"RUN_RECYCLE_EVERY":            50,
	"RUN_MAX_CONSECUTIVE_FAILURES": 3,

	"FETCH_SAFETY_FLOOR":     20,
	"FETCH_MARGIN":           10,
	"FETCH_HARD_CAP":         100,
	"FETCH_STAGNATION_TICKS": 8,
	"FETCH_REVEAL_INTERVAL":  "1s",
	"FETCH_TARGET_TIMEOUT":   "60s",
	"FETCH_RECENT_MATCH":     2,
	"FETCH_SKIP_UNCHANGED":   true,

	"RETRY_ATTEMPTS": 3,
	"RETRY_BACKOFF":  "2s",

	"AGENT_KIND":         AgentBrowser,
	"BROWSER_REMOTE_URL": "",
	"BROWSER_HEADLESS":   true,

	"ENRICH_MIN_ITEM_LENGTH":   30,
	"ENRICH_MIN_NEW_ITEMS":     20,
	"ENRICH_SAMPLE_SIZE":       50,
	"ENRICH_SAMPLE_MIN_LENGTH": 20,

	"LLM_BASE_URL": "https://api.deepseek.com/v1",
	"LLM_API_KEY":  "",
	"LLM_MODEL":    "deepseek-chat",
	"LLM_TIMEOUT":  "60s",

	"TELEGRAM_BOT_TOKEN": "",
	"NOTIFY_CHAT_ID":     0,
	"ALLOWED_USERS":      "",
	"PUSHGATEWAY_URL":    "",
	"ZONES_FILE":         "",
}

// Load reads configuration from environment variables. When PLACEWATCH_CONFIG
// names a file, its values sit below the environment and above the defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if path := v.GetString(FileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	allowed, err := parseUserIDs(v.GetString("ALLOWED_USERS"))
	if err != nil {
		return nil, err
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(v.GetString("NOTIFY_CHAT_ID")), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_CHAT_ID: %w", err)
	}

	cfg := &Config{
		DatabaseDriver: strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabasePath:   v.GetString("DATABASE_PATH"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		Run: RunConfig{
			MaxDuration:            v.GetDuration("RUN_MAX_DURATION"),
			BatchSize:              v.GetInt("RUN_BATCH_SIZE"),
			PaceInterval:           v.GetDuration("RUN_PACE_INTERVAL"),
			RecycleEvery:           v.GetInt("RUN_RECYCLE_EVERY"),
			MaxConsecutiveFailures: v.GetInt("RUN_MAX_CONSECUTIVE_FAILURES"),
		},
		Fetch: FetchConfig{
			SafetyFloor:     v.GetInt("FETCH_SAFETY_FLOOR"),
			Margin:          v.GetInt("FETCH_MARGIN"),
			HardCap:         v.GetInt("FETCH_HARD_CAP"),
			StagnationTicks: v.GetInt("FETCH_STAGNATION_TICKS"),
			RevealInterval:  v.GetDuration("FETCH_REVEAL_INTERVAL"),
			TargetTimeout:   v.GetDuration("FETCH_TARGET_TIMEOUT"),
			RecentMatch:     v.GetInt("FETCH_RECENT_MATCH"),
			SkipUnchanged:   v.GetBool("FETCH_SKIP_UNCHANGED"),
		},
		Retry: RetryConfig{
			Attempts: v.GetInt("RETRY_ATTEMPTS"),
			Backoff:  v.GetDuration("RETRY_BACKOFF"),
		},
		Agent: AgentConfig{
			Kind:            strings.ToLower(v.GetString("AGENT_KIND")),
			BrowserRemote:   v.GetString("BROWSER_REMOTE_URL"),
			BrowserHeadless: v.GetBool("BROWSER_HEADLESS"),
		},
		Enrich: EnrichConfig{
			MinItemLength:   v.GetInt("ENRICH_MIN_ITEM_LENGTH"),
			MinNewItems:     v.GetInt("ENRICH_MIN_NEW_ITEMS"),
			SampleSize:      v.GetInt("ENRICH_SAMPLE_SIZE"),
			SampleMinLength: v.GetInt("ENRICH_SAMPLE_MIN_LENGTH"),
		},
		LLM: LLMConfig{
			BaseURL: strings.TrimRight(v.GetString("LLM_BASE_URL"), "/"),
			APIKey:  v.GetString("LLM_API_KEY"),
			Model:   v.GetString("LLM_MODEL"),
			Timeout: v.GetDuration("LLM_TIMEOUT"),
		},
		Notify: NotifyConfig{
			TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
			ChatID:           chatID,
			AllowedUsers:     allowed,
		},
		Metrics: MetricsConfig{
			PushgatewayURL: v.GetString("PUSHGATEWAY_URL"),
		},
		ZonesFile: v.GetString("ZONES_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabasePath == "" {
			errs = append(errs, errors.New("DATABASE_PATH is required for sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if c.Run.MaxDuration <= 0 {
		errs = append(errs, errors.New("RUN_MAX_DURATION must be positive"))
	}
	if c.Run.BatchSize <= 0 {
		errs = append(errs, errors.New("RUN_BATCH_SIZE must be positive"))
	}
	if c.Run.PaceInterval < 0 {
		errs = append(errs, errors.New("RUN_PACE_INTERVAL cannot be negative"))
	}
	if c.Run.MaxConsecutiveFailures <= 0 {
		errs = append(errs, errors.New("RUN_MAX_CONSECUTIVE_FAILURES must be positive"))
	}
	if c.Fetch.HardCap <= 0 || c.Fetch.SafetyFloor < 0 || c.Fetch.Margin < 0 {
		errs = append(errs, errors.New("FETCH_HARD_CAP must be positive and FETCH_SAFETY_FLOOR, FETCH_MARGIN non-negative"))
	}
	if c.Fetch.TargetTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TARGET_TIMEOUT must be positive"))
	}
	if c.Retry.Attempts <= 0 {
		errs = append(errs, errors.New("RETRY_ATTEMPTS must be positive"))
	}
	if c.Agent.Kind != AgentBrowser && c.Agent.Kind != AgentFeed {
		errs = append(errs, fmt.Errorf("unknown AGENT_KIND %q", c.Agent.Kind))
	}
	if c.Enrich.SampleSize <= 0 {
		errs = append(errs, errors.New("ENRICH_SAMPLE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// DatabaseDSN returns the data source for the configured driver.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.Notify.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.Notify.AllowedUsers, userID)
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}
