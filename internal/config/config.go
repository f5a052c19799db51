package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrConfigInvalid marks configuration the engine refuses to start with,
// such as misordered risk thresholds.
var ErrConfigInvalid = errors.New("config invalid")

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Scorer   ScorerConfig
	Safety   SafetyConfig
	Cache    CacheConfig
	Batch    BatchConfig
	Alerts   AlertConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type AuthConfig struct {
	JWTSecret string
}

type ScorerConfig struct {
	OpenAIKey      string
	AnthropicKey   string
	AnthropicModel string
}

// SafetyConfig holds the thresholds and flags that drive one analysis call.
// Instances are immutable once loaded; ReloadConfig on the engine swaps the
// whole snapshot and bumps Version so cache fingerprints miss naturally.
type SafetyConfig struct {
	Version             int64
	ToxicityThreshold   float64
	HighRiskThreshold   float64
	CriticalThreshold   float64
	StrictMode          bool
	NotifyParentsOnRisk bool
	MaxProcessingTime   time.Duration
	MaxInputLength      int
	CombineRule         string // "max" or "weighted", within-layer combination
	RepetitionTrigger   int    // flagged-topic recurrences in the history window
	HistoryWindow       int    // turns of history considered
	SessionTurnCeiling  int
	PatternsPath        string // optional JSON override for age-banded patterns

	// AgeBandOverrides shifts the three thresholds for a named age band.
	// Negative deltas make a band stricter.
	AgeBandOverrides map[string]ThresholdDelta
}

type ThresholdDelta struct {
	Toxicity float64
	HighRisk float64
	Critical float64
}

// ThresholdsFor returns the effective thresholds for a band, applying any
// override and clamping into [0,1].
func (c *SafetyConfig) ThresholdsFor(band string) (toxicity, highRisk, critical float64) {
	toxicity, highRisk, critical = c.ToxicityThreshold, c.HighRiskThreshold, c.CriticalThreshold
	if d, ok := c.AgeBandOverrides[band]; ok {
		toxicity = clamp01(toxicity + d.Toxicity)
		highRisk = clamp01(highRisk + d.HighRisk)
		critical = clamp01(critical + d.Critical)
	}
	return toxicity, highRisk, critical
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type CacheConfig struct {
	TTL      time.Duration
	Capacity int
}

type BatchConfig struct {
	Workers int
}

// AlertConfig points at the guardian dashboard webhook. Empty URL
// disables parent alert delivery.
type AlertConfig struct {
	ParentWebhookURL    string
	ParentWebhookSecret string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	toxicity, err := getEnvFloat("SAFETY_TOXICITY_THRESHOLD", 0.3)
	if err != nil {
		return nil, fmt.Errorf("invalid SAFETY_TOXICITY_THRESHOLD: %w", err)
	}

	highRisk, err := getEnvFloat("SAFETY_HIGH_RISK_THRESHOLD", 0.6)
	if err != nil {
		return nil, fmt.Errorf("invalid SAFETY_HIGH_RISK_THRESHOLD: %w", err)
	}

	critical, err := getEnvFloat("SAFETY_CRITICAL_THRESHOLD", 0.8)
	if err != nil {
		return nil, fmt.Errorf("invalid SAFETY_CRITICAL_THRESHOLD: %w", err)
	}

	maxProcessingMs, err := getEnvInt("SAFETY_MAX_PROCESSING_MS", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid SAFETY_MAX_PROCESSING_MS: %w", err)
	}

	maxInputLen, err := getEnvInt("SAFETY_MAX_INPUT_LENGTH", 10000)
	if err != nil {
		return nil, fmt.Errorf("invalid SAFETY_MAX_INPUT_LENGTH: %w", err)
	}

	repetition, err := getEnvInt("SAFETY_REPETITION_TRIGGER", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid SAFETY_REPETITION_TRIGGER: %w", err)
	}

	historyWindow, err := getEnvInt("SAFETY_HISTORY_WINDOW", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid SAFETY_HISTORY_WINDOW: %w", err)
	}

	turnCeiling, err := getEnvInt("SAFETY_SESSION_TURN_CEILING", 40)
	if err != nil {
		return nil, fmt.Errorf("invalid SAFETY_SESSION_TURN_CEILING: %w", err)
	}

	cacheTTL, err := getEnvInt("CACHE_TTL_SECONDS", 1800)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL_SECONDS: %w", err)
	}

	cacheCap, err := getEnvInt("CACHE_CAPACITY", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_CAPACITY: %w", err)
	}

	workers, err := getEnvInt("BATCH_WORKERS", 8)
	if err != nil {
		return nil, fmt.Errorf("invalid BATCH_WORKERS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Scorer: ScorerConfig{
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel: getEnv("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
		},
		Safety: SafetyConfig{
			Version:             1,
			ToxicityThreshold:   toxicity,
			HighRiskThreshold:   highRisk,
			CriticalThreshold:   critical,
			StrictMode:          getEnvBool("SAFETY_STRICT_MODE", false),
			NotifyParentsOnRisk: getEnvBool("SAFETY_NOTIFY_PARENTS", true),
			MaxProcessingTime:   time.Duration(maxProcessingMs) * time.Millisecond,
			MaxInputLength:      maxInputLen,
			CombineRule:         getEnv("SAFETY_COMBINE_RULE", "max"),
			RepetitionTrigger:   repetition,
			HistoryWindow:       historyWindow,
			SessionTurnCeiling:  turnCeiling,
			PatternsPath:        getEnv("SAFETY_PATTERNS_PATH", ""),
		},
		Cache: CacheConfig{
			TTL:      time.Duration(cacheTTL) * time.Second,
			Capacity: cacheCap,
		},
		Batch: BatchConfig{
			Workers: workers,
		},
		Alerts: AlertConfig{
			ParentWebhookURL:    getEnv("PARENT_WEBHOOK_URL", ""),
			ParentWebhookSecret: getEnv("PARENT_WEBHOOK_SECRET", ""),
		},
	}

	if err := cfg.Safety.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate rejects threshold orderings that would leave the risk mapping
// undefined. Callers refuse to start on failure rather than run with
// thresholds they cannot reason about.
func (c *SafetyConfig) Validate() error {
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"toxicity_threshold", c.ToxicityThreshold},
		{"high_risk_threshold", c.HighRiskThreshold},
		{"critical_threshold", c.CriticalThreshold},
	} {
		if t.value < 0 || t.value > 1 {
			return fmt.Errorf("%w: %s %.2f outside [0,1]", ErrConfigInvalid, t.name, t.value)
		}
	}
	if !(c.ToxicityThreshold < c.HighRiskThreshold && c.HighRiskThreshold < c.CriticalThreshold) {
		return fmt.Errorf("%w: thresholds must satisfy toxicity (%.2f) < high_risk (%.2f) < critical (%.2f)",
			ErrConfigInvalid, c.ToxicityThreshold, c.HighRiskThreshold, c.CriticalThreshold)
	}
	if c.MaxProcessingTime <= 0 {
		return fmt.Errorf("%w: max processing time must be positive", ErrConfigInvalid)
	}
	if c.MaxInputLength <= 0 {
		return fmt.Errorf("%w: max input length must be positive", ErrConfigInvalid)
	}
	if c.CombineRule != "max" && c.CombineRule != "weighted" {
		return fmt.Errorf("%w: unknown combine rule %q", ErrConfigInvalid, c.CombineRule)
	}
	for band := range c.AgeBandOverrides {
		tox, high, crit := c.ThresholdsFor(band)
		if !(tox < high && high < crit) {
			return fmt.Errorf("%w: overrides for band %q break threshold ordering (%.2f/%.2f/%.2f)",
				ErrConfigInvalid, band, tox, high, crit)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
