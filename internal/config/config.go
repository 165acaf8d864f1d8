package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nexconsult/precatorios/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `json:"server"`
	Redis      RedisConfig      `json:"redis"`
	Log        LogConfig        `json:"log"`
	Security   SecurityConfig   `json:"security"`
	Browser    BrowserConfig    `json:"browser"`
	Portal     PortalConfig     `json:"portal"`
	Extraction ExtractionConfig `json:"extraction"`
	Export     ExportConfig     `json:"export"`
	Journal    JournalConfig    `json:"journal"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int    `json:"port"`
	Environment  string `json:"environment"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit"`
	CORS      CORSConfig      `json:"cors"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	BurstSize         int           `json:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	MaxBrowsers     int           `json:"max_browsers"`
	Headless        bool          `json:"headless"`
	ExecPath        string        `json:"exec_path"`
	UserAgent       string        `json:"user_agent"`
	StartupTimeout  time.Duration `json:"startup_timeout"`
	MinPageInterval time.Duration `json:"min_page_interval"`
	SettleDelay     time.Duration `json:"settle_delay"`
}

// PortalConfig describes the TJRJ precatório portal
type PortalConfig struct {
	BaseURL  string `json:"base_url"`
	PageSize int    `json:"page_size"`
}

// ExtractionConfig holds the run parameters of the harvesting pipeline
type ExtractionConfig struct {
	Regime                 models.Regime   `json:"regime"`
	FieldSet               models.FieldSet `json:"field_set"`
	Workers                int             `json:"workers"`
	RecoveryWorkers        int             `json:"recovery_workers"`
	RecoveryEnabled        bool            `json:"recovery_enabled"`
	PageTimeout            time.Duration   `json:"page_timeout"`
	MaxRetries             int             `json:"max_retries"`
	RetryDelay             time.Duration   `json:"retry_delay"`
	RetryMultiplier        float64         `json:"retry_multiplier"`
	RetryMaxDelay          time.Duration   `json:"retry_max_delay"`
	CompletenessThreshold  float64         `json:"completeness_threshold"`
	PartitionTimeout       time.Duration   `json:"partition_timeout"`
	PoolGrace              time.Duration   `json:"pool_grace"`
	HeartbeatEvery         int             `json:"heartbeat_every"`
	MaxConsecutiveFailures int             `json:"max_consecutive_failures"`
	PartitionsFile         string          `json:"partitions_file"`
	ListingCacheTTL        time.Duration   `json:"listing_cache_ttl"`
}

// ExportConfig holds output configuration
type ExportConfig struct {
	OutputDir     string   `json:"output_dir"`
	Formats       []string `json:"formats"`
	PostgresDSN   string   `json:"-"`
	PostgresTable string   `json:"postgres_table"`
	PostgresBatch int      `json:"postgres_batch"`
}

// JournalConfig holds outcome journal configuration
type JournalConfig struct {
	KeyPrefix string        `json:"key_prefix"`
	TTL       time.Duration `json:"ttl"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	regime, err := models.ParseRegime(getEnv("TJRJ_REGIME", "geral"))
	if err != nil {
		return nil, err
	}
	fieldSet, err := models.ParseFieldSet(getEnv("TJRJ_FIELD_SET", "minimal"))
	if err != nil {
		return nil, err
	}

	workers := getEnvAsInt("TJRJ_WORKERS", 10)
	partitionTimeout := getEnvAsDuration("TJRJ_PARTITION_TIMEOUT", 60*time.Minute)

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("IDLE_TIMEOUT", 60),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", true),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  time.Duration(getEnvAsInt("REDIS_DIAL_TIMEOUT", 5)) * time.Second,
			ReadTimeout:  time.Duration(getEnvAsInt("REDIS_READ_TIMEOUT", 3)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("REDIS_WRITE_TIMEOUT", 3)) * time.Second,
		},
		Log: LogConfig{
			Level:  getEnv("TJRJ_LOG_LEVEL", getEnv("LOG_LEVEL", "info")),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("TJRJ_LOG_FILE", ""),
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 100),
				BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
				CleanupInterval:   time.Duration(getEnvAsInt("RATE_LIMIT_CLEANUP", 60)) * time.Second,
			},
			CORS: CORSConfig{
				AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: false,
			},
		},
		Browser: BrowserConfig{
			MaxBrowsers:     getEnvAsInt("TJRJ_BROWSER_MAX", workers+1),
			Headless:        getEnvAsBool("TJRJ_HEADLESS", true),
			ExecPath:        getEnv("TJRJ_CHROME_PATH", ""),
			UserAgent:       getEnv("TJRJ_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"),
			StartupTimeout:  getEnvAsDuration("TJRJ_BROWSER_STARTUP_TIMEOUT", 15*time.Second),
			MinPageInterval: getEnvAsDuration("TJRJ_MIN_PAGE_INTERVAL", 500*time.Millisecond),
			SettleDelay:     getEnvAsDuration("TJRJ_SETTLE_DELAY", 1500*time.Millisecond),
		},
		Portal: PortalConfig{
			BaseURL:  strings.TrimRight(getEnv("TJRJ_BASE_URL", "https://www3.tjrj.jus.br/PortalConhecimento/precatorio"), "/"),
			PageSize: getEnvAsInt("TJRJ_PAGE_SIZE", 10),
		},
		Extraction: ExtractionConfig{
			Regime:                 regime,
			FieldSet:               fieldSet,
			Workers:                workers,
			RecoveryWorkers:        getEnvAsInt("TJRJ_RECOVERY_WORKERS", min(5, workers)),
			RecoveryEnabled:        getEnvAsBool("TJRJ_RECOVERY_ENABLED", true),
			PageTimeout:            getEnvAsDuration("TJRJ_PAGE_LOAD_TIMEOUT", 30*time.Second),
			MaxRetries:             getEnvAsInt("TJRJ_MAX_RETRIES", 3),
			RetryDelay:             getEnvAsDuration("TJRJ_RETRY_DELAY", 2*time.Second),
			RetryMultiplier:        getEnvAsFloat("TJRJ_RETRY_MULTIPLIER", 2.0),
			RetryMaxDelay:          getEnvAsDuration("TJRJ_RETRY_MAX_DELAY", 30*time.Second),
			CompletenessThreshold:  getEnvAsFloat("TJRJ_COMPLETENESS_THRESHOLD", 0),
			PartitionTimeout:       partitionTimeout,
			PoolGrace:              getEnvAsDuration("TJRJ_POOL_GRACE", 60*time.Second),
			HeartbeatEvery:         getEnvAsInt("TJRJ_HEARTBEAT_PAGES", 50),
			MaxConsecutiveFailures: getEnvAsInt("TJRJ_MAX_CONSECUTIVE_FAILURES", 5),
			PartitionsFile:         getEnv("TJRJ_PARTITIONS_FILE", ""),
			ListingCacheTTL:        getEnvAsDuration("TJRJ_LISTING_CACHE_TTL", 6*time.Hour),
		},
		Export: ExportConfig{
			OutputDir:     getEnv("TJRJ_OUTPUT_DIR", "output"),
			Formats:       getEnvAsSlice("TJRJ_EXPORT_FORMATS", []string{"csv"}),
			PostgresDSN:   getEnv("TJRJ_PG_DSN", ""),
			PostgresTable: getEnv("TJRJ_PG_TABLE", "precatorios"),
			PostgresBatch: getEnvAsInt("TJRJ_PG_BATCH", 500),
		},
		Journal: JournalConfig{
			KeyPrefix: getEnv("TJRJ_JOURNAL_PREFIX", "tjrj"),
			TTL:       getEnvAsDuration("TJRJ_JOURNAL_TTL", 7*24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values a run cannot proceed without
func (c *Config) Validate() error {
	var errs []error

	if c.Extraction.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Extraction.Workers))
	}
	if c.Extraction.RecoveryWorkers < 1 {
		errs = append(errs, fmt.Errorf("recovery workers must be at least 1, got %d", c.Extraction.RecoveryWorkers))
	}
	if c.Extraction.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max retries must be at least 1, got %d", c.Extraction.MaxRetries))
	}
	if c.Extraction.PageTimeout <= 0 {
		errs = append(errs, errors.New("page timeout must be positive"))
	}
	if t := c.Extraction.CompletenessThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("completeness threshold must be within [0,1], got %v", t))
	}
	if _, err := models.ParseRegime(string(c.Extraction.Regime)); err != nil {
		errs = append(errs, err)
	}
	if _, err := models.ParseFieldSet(string(c.Extraction.FieldSet)); err != nil {
		errs = append(errs, err)
	}
	if c.Portal.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page size must be at least 1, got %d", c.Portal.PageSize))
	}
	if c.Browser.MaxBrowsers < 1 {
		errs = append(errs, fmt.Errorf("max browsers must be at least 1, got %d", c.Browser.MaxBrowsers))
	}
	for _, format := range c.Export.Formats {
		switch format {
		case "csv", "excel":
		case "postgres":
			if c.Export.PostgresDSN == "" {
				errs = append(errs, errors.New("postgres export requires TJRJ_PG_DSN"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown export format %q", format))
		}
	}

	return errors.Join(errs...)
}

// PoolTimeout is the safety ceiling for one partition's worker pool
func (e ExtractionConfig) PoolTimeout() time.Duration {
	return e.PartitionTimeout + 60*time.Second
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or plain seconds ("2.5")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
