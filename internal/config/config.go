package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the kbase configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Index      IndexConfig      `yaml:"index"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Imagen     ImagenConfig     `yaml:"imagen"`
	Crawler    CrawlerConfig    `yaml:"crawler"`
	Extract    ExtractConfig    `yaml:"extract"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Events     EventsConfig     `yaml:"events"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// StorageConfig selects and configures the document store.
type StorageConfig struct {
	Driver    string         `yaml:"driver"` // memory, redis, postgres (default: memory)
	KeyPrefix string         `yaml:"key_prefix"`
	Redis     RedisConfig    `yaml:"redis"`
	Postgres  PostgresConfig `yaml:"postgres"`
}

// RedisConfig holds Redis or Valkey connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// IndexDriverQdrant enables the qdrant candidate index.
const IndexDriverQdrant = "qdrant"

// IndexConfig configures the optional candidate index.
type IndexConfig struct {
	Driver     string `yaml:"driver"` // "" (disabled) or qdrant
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
	Insecure   bool   `yaml:"insecure"`
}

// EmbeddingConfig holds provider and call policy settings of the embedder chain.
type EmbeddingConfig struct {
	Provider            string  `yaml:"provider"`
	APIKey              string  `yaml:"api_key"`
	BaseURL             string  `yaml:"base_url"`
	Model               string  `yaml:"model"`
	Dimensions          int     `yaml:"dimensions"`
	DocumentInstruction string  `yaml:"document_instruction"`
	QueryInstruction    string  `yaml:"query_instruction"`
	TimeoutSec          int     `yaml:"timeout_sec"`
	MaxRetries          int     `yaml:"max_retries"`
	MaxConcurrent       int     `yaml:"max_concurrent"`
	RequestsPerSecond   float64 `yaml:"requests_per_second"`
	Burst               int     `yaml:"burst"`
	Cache               struct {
		Enabled  bool `yaml:"enabled"`
		TTLHours int  `yaml:"ttl_hours"`
	} `yaml:"cache"`
}

// GenerationConfig configures the chat model used by /ask. Empty model disables it.
type GenerationConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ImagenConfig configures image generation. Empty api_key disables it.
type ImagenConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	AspectRatio string `yaml:"aspect_ratio"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

// CrawlerConfig tunes URL fetching.
type CrawlerConfig struct {
	TimeoutSec        int     `yaml:"timeout_sec"`
	UserAgent         string  `yaml:"user_agent"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ExtractConfig tunes file extraction.
type ExtractConfig struct {
	DisabledFormats []string `yaml:"disabled_formats"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`
}

// RetrievalConfig tunes similarity search.
type RetrievalConfig struct {
	// Oversample multiplies top_k when asking the index for candidates.
	Oversample int `yaml:"oversample"`
}

// IngestConfig tunes ingestion.
type IngestConfig struct {
	ReembedWorkers int `yaml:"reembed_workers"`
}

// EventsConfig configures NATS lifecycle events. Empty url disables them.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// TracingConfig configures OTLP trace export. Empty endpoint disables export.
type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SampleRate   float64 `yaml:"sample_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// Load reads configuration for an environment name (local, dev, prod).
// CONFIG_PATH overrides the file location. A .env file, when present, is
// loaded into the process environment first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = findConfigPath(env)
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it, applies
// defaults and validates the result.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "kbase:"
	}
	if c.Storage.Redis.ReadinessTimeout <= 0 {
		c.Storage.Redis.ReadinessTimeout = 10
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "kbase_documents"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.Cache.TTLHours <= 0 {
		c.Embedding.Cache.TTLHours = 7 * 24
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 60
	}
	if c.Crawler.TimeoutSec <= 0 {
		c.Crawler.TimeoutSec = 20
	}
	if c.Extract.MaxUploadBytes <= 0 {
		c.Extract.MaxUploadBytes = 32 << 20
	}
	if c.Retrieval.Oversample <= 0 {
		c.Retrieval.Oversample = 4
	}
	if c.Ingest.ReembedWorkers <= 0 {
		c.Ingest.ReembedWorkers = 4
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "kbase"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "kbase"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if len(c.Storage.Redis.Addrs) == 0 {
			return fmt.Errorf("storage.redis.addrs is required for the redis driver")
		}
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be memory, redis or postgres, got %q", c.Storage.Driver)
	}
	switch c.Index.Driver {
	case "":
	case IndexDriverQdrant:
		if c.Index.Addr == "" {
			return fmt.Errorf("index.addr is required for the qdrant driver")
		}
		if c.Embedding.Dimensions <= 0 {
			return fmt.Errorf("embedding.dimensions is required for the qdrant driver")
		}
	default:
		return fmt.Errorf("index.driver must be empty or qdrant, got %q", c.Index.Driver)
	}
	if c.Embedding.Cache.Enabled && c.Storage.Driver != DriverRedis {
		return fmt.Errorf("embedding.cache requires the redis storage driver")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}
	return nil
}

// Seconds converts a config value in seconds to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
