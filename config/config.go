package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	QA         QAConfig         `yaml:"qa"`
	Loader     LoaderConfig     `yaml:"loader"`
	Log        LogConfig        `yaml:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	BodyLimit int    `yaml:"body_limit"`
}

type PostgresConfig struct {
	URL      string `yaml:"url,omitempty"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type EmbeddingsConfig struct {
	Provider     string        `yaml:"provider"`
	OpenAIAPIKey string        `yaml:"-"`
	OpenAIModel  string        `yaml:"openai_model"`
	OpenAIURL    string        `yaml:"openai_url,omitempty"`
	GeminiAPIKey string        `yaml:"-"`
	GoogleModel  string        `yaml:"google_model"`
	OllamaURL    string        `yaml:"ollama_url"`
	OllamaModel  string        `yaml:"ollama_model"`
	Dimensions   int           `yaml:"dimensions"`
	RPS          float64       `yaml:"rps"`
	Burst        int           `yaml:"burst"`
	Breaker      bool          `yaml:"breaker"`
	Timeout      time.Duration `yaml:"timeout"`
}

type QAConfig struct {
	Concurrency   int    `yaml:"concurrency"`
	ReferencesURL string `yaml:"references_url,omitempty"`
}

type LoaderConfig struct {
	SourceDir      string        `yaml:"source_dir"`
	ArchiveDir     string        `yaml:"archive_dir"`
	BadDir         string        `yaml:"bad_dir"`
	MonitoringTime time.Duration `yaml:"monitoring_time"`
	ChunkTokens    int           `yaml:"chunk_tokens"`
	ChunkOverlap   int           `yaml:"chunk_overlap"`
	EmbedBatchSize int           `yaml:"embed_batch_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint,omitempty"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// LoadEnvFile loads .env into the process environment when the file exists.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s file: %w", path, err)
	}
	return nil
}

// envBindings maps config keys, which follow the YAML layout of Config, to
// the environment variables that override them.
var envBindings = map[string]string{
	"server.addr":       "SERVER_ADDR",
	"server.body_limit": "SERVER_BODY_LIMIT",

	"postgres.url":      "DATABASE_URL",
	"postgres.host":     "PG_HOST",
	"postgres.port":     "PG_PORT",
	"postgres.user":     "PG_USER",
	"postgres.password": "PG_PASS",
	"postgres.db_name":  "PG_DB_NAME",
	"postgres.ssl_mode": "PG_SSLMODE",

	"embeddings.provider":       "EMBEDDINGS_PROVIDER",
	"embeddings.openai_api_key": "OPENAI_API_KEY",
	"embeddings.openai_model":   "OPENAI_EMBEDDINGS_MODEL",
	"embeddings.openai_url":     "OPENAI_BASE_URL",
	"embeddings.gemini_api_key": "GEMINI_API_KEY",
	"embeddings.google_model":   "GOOGLE_EMBEDDINGS_MODEL",
	"embeddings.ollama_url":     "OLLAMA_EMBEDDING_URL",
	"embeddings.ollama_model":   "OLLAMA_EMBEDDING_MODEL",
	"embeddings.dimensions":     "VECTOR_DIM",
	"embeddings.rps":            "EMBEDDING_RPS",
	"embeddings.burst":          "EMBEDDING_BURST",
	"embeddings.breaker":        "EMBEDDING_BREAKER",
	"embeddings.timeout":        "EMBEDDING_TIMEOUT",

	"qa.concurrency":    "QA_CONCURRENCY",
	"qa.references_url": "REFERENCES_URL",

	"loader.source_dir":       "LOADER_SOURCE_DIR",
	"loader.archive_dir":      "LOADER_ARCHIVE_DIR",
	"loader.bad_dir":          "LOADER_BAD_DIR",
	"loader.monitoring_time":  "LOADER_MONITORING_TIME",
	"loader.chunk_tokens":     "CHUNK_TOKENS",
	"loader.chunk_overlap":    "CHUNK_OVERLAP",
	"loader.embed_batch_size": "EMBED_BATCH_SIZE",

	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",

	"telemetry.service_name":  "OTEL_SERVICE_NAME",
	"telemetry.otlp_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.sample_ratio":  "OTEL_SAMPLE_RATIO",
}

// DefaultDimensions is the vector size of each provider's default model.
var DefaultDimensions = map[string]int{
	"openai": 1536, // text-embedding-3-small
	"google": 768,  // text-embedding-004
	"ollama": 768,  // nomic-embed-text
}

// SetDefaults registers defaults for every key except
// embeddings.dimensions, which follows the provider.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.body_limit", 4*1024*1024)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.db_name", "banyan")
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("embeddings.provider", "openai")
	v.SetDefault("embeddings.openai_model", "text-embedding-3-small")
	v.SetDefault("embeddings.google_model", "text-embedding-004")
	v.SetDefault("embeddings.ollama_url", "http://localhost:11434/api/embeddings")
	v.SetDefault("embeddings.ollama_model", "nomic-embed-text")
	v.SetDefault("embeddings.rps", 0)
	v.SetDefault("embeddings.burst", 5)
	v.SetDefault("embeddings.breaker", false)
	v.SetDefault("embeddings.timeout", 30*time.Second)

	v.SetDefault("qa.concurrency", 1)

	v.SetDefault("loader.source_dir", "./research/inbox")
	v.SetDefault("loader.archive_dir", "./research/archive")
	v.SetDefault("loader.bad_dir", "./research/bad")
	v.SetDefault("loader.monitoring_time", 5*time.Second)
	v.SetDefault("loader.chunk_tokens", 1000)
	v.SetDefault("loader.chunk_overlap", 100)
	v.SetDefault("loader.embed_batch_size", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("telemetry.service_name", "banyan")
	v.SetDefault("telemetry.sample_ratio", 0.1)
}

func bindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// Load resolves the configuration from defaults, an optional config file
// already attached to v, and the environment. The config file uses the same
// nested layout that Config marshals to.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	provider := strings.ToLower(v.GetString("embeddings.provider"))
	dimensions := DefaultDimensions[provider]
	if v.IsSet("embeddings.dimensions") {
		dimensions = v.GetInt("embeddings.dimensions")
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:      v.GetString("server.addr"),
			BodyLimit: v.GetInt("server.body_limit"),
		},
		Postgres: PostgresConfig{
			URL:      v.GetString("postgres.url"),
			Host:     v.GetString("postgres.host"),
			Port:     v.GetInt("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			DBName:   v.GetString("postgres.db_name"),
			SSLMode:  v.GetString("postgres.ssl_mode"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:     provider,
			OpenAIAPIKey: v.GetString("embeddings.openai_api_key"),
			OpenAIModel:  v.GetString("embeddings.openai_model"),
			OpenAIURL:    v.GetString("embeddings.openai_url"),
			GeminiAPIKey: v.GetString("embeddings.gemini_api_key"),
			GoogleModel:  v.GetString("embeddings.google_model"),
			OllamaURL:    v.GetString("embeddings.ollama_url"),
			OllamaModel:  v.GetString("embeddings.ollama_model"),
			Dimensions:   dimensions,
			RPS:          v.GetFloat64("embeddings.rps"),
			Burst:        v.GetInt("embeddings.burst"),
			Breaker:      v.GetBool("embeddings.breaker"),
			Timeout:      v.GetDuration("embeddings.timeout"),
		},
		QA: QAConfig{
			Concurrency:   v.GetInt("qa.concurrency"),
			ReferencesURL: strings.TrimRight(v.GetString("qa.references_url"), "/"),
		},
		Loader: LoaderConfig{
			SourceDir:      v.GetString("loader.source_dir"),
			ArchiveDir:     v.GetString("loader.archive_dir"),
			BadDir:         v.GetString("loader.bad_dir"),
			MonitoringTime: v.GetDuration("loader.monitoring_time"),
			ChunkTokens:    v.GetInt("loader.chunk_tokens"),
			ChunkOverlap:   v.GetInt("loader.chunk_overlap"),
			EmbedBatchSize: v.GetInt("loader.embed_batch_size"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  v.GetString("telemetry.service_name"),
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
			SampleRatio:  v.GetFloat64("telemetry.sample_ratio"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Embeddings.Provider {
	case "openai":
		if c.Embeddings.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai embeddings provider"))
		}
	case "google":
		if c.Embeddings.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the google embeddings provider"))
		}
	case "ollama":
		if c.Embeddings.OllamaURL == "" {
			errs = append(errs, errors.New("OLLAMA_EMBEDDING_URL is required for the ollama embeddings provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embeddings provider: %q (supported: openai, google, ollama)", c.Embeddings.Provider))
	}
	if c.Embeddings.Dimensions <= 0 {
		errs = append(errs, errors.New("VECTOR_DIM must be positive"))
	}
	if c.Embeddings.Provider == "google" && c.Embeddings.GoogleModel == "text-embedding-004" && c.Embeddings.Dimensions != 768 {
		errs = append(errs, fmt.Errorf("VECTOR_DIM is %d but text-embedding-004 returns 768-dimensional vectors", c.Embeddings.Dimensions))
	}
	if c.QA.Concurrency < 1 {
		errs = append(errs, errors.New("QA_CONCURRENCY must be at least 1"))
	}
	if c.Loader.ChunkOverlap < 0 || c.Loader.ChunkTokens <= 0 {
		errs = append(errs, errors.New("CHUNK_TOKENS must be positive and CHUNK_OVERLAP non-negative"))
	}
	return errors.Join(errs...)
}

// ConnString builds the pgx connection string. DATABASE_URL wins over the
// individual PG_* settings.
func (p PostgresConfig) ConnString() string {
	if p.URL != "" {
		return p.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.DBName,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}
