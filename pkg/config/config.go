// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem: server, storage backends, analysis chains, the bmax query
// parser, the booster component and the boost caches.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Bmax      BmaxConfig      `yaml:"bmax"`
	Booster   BoosterConfig   `yaml:"booster"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. PostgreSQL stores
// the synonym sets.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. Compression is one of
// none, gzip, snappy, lz4 or zstd. HandlerAttempts bounds how often the
// indexer retries one message before recording it as failed.
type KafkaConfig struct {
	Enabled         bool        `yaml:"enabled"`
	Brokers         []string    `yaml:"brokers"`
	ConsumerGroup   string      `yaml:"consumerGroup"`
	Topics          KafkaTopics `yaml:"topics"`
	Compression     string      `yaml:"compression"`
	HandlerAttempts int         `yaml:"handlerAttempts"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	PoolSize      int           `yaml:"poolSize"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	DictionaryTTL time.Duration `yaml:"dictionaryTTL"`
}

// IndexConfig controls the index engine's memory threshold and flush
// interval.
type IndexConfig struct {
	DataDir        string        `yaml:"dataDir"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AnalyzerConfig describes one named analysis chain.
type AnalyzerConfig struct {
	Tokenizer string              `yaml:"tokenizer"`
	Filters   []string            `yaml:"filters"`
	Stopwords []string            `yaml:"stopwords"`
	Synonyms  map[string][]string `yaml:"synonyms"`
}

// SynonymStoreConfig selects the PostgreSQL synonym set loaded into a named
// synonym analyzer.
type SynonymStoreConfig struct {
	Enabled         bool          `yaml:"enabled"`
	SetName         string        `yaml:"setName"`
	Analyzer        string        `yaml:"analyzer"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// AnalysisConfig holds the named analyzers ("field types") and the mapping
// of index fields to analyzers.
type AnalysisConfig struct {
	DefaultAnalyzer string                    `yaml:"defaultAnalyzer"`
	Analyzers       map[string]AnalyzerConfig `yaml:"analyzers"`
	Fields          map[string]string         `yaml:"fields"`
	SynonymStore    SynonymStoreConfig        `yaml:"synonymStore"`
}

// BmaxConfig holds the analyzers and defaults of the bmax query parser.
type BmaxConfig struct {
	QueryParsingAnalyzer   string  `yaml:"queryParsingAnalyzer"`
	SynonymAnalyzer        string  `yaml:"synonymAnalyzer"`
	SubtopicAnalyzer       string  `yaml:"subtopicAnalyzer"`
	BoostUpAnalyzer        string  `yaml:"boostUpAnalyzer"`
	BoostDownAnalyzer      string  `yaml:"boostDownAnalyzer"`
	SynonymBoost           float64 `yaml:"synonymBoost"`
	SubtopicBoost          float64 `yaml:"subtopicBoost"`
	TieBreaker             float64 `yaml:"tieBreaker"`
	BoostDownTermWeight    float64 `yaml:"boostDownTermWeight"`
	InspectTerms           bool    `yaml:"inspectTerms"`
	MatchNoneForEmptyQuery bool    `yaml:"matchNoneForEmptyQuery"`
}

// BoosterConfig holds the analyzers and defaults of the boost/penalize term
// component.
type BoosterConfig struct {
	QueryParsingAnalyzer string  `yaml:"queryParsingAnalyzer"`
	SynonymAnalyzer      string  `yaml:"synonymAnalyzer"`
	BoostTermAnalyzer    string  `yaml:"boostTermAnalyzer"`
	PenalizeTermAnalyzer string  `yaml:"penalizeTermAnalyzer"`
	BoostQueryType       string  `yaml:"boostQueryType"`
	PenalizeQueryType    string  `yaml:"penalizeQueryType"`
	BoostStrategy        string  `yaml:"boostStrategy"`
	PenalizeStrategy     string  `yaml:"penalizeStrategy"`
	BoostFactor          float64 `yaml:"boostFactor"`
	PenalizeFactor       float64 `yaml:"penalizeFactor"`
	BoostDocs            int     `yaml:"boostDocs"`
	PenalizeDocs         int     `yaml:"penalizeDocs"`
}

// CacheConfig controls the per-document value caches and the field terms
// dictionaries.
type CacheConfig struct {
	ValueCacheHint    int           `yaml:"valueCacheHint"`
	Precision         float64       `yaml:"precision"`
	DictionaryFields  []string      `yaml:"dictionaryFields"`
	DictionaryTimeout time.Duration `yaml:"dictionaryTimeout"`
}

// RateLimitConfig controls the token-bucket limiter in front of the API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-references between sections.
func (c *Config) Validate() error {
	if _, ok := c.Analysis.Analyzers[c.Analysis.DefaultAnalyzer]; !ok {
		return fmt.Errorf("analysis.defaultAnalyzer %q is not defined", c.Analysis.DefaultAnalyzer)
	}
	for field, name := range c.Analysis.Fields {
		if _, ok := c.Analysis.Analyzers[name]; !ok {
			return fmt.Errorf("analysis.fields.%s references undefined analyzer %q", field, name)
		}
	}
	if c.Bmax.QueryParsingAnalyzer == "" {
		return fmt.Errorf("bmax.queryParsingAnalyzer is required")
	}
	if c.Cache.ValueCacheHint < 0 || c.Cache.ValueCacheHint > 2 {
		return fmt.Errorf("cache.valueCacheHint must be 0, 1 or 2, got %d", c.Cache.ValueCacheHint)
	}
	if c.Cache.Precision <= 0 {
		return fmt.Errorf("cache.precision must be positive")
	}
	return nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bmaxsearch",
			User:            "bmaxsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "bmaxsearch-indexer",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
			},
			Compression:     "zstd",
			HandlerAttempts: 3,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      10,
			CacheTTL:      60 * time.Second,
			DictionaryTTL: 24 * time.Hour,
		},
		Index: IndexConfig{
			DataDir:        "data/index",
			SegmentMaxSize: 32 << 20,
			FlushInterval:  30 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:   100,
			DefaultLimit: 10,
			Timeout:      5 * time.Second,
		},
		Analysis: AnalysisConfig{
			DefaultAnalyzer: "text",
			Analyzers: map[string]AnalyzerConfig{
				"text": {
					Tokenizer: "unicode",
					Filters:   []string{"lowercase", "asciifolding", "stop"},
				},
				"text_en": {
					Tokenizer: "unicode",
					Filters:   []string{"lowercase", "asciifolding", "stop", "porter"},
				},
				"keyword": {
					Tokenizer: "keyword",
				},
			},
			Fields: map[string]string{},
			SynonymStore: SynonymStoreConfig{
				SetName:         "default",
				Analyzer:        "synonyms",
				RefreshInterval: 5 * time.Minute,
			},
		},
		Bmax: BmaxConfig{
			QueryParsingAnalyzer: "text",
			SynonymBoost:         0.01,
			SubtopicBoost:        0.01,
			TieBreaker:           0.0,
			BoostDownTermWeight:  2.0,
		},
		Booster: BoosterConfig{
			QueryParsingAnalyzer: "text",
			BoostQueryType:       "tidismax",
			PenalizeQueryType:    "tidismax",
			BoostStrategy:        "additive",
			PenalizeStrategy:     "rerank",
			BoostFactor:          1.0,
			PenalizeFactor:       100.0,
			BoostDocs:            400,
			PenalizeDocs:         400,
		},
		Cache: CacheConfig{
			ValueCacheHint:    0,
			Precision:         10000,
			DictionaryTimeout: 2 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 200,
			Burst:             400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("SP_CACHE_VALUE_HINT"); v != "" {
		if hint, err := strconv.Atoi(v); err == nil {
			cfg.Cache.ValueCacheHint = hint
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
