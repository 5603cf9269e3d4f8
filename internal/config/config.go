package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Database      DatabaseConfig   `json:"database"`
	Redis         RedisConfig      `json:"redis"`
	AI            AIConfig         `json:"ai"`
	Retrieval     RetrievalConfig  `json:"retrieval"`
	Agent         AgentConfig      `json:"agent"`
	RateLimit     RateLimitConfig  `json:"rate_limit"`
	AWS           AWSConfig        `json:"aws"`
	Ingest        IngestConfig     `json:"ingest"`
	ServiceSecret string           `json:"service_secret"`
	CORSAllowlist []string         `json:"cors_allowlist"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generate       []ProviderConfig `json:"generate"`
	Embed          []ProviderConfig `json:"embed"`
	Chat           []ProviderConfig `json:"chat"`
	TimeoutSeconds int              `json:"timeout_seconds"`
}

type RetrievalConfig struct {
	TopK               int     `json:"top_k"`
	VectorWeight       float64 `json:"vector_weight"`
	KeywordWeight      float64 `json:"keyword_weight"`
	EmbeddingDim       int     `json:"embedding_dim"`
	CacheTTLSeconds    int     `json:"cache_ttl_seconds"`
	LRUSize            int     `json:"lru_size"`
	CacheMaxAgeDays    int     `json:"cache_max_age_days"`
	CacheCleanupCron   string  `json:"cache_cleanup_cron"`
}

type AgentConfig struct {
	Enabled               bool    `json:"enabled"`
	MaxToolIterations     int     `json:"max_tool_iterations"`
	ComplexSpendThreshold float64 `json:"complex_spend_threshold"`
}

type RateLimitConfig struct {
	Enabled                bool `json:"enabled"`
	RankLimit              int  `json:"rank_limit"`
	RankWindowSeconds      int  `json:"rank_window_seconds"`
	StatementLimit         int  `json:"statement_limit"`
	StatementWindowSeconds int  `json:"statement_window_seconds"`
}

type AWSConfig struct {
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

type IngestConfig struct {
	QueueURL             string `json:"queue_url"`
	Bucket               string `json:"bucket"`
	CallbackURL          string `json:"callback_url"`
	CallbackSecret       string `json:"callback_secret"`
	ConverseMaxRetries   int    `json:"converse_max_retries"`
	RetryBackoffSeconds  int    `json:"retry_backoff_seconds"`
	StatementMaxTxs      int    `json:"statement_max_transactions"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if len(cfg.AI.Embed) == 0 {
		return nil, fmt.Errorf("ai.embed requires at least one provider")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.TimeoutSeconds <= 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.VectorWeight == 0 && cfg.Retrieval.KeywordWeight == 0 {
		cfg.Retrieval.VectorWeight = 0.7
		cfg.Retrieval.KeywordWeight = 0.3
	}
	if cfg.Retrieval.EmbeddingDim <= 0 {
		cfg.Retrieval.EmbeddingDim = 1024
	}
	if cfg.Retrieval.CacheTTLSeconds <= 0 {
		cfg.Retrieval.CacheTTLSeconds = 600
	}
	if cfg.Retrieval.LRUSize <= 0 {
		cfg.Retrieval.LRUSize = 10000
	}
	if cfg.Retrieval.CacheMaxAgeDays <= 0 {
		cfg.Retrieval.CacheMaxAgeDays = 30
	}
	if cfg.Retrieval.CacheCleanupCron == "" {
		cfg.Retrieval.CacheCleanupCron = "30 3 * * *"
	}
	if cfg.Agent.MaxToolIterations <= 0 {
		cfg.Agent.MaxToolIterations = 6
	}
	if cfg.Agent.ComplexSpendThreshold <= 0 {
		cfg.Agent.ComplexSpendThreshold = 20000
	}
	if cfg.RateLimit.RankLimit <= 0 {
		cfg.RateLimit.RankLimit = 30
	}
	if cfg.RateLimit.RankWindowSeconds <= 0 {
		cfg.RateLimit.RankWindowSeconds = 60
	}
	if cfg.RateLimit.StatementLimit <= 0 {
		cfg.RateLimit.StatementLimit = 5
	}
	if cfg.RateLimit.StatementWindowSeconds <= 0 {
		cfg.RateLimit.StatementWindowSeconds = 60
	}
	if cfg.Ingest.ConverseMaxRetries <= 0 {
		cfg.Ingest.ConverseMaxRetries = 2
	}
	if cfg.Ingest.RetryBackoffSeconds <= 0 {
		cfg.Ingest.RetryBackoffSeconds = 1
	}
	if cfg.Ingest.StatementMaxTxs <= 0 || cfg.Ingest.StatementMaxTxs > 30 {
		cfg.Ingest.StatementMaxTxs = 30
	}
	return &cfg, nil
}
