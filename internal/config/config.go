package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Jina        JinaConfig        `yaml:"jina" mapstructure:"jina"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Cluster     ClusterConfig     `yaml:"cluster" mapstructure:"cluster"`
	Deconflict  DeconflictConfig  `yaml:"deconflict" mapstructure:"deconflict"`
	Canonical   CanonicalConfig   `yaml:"canonical" mapstructure:"canonical"`
	Consolidate ConsolidateConfig `yaml:"consolidate" mapstructure:"consolidate"`
	Rollup      RollupConfig      `yaml:"rollup" mapstructure:"rollup"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// JinaConfig holds Jina AI embeddings API settings.
type JinaConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

// AnthropicConfig holds Anthropic API settings for the deconfliction judge
// and the rollup summarizer.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	JudgeModel     string  `yaml:"judge_model" mapstructure:"judge_model"`
	SummaryModel   string  `yaml:"summary_model" mapstructure:"summary_model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// ClusterConfig configures same-day density clustering.
type ClusterConfig struct {
	Epsilon          float64  `yaml:"epsilon" mapstructure:"epsilon"`
	MinSamples       int      `yaml:"min_samples" mapstructure:"min_samples"`
	MaxBatchMembers  int      `yaml:"max_batch_members" mapstructure:"max_batch_members"`
	TargetRecipients []string `yaml:"target_recipients" mapstructure:"target_recipients"`
	Stoplist         []string `yaml:"stoplist" mapstructure:"stoplist"`
}

// DeconflictConfig configures LLM cluster review.
type DeconflictConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// CanonicalConfig configures canonical event promotion.
type CanonicalConfig struct {
	MergeWindowDays int `yaml:"merge_window_days" mapstructure:"merge_window_days"`
}

// ConsolidateConfig configures cross-time consolidation.
type ConsolidateConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	ChunkSize           int     `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// RollupConfig configures period summary generation.
type RollupConfig struct {
	MaxEventsPerPrompt int `yaml:"max_events_per_prompt" mapstructure:"max_events_per_prompt"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SOFTPOWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jina.base_url", "https://api.jina.ai/v1")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("jina.dimensions", 1024)
	v.SetDefault("anthropic.judge_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.summary_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.requests_per_sec", 2.0)
	v.SetDefault("cluster.epsilon", 0.15)
	v.SetDefault("cluster.min_samples", 1)
	v.SetDefault("cluster.max_batch_members", 40)
	v.SetDefault("cluster.stoplist", []string{"forum", "summit", "conference", "meeting", "event"})
	v.SetDefault("deconflict.concurrency", 1)
	v.SetDefault("canonical.merge_window_days", 14)
	v.SetDefault("consolidate.similarity_threshold", 0.85)
	v.SetDefault("consolidate.chunk_size", 500)
	v.SetDefault("rollup.max_events_per_prompt", 50)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
