// Package config provides configuration loading for memoryd.
//
// Configuration is assembled from defaults, an optional YAML file and
// MEMORYD_* environment variables, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names accepted by the embeddings, summarizer and reranker sections.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderTEI       = "tei"
	ProviderAnthropic = "anthropic"
	ProviderLexical   = "lexical"
)

// MinCompactionInterval is the floor applied to compaction.interval.
const MinCompactionInterval = 5 * time.Second

// Config holds the complete memoryd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Namespaces NamespacesConfig `koanf:"namespaces"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Summarizer SummarizerConfig `koanf:"summarizer"`
	Reranker   RerankerConfig   `koanf:"reranker"`
	Recall     RecallConfig     `koanf:"recall"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Compaction CompactionConfig `koanf:"compaction"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig locates the SQLite database file.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// NamespacesConfig lists namespaces created at startup.
type NamespacesConfig struct {
	Bootstrap []string `koanf:"bootstrap"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Dimension int      `koanf:"dimension"`
	Timeout   Duration `koanf:"timeout"`
	RateLimit float64  `koanf:"rate_limit"` // requests per second, 0 = unlimited
}

// SummarizerConfig selects and configures the summarization provider.
type SummarizerConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	MaxTokens int      `koanf:"max_tokens"`
	Timeout   Duration `koanf:"timeout"`
}

// RerankerConfig selects and configures the reranking provider.
type RerankerConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	Timeout   Duration `koanf:"timeout"`
	RateLimit float64  `koanf:"rate_limit"`
}

// RecallConfig tunes vector recall.
type RecallConfig struct {
	DefaultTopK     int  `koanf:"default_top_k"`
	MaxSnippetChars int  `koanf:"max_snippet_chars"`
	RerankReorder   bool `koanf:"rerank_reorder"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	ChunkSize int `koanf:"chunk_size"`
}

// CompactionConfig controls the background session compaction loop.
type CompactionConfig struct {
	Enabled        bool     `koanf:"enabled"`
	EventThreshold int      `koanf:"event_threshold"`
	CharThreshold  int      `koanf:"char_threshold"`
	Interval       Duration `koanf:"interval"`
	MaxEvents      int      `koanf:"max_events"`
}

// LoggingConfig holds the subset of logging settings exposed through the config file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8088,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Path: "~/.local/share/memoryd/memory.db",
		},
		Namespaces: NamespacesConfig{
			Bootstrap: []string{"default"},
		},
		Embeddings: EmbeddingsConfig{
			Provider:  ProviderNone,
			Dimension: 1536,
			Timeout:   Duration(30 * time.Second),
		},
		Summarizer: SummarizerConfig{
			Provider:  ProviderNone,
			MaxTokens: 1024,
			Timeout:   Duration(45 * time.Second),
		},
		Reranker: RerankerConfig{
			Provider: ProviderNone,
			Timeout:  Duration(30 * time.Second),
		},
		Recall: RecallConfig{
			DefaultTopK:     5,
			MaxSnippetChars: 900,
		},
		Ingest: IngestConfig{
			ChunkSize: 800,
		},
		Compaction: CompactionConfig{
			Enabled:        true,
			EventThreshold: 80,
			CharThreshold:  24000,
			Interval:       Duration(60 * time.Second),
			MaxEvents:      2000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			ServiceName: "memoryd",
			Insecure:    true,
		},
	}
}

// CompactionEnabled reports whether the compaction loop should run at all.
// Compaction is hard-disabled when no summarizer is configured.
func (c *Config) CompactionEnabled() bool {
	return c.Compaction.Enabled && c.Summarizer.Provider != ProviderNone
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}

	if err := oneOf("embeddings.provider", c.Embeddings.Provider,
		ProviderNone, ProviderOpenAI, ProviderOllama, ProviderTEI); err != nil {
		return err
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Embeddings.RateLimit < 0 || c.Reranker.RateLimit < 0 {
		return errors.New("rate_limit cannot be negative")
	}

	if err := oneOf("summarizer.provider", c.Summarizer.Provider,
		ProviderNone, ProviderOpenAI, ProviderOllama, ProviderAnthropic); err != nil {
		return err
	}
	if err := oneOf("reranker.provider", c.Reranker.Provider,
		ProviderNone, ProviderOllama, ProviderTEI, ProviderLexical); err != nil {
		return err
	}

	if c.Recall.DefaultTopK < 1 || c.Recall.DefaultTopK > 50 {
		return fmt.Errorf("recall.default_top_k must be 1-50, got %d", c.Recall.DefaultTopK)
	}
	if c.Recall.MaxSnippetChars < 4 {
		return fmt.Errorf("recall.max_snippet_chars must be at least 4, got %d", c.Recall.MaxSnippetChars)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}

	if c.Compaction.EventThreshold < 0 || c.Compaction.CharThreshold < 0 {
		return errors.New("compaction thresholds cannot be negative")
	}
	if c.Compaction.MaxEvents < 1 {
		return fmt.Errorf("compaction.max_events must be positive, got %d", c.Compaction.MaxEvents)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), value)
}
