package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MEMORYD_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MEMORYD_SERVER_HTTP_PORT, MEMORYD_EMBEDDINGS_PROVIDER, etc.)
//  2. YAML config file (~/.config/memoryd/config.yaml)
//  3. Defaults (see Default)
//
// A missing file is not an error. Existing files must live under
// ~/.config/memoryd/ or /etc/memoryd/, be at most 1MB and have 0600 or 0400
// permissions.
//
// Environment variables drop the prefix and split on the first underscore:
//
//	MEMORYD_SERVER_HTTP_PORT       -> server.http_port
//	MEMORYD_COMPACTION_INTERVAL    -> compaction.interval
//	MEMORYD_EMBEDDINGS_API_KEY     -> embeddings.api_key
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "memoryd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Validate through the open descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults so absent keys keep their default value.
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envKey maps MEMORYD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// validateConfigPath checks that path is in an allowed directory.
// It runs even if the file doesn't exist.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "memoryd"),
		"/etc/memoryd",
	}
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/memoryd/ or /etc/memoryd/")
}

// validateConfigFileProperties checks permissions and size of an opened file.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills provider-specific defaults and normalizes values.
func applyDefaults(cfg *Config) error {
	switch cfg.Embeddings.Provider {
	case ProviderOpenAI:
		setDefault(&cfg.Embeddings.BaseURL, "https://api.openai.com")
		setDefault(&cfg.Embeddings.Model, "text-embedding-3-small")
	case ProviderOllama:
		setDefault(&cfg.Embeddings.BaseURL, "http://localhost:11434")
		setDefault(&cfg.Embeddings.Model, "nomic-embed-text")
	case ProviderTEI:
		setDefault(&cfg.Embeddings.BaseURL, "http://localhost:8080")
	}

	switch cfg.Summarizer.Provider {
	case ProviderOpenAI:
		setDefault(&cfg.Summarizer.BaseURL, "https://api.openai.com")
		setDefault(&cfg.Summarizer.Model, "gpt-4o-mini")
	case ProviderOllama:
		setDefault(&cfg.Summarizer.BaseURL, "http://localhost:11434")
		setDefault(&cfg.Summarizer.Model, "llama3.1")
	case ProviderAnthropic:
		setDefault(&cfg.Summarizer.Model, "claude-3-5-haiku-latest")
	}

	switch cfg.Reranker.Provider {
	case ProviderOllama:
		setDefault(&cfg.Reranker.BaseURL, "http://localhost:11434")
		setDefault(&cfg.Reranker.Model, "llama3.1")
	case ProviderTEI:
		setDefault(&cfg.Reranker.BaseURL, "http://localhost:8081")
	}

	if cfg.Compaction.Interval.Duration() < MinCompactionInterval {
		cfg.Compaction.Interval = Duration(MinCompactionInterval)
	}

	path, err := expandHome(cfg.Storage.Path)
	if err != nil {
		return err
	}
	cfg.Storage.Path = path

	seen := make(map[string]bool, len(cfg.Namespaces.Bootstrap))
	namespaces := make([]string, 0, len(cfg.Namespaces.Bootstrap))
	for _, ns := range cfg.Namespaces.Bootstrap {
		ns = strings.TrimSpace(ns)
		if ns == "" || seen[ns] {
			continue
		}
		seen[ns] = true
		namespaces = append(namespaces, ns)
	}
	if len(namespaces) == 0 {
		namespaces = []string{"default"}
	}
	cfg.Namespaces.Bootstrap = namespaces

	return nil
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
