// Package config provides configuration loading and structs for the
// pricebook server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Search    SearchConfig    `yaml:"search"`
	Match     MatchConfig     `yaml:"match"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the snapshot database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig holds embedding provider settings. Provider is one of
// "onnx", "http", or "mock".
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`  // onnx
	Endpoint   string `yaml:"endpoint"`    // http: OpenAI-compatible base URL
	Model      string `yaml:"model"`       // http: model name
	APIKeyEnv  string `yaml:"api_key_env"` // http: env var holding the key
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// CatalogConfig holds catalog source files and pricing settings.
type CatalogConfig struct {
	ForeignPriceList string  `yaml:"foreign_price_list"`
	LocalPriceList   string  `yaml:"local_price_list"`
	ClientsFile      string  `yaml:"clients_file"`
	MarkupRate       float64 `yaml:"markup_rate"`
	PriceColumn      string  `yaml:"price_column"`
	WatchSources     bool    `yaml:"watch_sources"`
}

// SearchConfig holds item and client search settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"` // 0 means unlimited
	MaxLimit     int `yaml:"max_limit"`
	ClientTopK   int `yaml:"client_top_k"`
}

// MatchConfig holds bulk upload matching settings.
type MatchConfig struct {
	TopK int `yaml:"top_k"`
	// Threshold is the squared-L2 distance below which the best candidate
	// counts as a match. It is tied to the embedding model's distance scale
	// and must be retuned when the provider changes.
	Threshold         float64 `yaml:"threshold"`
	MinDescriptionLen int     `yaml:"min_description_len"`
	HeaderScanRows    int     `yaml:"header_scan_rows"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Catalog.ForeignPriceList = expandPath(cfg.Catalog.ForeignPriceList, configDir)
	cfg.Catalog.LocalPriceList = expandPath(cfg.Catalog.LocalPriceList, configDir)
	cfg.Catalog.ClientsFile = expandPath(cfg.Catalog.ClientsFile, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory. Empty paths are returned unchanged.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
