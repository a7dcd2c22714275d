// Package config loads the application configuration from an optional
// YAML file merged with environment overrides. Secrets (API keys) are
// never read from the file; providers take them from the environment.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DocumentsConfig configures where source files live.
type DocumentsConfig struct {
	Dir          string `yaml:"dir"`
	ProcessedDir string `yaml:"processed_dir"`
	Watch        bool   `yaml:"watch"`
}

// ChunkingConfig configures how documents are split into chunks.
// Window and overlap sizes are tunables, not a contract.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
	MinSize int `yaml:"min_size"`
}

// RetrievalConfig configures similarity search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// RedisConfig contains connection details for the Redis vector store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Index    string `yaml:"index"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Backend is "memory" or "redis"
	Backend string       `yaml:"backend"`
	Dim     int          `yaml:"dim"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// AppConfig is the root application configuration.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Documents   DocumentsConfig   `yaml:"documents"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
}

// Load reads the config from path. A missing file yields defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Documents.Dir == "" {
		cfg.Documents.Dir = "documents"
	}
	if cfg.Documents.ProcessedDir == "" {
		cfg.Documents.ProcessedDir = "processed"
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 1000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}
	if cfg.Chunking.MinSize == 0 {
		cfg.Chunking.MinSize = 100
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "memory"
	}
	if cfg.VectorStore.Dim == 0 {
		cfg.VectorStore.Dim = 1024
	}
	if cfg.VectorStore.Backend == "redis" && cfg.VectorStore.Redis == nil {
		cfg.VectorStore.Redis = &RedisConfig{}
	}
	if cfg.VectorStore.Redis != nil {
		if cfg.VectorStore.Redis.Addr == "" {
			cfg.VectorStore.Redis.Addr = "localhost:6379"
		}
		if cfg.VectorStore.Redis.PoolSize == 0 {
			cfg.VectorStore.Redis.PoolSize = 10
		}
		if cfg.VectorStore.Redis.Index == "" {
			cfg.VectorStore.Redis.Index = "docchat-knowledge"
		}
	}
}

// applyEnvOverrides lets the environment override file values, so the
// same binary can be pointed at another Redis or dimension without
// editing the file.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DOCUMENTS_DIR"); v != "" {
		cfg.Documents.Dir = v
	}
	if v := os.Getenv("VECTOR_BACKEND"); v != "" {
		cfg.VectorStore.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		if cfg.VectorStore.Redis == nil {
			cfg.VectorStore.Redis = &RedisConfig{PoolSize: 10, Index: "docchat-knowledge"}
		}
		cfg.VectorStore.Redis.Addr = v
	}
	if v := os.Getenv("VECTOR_DIM"); v != "" {
		var dim int
		if _, err := fmt.Sscanf(v, "%d", &dim); err == nil && dim > 0 {
			cfg.VectorStore.Dim = dim
		}
	}
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.Chunking.Size = n
		}
	}
	if v := os.Getenv("CHUNK_OVERLAP"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n >= 0 {
			cfg.Chunking.Overlap = n
		}
	}
}
