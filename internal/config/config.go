// Package config loads contradeploy configuration from the environment,
// the project file (contradeploy.toml) and the global file
// (~/.contradeploy/config.yaml).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds configuration for the history server
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Proxy     ProxyConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// Load loads the history server configuration from environment variables.
// Logging and metrics are set up by the command line before Load runs.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		Storage: ResolveStorage(nil, nil),
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
	}

	return cfg, nil
}

// ResolveStorage picks the history store. Later sources win: built-in
// default, global config, project config, then STORAGE_TYPE, DATABASE_URL
// and SQLITE_PATH. Either config may be nil.
func ResolveStorage(project *ProjectConfig, global *GlobalConfig) StorageConfig {
	cfg := StorageConfig{
		Type:   "sqlite",
		SQLite: SQLiteConfig{Path: filepath.Join(HomeDir(), "history.db")},
	}

	apply := func(s StorageFile) {
		if s.Type != "" {
			cfg.Type = s.Type
		}
		if s.Path != "" {
			cfg.SQLite.Path = s.Path
		}
		if s.URL != "" {
			cfg.Postgres.URL = s.URL
			if s.Type == "" {
				cfg.Type = "postgres"
			}
		}
	}
	if global != nil {
		apply(global.Storage)
	}
	if project != nil {
		apply(project.Storage)
	}

	apply(StorageFile{
		Type: os.Getenv("STORAGE_TYPE"),
		Path: os.Getenv("SQLITE_PATH"),
		URL:  os.Getenv("DATABASE_URL"),
	})

	return cfg
}

// HomeDir is the per-user state directory, CONTRADEPLOY_HOME or ~/.contradeploy
func HomeDir() string {
	if dir := os.Getenv("CONTRADEPLOY_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".contradeploy"
	}
	return filepath.Join(home, ".contradeploy")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
