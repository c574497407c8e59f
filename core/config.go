package core

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the web frontend process.
type Config struct {
	Port            string `yaml:"port"`              // HTTP listen port (e.g., "8080")
	BackendURL      string `yaml:"backend_url"`       // CMS REST backend base (e.g., "http://localhost:9000")
	SessionKey      string `yaml:"session_key"`       // Cookie signing/encryption key
	CookieSecure    bool   `yaml:"cookie_secure"`     // Whether to set Secure flag on session cookie
	CookieSameSite  string `yaml:"cookie_samesite"`   // SameSite policy: Strict/Lax/None
	LogDir          string `yaml:"log_dir"`           // Directory to write application logs
	RedisURL        string `yaml:"redis_url"`         // Redis URL for the page cache; empty disables caching
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"` // TTL for cached public responses

	AllowedOrigins []string `yaml:"allowed_origins"` // extra origins accepted on form posts
}

// Load populates Config from an optional YAML file (CONFIG_FILE, default
// ./config.yaml) with environment variables taking precedence.
func Load() Config {
	cfg := loadFile(firstNonEmpty(os.Getenv("CONFIG_FILE"), "config.yaml"))

	cfg.Port = firstNonEmpty(os.Getenv("PORT"), cfg.Port, "8080")
	cfg.BackendURL = firstNonEmpty(os.Getenv("BACKEND_URL"), cfg.BackendURL, "http://localhost:9000")
	cfg.SessionKey = firstNonEmpty(os.Getenv("SESSION_KEY"), cfg.SessionKey, "change-this-session-key")
	cfg.CookieSecure = boolFromEnv("COOKIE_SECURE", cfg.CookieSecure)
	cfg.CookieSameSite = firstNonEmpty(os.Getenv("COOKIE_SAMESITE"), cfg.CookieSameSite, "Lax")
	cfg.LogDir = firstNonEmpty(os.Getenv("LOG_DIR"), cfg.LogDir, "/var/log/cms-front")
	cfg.RedisURL = firstNonEmpty(os.Getenv("REDIS_URL"), cfg.RedisURL)
	cfg.CacheTTLSeconds = intFromEnv("CACHE_TTL_SECONDS", firstPositive(cfg.CacheTTLSeconds, 60))
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = parseCSV(v)
	}

	return cfg
}

// loadFile reads a YAML config file; a missing file yields the zero Config.
func loadFile(path string) Config {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("config file %s unreadable: %v", path, err)
		}
		return cfg
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		log.Printf("config file %s invalid: %v", path, err)
		return Config{}
	}
	return cfg
}

// parseCSV splits a comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// boolFromEnv reads a boolean from env var name, falling back to defaultVal when empty or invalid.
func boolFromEnv(name string, defaultVal bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// intFromEnv reads an int from env var name, falling back to defaultVal when empty or invalid.
func intFromEnv(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
