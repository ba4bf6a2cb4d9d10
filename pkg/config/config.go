package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the publisher
type Config struct {
	// Instagram account settings
	Account AccountConfig `yaml:"account" json:"account"`

	// Residential proxy pool settings
	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`

	// Publishing loop settings
	Publisher PublisherConfig `yaml:"publisher" json:"publisher"`

	// Content queue database settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// AccountConfig identifies the account being published to
type AccountConfig struct {
	ID          string `yaml:"id" json:"id"`
	Username    string `yaml:"username" json:"username"`
	Password    string `yaml:"password" json:"password"`
	SessionDir  string `yaml:"session_dir" json:"session_dir"`
	UserAgent   string `yaml:"user_agent" json:"user_agent"`
	ProbeOnBoot bool   `yaml:"probe_on_boot" json:"probe_on_boot"`
}

// ProxyConfig holds proxy provider credentials and pool behavior
type ProxyConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         string `yaml:"port" json:"port"`
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password" json:"password"`
	BaseSessions []string `yaml:"base_sessions" json:"base_sessions"`

	CountryCode string `yaml:"country_code" json:"country_code"`
	CountryName string `yaml:"country_name" json:"country_name"`
	City        string `yaml:"city" json:"city"`
	Lifetime    string `yaml:"lifetime" json:"lifetime"`
	Streaming   string `yaml:"streaming" json:"streaming"`

	// ListFile takes precedence over generation from base sessions
	ListFile string `yaml:"list_file" json:"list_file"`

	RotationInterval time.Duration `yaml:"rotation_interval" json:"rotation_interval"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	ProbeURL         string        `yaml:"probe_url" json:"probe_url"`
	MaxRetries       int           `yaml:"max_retries" json:"max_retries"`
	SessionFanout    int           `yaml:"session_fanout" json:"session_fanout"`
}

// PublisherConfig holds pacing for the sequential publishing loop
type PublisherConfig struct {
	MinDelay          time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// StorageConfig holds the content queue database location
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" json:"database_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			SessionDir: "sessions",
		},
		Proxy: ProxyConfig{
			Host:             "geo.iproyal.com",
			Port:             "32325",
			CountryCode:      "ES",
			CountryName:      "Spain",
			City:             "madrid",
			Lifetime:         "30m",
			Streaming:        "1",
			ListFile:         "proxy_list.txt",
			RotationInterval: 25 * time.Minute,
			ProbeTimeout:     30 * time.Second,
			ProbeURL:         "http://ip-api.com/json",
			MaxRetries:       3,
			SessionFanout:    5,
		},
		Publisher: PublisherConfig{
			MinDelay:          30 * time.Second,
			MaxDelay:          3 * time.Minute,
			RequestsPerMinute: 10,
			MaxRetries:        3,
			RetryDelay:        5 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath: "data/content.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if host := os.Getenv("PROXY_HOST"); host != "" {
		c.Proxy.Host = host
	}
	if port := os.Getenv("PROXY_PORT"); port != "" {
		c.Proxy.Port = port
	}
	if user := os.Getenv("PROXY_USERNAME"); user != "" {
		c.Proxy.Username = user
	}
	if pass := os.Getenv("PROXY_PASSWORD"); pass != "" {
		c.Proxy.Password = pass
	}
	if sessions := os.Getenv("PROXY_BASE_SESSIONS"); sessions != "" {
		c.Proxy.BaseSessions = splitSessions(sessions)
	}
	if cc := os.Getenv("PROXY_COUNTRY_CODE"); cc != "" {
		c.Proxy.CountryCode = cc
	}
	if name := os.Getenv("PROXY_COUNTRY_NAME"); name != "" {
		c.Proxy.CountryName = name
	}
	if city := os.Getenv("PROXY_CITY"); city != "" {
		c.Proxy.City = strings.ToLower(city)
	}
	if lifetime := os.Getenv("PROXY_LIFETIME"); lifetime != "" {
		c.Proxy.Lifetime = lifetime
	}
	if streaming := os.Getenv("PROXY_STREAMING"); streaming != "" {
		c.Proxy.Streaming = streaming
	}
	if interval := os.Getenv("PROXY_ROTATION_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil && d > 0 {
			c.Proxy.RotationInterval = d
		}
	}

	if username := os.Getenv("IG_USERNAME"); username != "" {
		c.Account.Username = username
	}
	if password := os.Getenv("IG_PASSWORD"); password != "" {
		c.Account.Password = password
	}
	if account := os.Getenv("IG_ACCOUNT_ID"); account != "" {
		c.Account.ID = account
	}

	if dbPath := os.Getenv("SNPUB_DATABASE_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
	if logLevel := os.Getenv("SNPUB_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if rpm := os.Getenv("SNPUB_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.Publisher.RequestsPerMinute = val
		}
	}

	return nil
}

// splitSessions parses the comma-separated PROXY_BASE_SESSIONS value
func splitSessions(raw string) []string {
	var sessions []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".snpublisher.yaml",
		".snpublisher.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "snpublisher", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".snpublisher.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Proxy.Username == "" {
		errs = append(errs, errors.New("proxy username is required"))
	}
	if c.Proxy.Password == "" {
		errs = append(errs, errors.New("proxy password is required"))
	}
	if c.Proxy.Host == "" {
		errs = append(errs, errors.New("proxy host is required"))
	}
	if c.Proxy.Port == "" {
		errs = append(errs, errors.New("proxy port is required"))
	}
	if c.Proxy.RotationInterval < 0 {
		errs = append(errs, errors.New("proxy rotation interval cannot be negative"))
	}
	if c.Proxy.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("proxy probe timeout must be positive"))
	}
	if c.Proxy.MaxRetries <= 0 {
		errs = append(errs, errors.New("proxy max retries must be positive"))
	}
	if c.Proxy.SessionFanout <= 0 {
		errs = append(errs, errors.New("proxy session fanout must be positive"))
	}

	if c.Publisher.MinDelay < 0 || c.Publisher.MaxDelay < c.Publisher.MinDelay {
		errs = append(errs, errors.New("publisher delay window is invalid"))
	}
	if c.Publisher.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Storage.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".snpublisher.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
