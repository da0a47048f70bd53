// Package config provides configuration management for the crawl engine.
// It defines the configuration structure, defaults, and validation.
package config

import (
	"os"
	"time"
)

// BasicAuth contains HTTP basic authentication credentials. The *_env fields
// name environment variables that take precedence over the literal values.
type BasicAuth struct {
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	UsernameEnv string `mapstructure:"username_env" yaml:"username_env"`
	PasswordEnv string `mapstructure:"password_env" yaml:"password_env"`
}

// BearerAuth contains a bearer token, literal or from the environment.
type BearerAuth struct {
	Token    string `mapstructure:"token" yaml:"token"`
	TokenEnv string `mapstructure:"token_env" yaml:"token_env"`
}

// Auth selects and configures request authentication.
type Auth struct {
	Type   string      `mapstructure:"type" yaml:"type"` // "basic" or "bearer"
	Basic  *BasicAuth  `mapstructure:"basic" yaml:"basic"`
	Bearer *BearerAuth `mapstructure:"bearer" yaml:"bearer"`
}

// Config holds the crawl engine configuration.
type Config struct {
	// Crawl shape
	SeedURLs        []string `mapstructure:"seed_urls" yaml:"seed_urls"`
	Concurrency     int      `mapstructure:"concurrency" yaml:"concurrency"`           // worker count
	HostParallelism int      `mapstructure:"host_parallelism" yaml:"host_parallelism"` // max in-flight per host
	MaxDepth        int      `mapstructure:"max_depth" yaml:"max_depth"`               // 0 = unlimited
	Limit           int      `mapstructure:"limit" yaml:"limit"`                       // stop after N fetched pages, 0 = unlimited

	// Politeness and timing
	RequestDelay   time.Duration `mapstructure:"request_delay" yaml:"request_delay"` // min per-host interval
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreRobots   bool          `mapstructure:"ignore_robots" yaml:"ignore_robots"`

	// Retry behavior
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"` // attempts per task including the first
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay"`

	// URL filtering
	FollowExternalHosts bool     `mapstructure:"follow_external_hosts" yaml:"follow_external_hosts"`
	IncludePatterns     []string `mapstructure:"include_patterns" yaml:"include_patterns"`
	ExcludePatterns     []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`

	// Persistence
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	RedisAddr    string `mapstructure:"redis_addr" yaml:"redis_addr"`

	// Shutdown and reporting
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
	StatsInterval time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`

	// Logging
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`

	Auth *Auth `mapstructure:"auth" yaml:"auth"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Concurrency:     8,
		HostParallelism: 2,
		RequestDelay:    500 * time.Millisecond,
		RequestTimeout:  30 * time.Second,
		UserAgent:       "Spinneret/1.0",
		MaxRetries:      4,
		RetryBaseDelay:  500 * time.Millisecond,
		RetryMaxDelay:   30 * time.Second,
		ShutdownGrace:   10 * time.Second,
		StatsInterval:   10 * time.Second,
		DatabasePath:    "./spinneret.db",
		LogLevel:        "info",
	}
}

// Validate checks the configuration, clamping the request delay to the
// minimum the limiter can usefully schedule.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.HostParallelism <= 0 {
		return ErrInvalidHostParallelism
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return ErrInvalidRetryDelay
	}
	if c.RequestDelay < 10*time.Millisecond {
		c.RequestDelay = 10 * time.Millisecond
	}
	return nil
}

// BasicAuthCredentials resolves the basic auth username and password,
// preferring environment variables when configured.
func (c *Config) BasicAuthCredentials() (username, password string) {
	if c.Auth == nil || c.Auth.Basic == nil {
		return "", ""
	}

	basic := c.Auth.Basic
	username = basic.Username
	if basic.UsernameEnv != "" {
		username = os.Getenv(basic.UsernameEnv)
	}
	password = basic.Password
	if basic.PasswordEnv != "" {
		password = os.Getenv(basic.PasswordEnv)
	}
	return username, password
}

// BearerToken resolves the bearer token, preferring the environment variable
// when configured.
func (c *Config) BearerToken() string {
	if c.Auth == nil || c.Auth.Bearer == nil {
		return ""
	}
	if c.Auth.Bearer.TokenEnv != "" {
		return os.Getenv(c.Auth.Bearer.TokenEnv)
	}
	return c.Auth.Bearer.Token
}
