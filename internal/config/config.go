// Package config loads environment-driven configuration for the routing
// engine and its ambient collaborators.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-tunable setting recognized by the engine.
// It is built once at startup and passed down explicitly; nothing reads the
// environment directly outside this package.
type Config struct {
	LogLevel string

	CircuitBreakerFailureThreshold int
	CircuitBreakerResetTimeout     time.Duration
	// CircuitBreakerMonitoringWindow is reserved: carried for configuration
	// compatibility but unused by the breaker, which counts failures
	// consecutively rather than within a sliding window (see DESIGN.md).
	CircuitBreakerMonitoringWindow time.Duration

	AllowedOrigins []string

	Port string

	StoreBackend string // "memory" or "postgres"
	DatabaseURL  string

	PriorityOracleURL string

	PushInterval time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RedisURL          string
}

// Load reads configuration from the process environment, applying the
// defaults from spec §6.
func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("circuit_breaker_failure_threshold", 3)
	v.SetDefault("circuit_breaker_reset_timeout", 60000)
	v.SetDefault("circuit_breaker_monitoring_window", 300000)
	v.SetDefault("allowed_origins", "")
	v.SetDefault("port", "8080")
	v.SetDefault("store_backend", "memory")
	v.SetDefault("database_url", "")
	v.SetDefault("priority_oracle_url", "")
	v.SetDefault("push_interval_ms", 1000)
	v.SetDefault("rate_limit_requests", 100)
	v.SetDefault("rate_limit_window_ms", 60000)
	v.SetDefault("redis_url", "")

	for _, key := range []string{
		"log_level", "circuit_breaker_failure_threshold", "circuit_breaker_reset_timeout",
		"circuit_breaker_monitoring_window", "allowed_origins", "port", "store_backend",
		"database_url", "priority_oracle_url", "push_interval_ms", "rate_limit_requests",
		"rate_limit_window_ms", "redis_url",
	} {
		_ = v.BindEnv(key)
	}

	origins := v.GetString("allowed_origins")
	var originList []string
	if origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				originList = append(originList, trimmed)
			}
		}
	}

	return Config{
		LogLevel:                       strings.ToLower(v.GetString("log_level")),
		CircuitBreakerFailureThreshold: v.GetInt("circuit_breaker_failure_threshold"),
		CircuitBreakerResetTimeout:     time.Duration(v.GetInt64("circuit_breaker_reset_timeout")) * time.Millisecond,
		CircuitBreakerMonitoringWindow: time.Duration(v.GetInt64("circuit_breaker_monitoring_window")) * time.Millisecond,
		AllowedOrigins:                 originList,
		Port:                           v.GetString("port"),
		StoreBackend:                   v.GetString("store_backend"),
		DatabaseURL:                    v.GetString("database_url"),
		PriorityOracleURL:              v.GetString("priority_oracle_url"),
		PushInterval:                   time.Duration(v.GetInt64("push_interval_ms")) * time.Millisecond,
		RateLimitRequests:              v.GetInt("rate_limit_requests"),
		RateLimitWindow:                time.Duration(v.GetInt64("rate_limit_window_ms")) * time.Millisecond,
		RedisURL:                       v.GetString("redis_url"),
	}
}
