// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Per-dependency circuit breaker configuration
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	Server   ServerConfig
	LLM      LLMConfig
	Backend  BackendConfig
	Breakers BreakerSet
	Stream   StreamConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port int
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig holds reasoning backend configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
	CallTimeout time.Duration
	MaxTurns    int
}

// BackendConfig holds tool backend configuration.
type BackendConfig struct {
	// Kind selects the tool backend: "local" (in-process SQLite store)
	// or "mcp" (external MCP server over stdio).
	Kind        string
	DBPath      string
	MCPCommand  string
	MCPArgs     []string
	CallTimeout time.Duration
}

// BreakerConfig holds one circuit breaker's tuning.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	ProbeQuota       int
}

// BreakerSet holds the per-dependency breaker configurations.
type BreakerSet struct {
	ToolBackend      BreakerConfig
	ReasoningBackend BreakerConfig
}

// StreamConfig holds event streaming configuration.
type StreamConfig struct {
	MaxInputLength    int
	HeartbeatInterval time.Duration
	EventBuffer       int
}

// New loads settings from environment variables.
// Returns an error if any variable contains an invalid value.
func New() (Settings, error) {
	var s Settings
	var err error

	if s.Server.Host = os.Getenv("TASKPILOT_HOST"); s.Server.Host == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Server.Port, err = getEnvInt("TASKPILOT_PORT", 8080); err != nil {
		return Settings{}, err
	}

	if s.LogLevel = os.Getenv("LOG_LEVEL"); s.LogLevel == "" {
		s.LogLevel = "info"
	}

	s.LLM.Provider = os.Getenv("LLM_PROVIDER")
	if s.LLM.Provider == "" {
		s.LLM.Provider = "gemini"
	}
	s.LLM.Model = os.Getenv("LLM_MODEL")
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", 4096); err != nil {
		return Settings{}, err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", 0.7); err != nil {
		return Settings{}, err
	}
	if s.LLM.CallTimeout, err = getEnvSeconds("REASONING_CALL_TIMEOUT", 30*time.Second); err != nil {
		return Settings{}, err
	}
	if s.LLM.MaxTurns, err = getEnvInt("REASONING_MAX_TURNS", 10); err != nil {
		return Settings{}, err
	}

	if s.Backend.Kind = os.Getenv("TOOL_BACKEND"); s.Backend.Kind == "" {
		s.Backend.Kind = "local"
	}
	if s.Backend.Kind != "local" && s.Backend.Kind != "mcp" {
		return Settings{}, fmt.Errorf("invalid value for TOOL_BACKEND: %q (want local or mcp)", s.Backend.Kind)
	}
	if s.Backend.DBPath = os.Getenv("TODO_DB_PATH"); s.Backend.DBPath == "" {
		s.Backend.DBPath = ".taskpilot/todos.db"
	}
	s.Backend.MCPCommand = os.Getenv("MCP_SERVER_COMMAND")
	if args := os.Getenv("MCP_SERVER_ARGS"); args != "" {
		s.Backend.MCPArgs = splitComma(args)
	}
	if s.Backend.CallTimeout, err = getEnvSeconds("TOOL_CALL_TIMEOUT", 30*time.Second); err != nil {
		return Settings{}, err
	}

	if s.Breakers.ToolBackend, err = breakerFromEnv("TOOL_BACKEND", BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		ProbeQuota:       3,
	}); err != nil {
		return Settings{}, err
	}
	if s.Breakers.ReasoningBackend, err = breakerFromEnv("REASONING_BACKEND", BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
		ProbeQuota:       2,
	}); err != nil {
		return Settings{}, err
	}

	if s.Stream.MaxInputLength, err = getEnvInt("MAX_INPUT_LENGTH", 5000); err != nil {
		return Settings{}, err
	}
	if s.Stream.HeartbeatInterval, err = getEnvSeconds("HEARTBEAT_INTERVAL", 15*time.Second); err != nil {
		return Settings{}, err
	}
	if s.Stream.EventBuffer, err = getEnvInt("EVENT_BUFFER", 64); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// MustNew loads settings and panics on invalid configuration.
// Use only when configuration errors should be fatal at startup.
func MustNew() Settings {
	s, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return s
}

// breakerFromEnv reads one breaker's tuning, e.g. for prefix "TOOL_BACKEND":
// CIRCUIT_BREAKER_TOOL_BACKEND_FAILURE_THRESHOLD, _RECOVERY_TIMEOUT, _PROBE_QUOTA.
func breakerFromEnv(prefix string, defaults BreakerConfig) (BreakerConfig, error) {
	var cfg BreakerConfig
	var err error

	if cfg.FailureThreshold, err = getEnvInt("CIRCUIT_BREAKER_"+prefix+"_FAILURE_THRESHOLD", defaults.FailureThreshold); err != nil {
		return BreakerConfig{}, err
	}
	if cfg.RecoveryTimeout, err = getEnvSeconds("CIRCUIT_BREAKER_"+prefix+"_RECOVERY_TIMEOUT", defaults.RecoveryTimeout); err != nil {
		return BreakerConfig{}, err
	}
	if cfg.ProbeQuota, err = getEnvInt("CIRCUIT_BREAKER_"+prefix+"_PROBE_QUOTA", defaults.ProbeQuota); err != nil {
		return BreakerConfig{}, err
	}

	if cfg.FailureThreshold < 1 {
		return BreakerConfig{}, fmt.Errorf("breaker %s: failure threshold must be >= 1", prefix)
	}
	if cfg.RecoveryTimeout < 0 {
		return BreakerConfig{}, fmt.Errorf("breaker %s: recovery timeout must be positive", prefix)
	}
	if cfg.ProbeQuota < 1 {
		return BreakerConfig{}, fmt.Errorf("breaker %s: probe quota must be >= 1", prefix)
	}

	return cfg, nil
}

// splitComma parses a comma-separated argument list, dropping empty entries.
func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return time.Duration(secs) * time.Second, nil
}
