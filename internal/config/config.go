// Package config loads process configuration from the environment and holds
// the process-wide settings that script code can read and the Set host call
// mutates at runtime.
package config

import (
	"os"
	"strconv"
)

// Config is the set of boot-time options read once at startup.
type Config struct {
	ScriptDir         string // directory scanned for *.lua plugin files
	ServerLogPath     string // append-on-every-write log sink path
	ConsoleEnabled    bool   // false disables the interactive input/output goroutines
	EventInnerTimeout int    // seconds, per-handler bounded wait (§4.4 "inner wait")
	EventOuterTimeout int    // seconds, bound on one event's whole fan-out, applied to every dispatch (there is no per-call wait flag)
	RedisAddr         string // empty disables the registry read-through cache
	NATSURL           string // empty disables the cross-process event bus
	AdminHTTPAddr     string // empty disables the operator introspection endpoint
}

// Load reads configuration from the environment, falling back to defaults
// that match a single-process, file-backed deployment.
func Load() Config {
	return Config{
		ScriptDir:         getEnv("SCRIPT_DIR", "./Resources/Server"),
		ServerLogPath:     getEnv("SERVER_LOG_PATH", "Server.log"),
		ConsoleEnabled:    getEnvBool("CONSOLE_ENABLED", true),
		EventInnerTimeout: getEnvInt("EVENT_INNER_TIMEOUT_SECONDS", 5),
		EventOuterTimeout: getEnvInt("EVENT_OUTER_TIMEOUT_SECONDS", 6),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		NATSURL:           getEnv("NATS_URL", ""),
		AdminHTTPAddr:     getEnv("ADMIN_HTTP_ADDR", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
