// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config collects every tunable the server reads from the environment.
// Loaded once in main and passed by reference.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string

	// RedisAddr enables match-history publishing when non-empty.
	RedisAddr  string
	RedisDB    int
	MatchQueue string

	// SweepInterval is how often the inactivity reaper runs.
	SweepInterval time.Duration
	// RoomInactiveMax is how long a room may sit untouched before the
	// reaper deletes it.
	RoomInactiveMax time.Duration

	// CountdownFrom is the first value of the pre-battle countdown.
	CountdownFrom int
	// CountdownTick is the interval between countdown values.
	CountdownTick time.Duration
}

// Load reads the environment (godotenv autoload runs in main) and applies
// the deployment defaults.
func Load() *Config {
	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	return &Config{
		Addr:            addr,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		MatchQueue:      getEnv("MATCH_QUEUE_NAME", "typebattle_matches"),
		SweepInterval:   time.Duration(getEnvInt("ROOM_SWEEP_INTERVAL_SEC", 300)) * time.Second,
		RoomInactiveMax: time.Duration(getEnvInt("ROOM_INACTIVE_MAX_SEC", 600)) * time.Second,
		CountdownFrom:   getEnvInt("COUNTDOWN_FROM", 3),
		CountdownTick:   time.Duration(getEnvInt("COUNTDOWN_TICK_MS", 1000)) * time.Millisecond,
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
