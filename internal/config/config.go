package config

import (
	"fmt"
	"log"
	"os"
	"time"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	DBPath          string
	ServerURL       string
	QueueBackend    string
	RedisAddr       string
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	DrainInterval   time.Duration
	DrainBackoff    time.Duration
	DrainMaxBackoff time.Duration
	RateLimitPerMin int
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() App {
	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8090"),
		DBPath:          getEnv("DB_PATH", "attendance.db"),
		ServerURL:       getEnv("SERVER_URL", "http://192.168.1.39:5000"),
		QueueBackend:    getEnv("QUEUE_BACKEND", "memory"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		ConnectTimeout:  durationEnv("CONNECT_TIMEOUT", 3*time.Second),
		RequestTimeout:  durationEnv("REQUEST_TIMEOUT", 5*time.Second),
		DrainInterval:   durationEnv("DRAIN_INTERVAL", 15*time.Minute),
		DrainBackoff:    durationEnv("DRAIN_BACKOFF", 30*time.Second),
		DrainMaxBackoff: durationEnv("DRAIN_MAX_BACKOFF", 10*time.Minute),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 240),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
