package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr string

	InsightsBaseURL  string
	InsightsTimeout  time.Duration
	InsightsCacheTTL time.Duration

	RedisURL    string
	DatabaseURL string

	StockfishPath      string
	EngineThreads      int
	EngineHashMB       int
	EngineSkillLevel   int
	EnginePoolCapacity int

	SessionIdleTTL time.Duration
	MaxSessions    int

	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:           ":8080",
		InsightsTimeout:    10 * time.Second,
		InsightsCacheTTL:   5 * time.Minute,
		EngineThreads:      1,
		EngineHashMB:       64,
		EngineSkillLevel:   20,
		EnginePoolCapacity: 4,
		SessionIdleTTL:     30 * time.Minute,
		MaxSessions:        64,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.InsightsBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("INSIGHTS_BASE_URL")), "/")
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if n, ok := positiveInt("INSIGHTS_TIMEOUT_SEC"); ok {
		cfg.InsightsTimeout = time.Duration(n) * time.Second
	}
	// 0 disables the cache
	if v := strings.TrimSpace(os.Getenv("INSIGHTS_CACHE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.InsightsCacheTTL = time.Duration(n) * time.Second
		}
	}
	if n, ok := positiveInt("ENGINE_THREADS"); ok {
		cfg.EngineThreads = n
	}
	if n, ok := positiveInt("ENGINE_HASH_MB"); ok {
		cfg.EngineHashMB = n
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_SKILL_LEVEL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 20 {
			cfg.EngineSkillLevel = n
		}
	}
	if n, ok := positiveInt("ENGINE_POOL_CAPACITY"); ok {
		cfg.EnginePoolCapacity = n
	}
	if n, ok := positiveInt("SESSION_IDLE_TTL_SEC"); ok {
		cfg.SessionIdleTTL = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("MAX_SESSIONS"); ok {
		cfg.MaxSessions = n
	}

	if cfg.InsightsBaseURL == "" {
		return nil, errors.New("INSIGHTS_BASE_URL is required")
	}

	return cfg, nil
}

func positiveInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
