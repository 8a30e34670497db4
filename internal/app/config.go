package app

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr        string
	MongoURI        string
	MongoDatabase   string
	LogLevel        string
	LogFormat       string
	CORSAllowedOrigins []string // empty = allow all (dev mode)

	// Demo playback tunables.
	DemoWindowDurationMs int64
	DemoAdPositionMs     int64 // 0 = no ad break
	DemoAdDurationMs     int64

	// Engine tunables.
	BackBufferMs        int64
	MinBufferMs         int64
	MaxBufferMs         int64
	BufferForPlaybackMs int64

	RateLimitPerSecond float64
	RateLimitBurst     int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DB", "mediaplayer"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		CORSAllowedOrigins: parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		DemoWindowDurationMs: getEnvInt64("DEMO_WINDOW_DURATION_MS", 30000),
		DemoAdPositionMs:     getEnvInt64("DEMO_AD_POSITION_MS", 0),
		DemoAdDurationMs:     getEnvInt64("DEMO_AD_DURATION_MS", 5000),

		BackBufferMs:        getEnvInt64("PLAYER_BACK_BUFFER_MS", 0),
		MinBufferMs:         getEnvInt64("PLAYER_MIN_BUFFER_MS", 15000),
		MaxBufferMs:         getEnvInt64("PLAYER_MAX_BUFFER_MS", 50000),
		BufferForPlaybackMs: getEnvInt64("PLAYER_BUFFER_FOR_PLAYBACK_MS", 2500),

		RateLimitPerSecond: getEnvFloat("HTTP_RATE_LIMIT_PER_SECOND", 50),
		RateLimitBurst:     int(getEnvInt64("HTTP_RATE_LIMIT_BURST", 100)),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
