package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	LogLevel    string

	VideoSDKAPIKey   string
	VideoSDKSecret   string
	VideoSDKEndpoint string
}

func Load() (Config, error) {
	// A missing .env file is fine; real env vars win either way.
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: getEnv("DATABASE_URL", "sqlite::memory:"),
		LogLevel:    strings.TrimSpace(getEnv("LOG_LEVEL", "info")),

		VideoSDKAPIKey:   strings.TrimSpace(getEnv("VIDEOSDK_API_KEY", "")),
		VideoSDKSecret:   strings.TrimSpace(getEnv("VIDEOSDK_SECRET_KEY", "")),
		VideoSDKEndpoint: strings.TrimSpace(getEnv("VIDEOSDK_ENDPOINT", "https://api.videosdk.live/v2")),
	}

	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.VideoSDKEndpoint == "" {
		return Config{}, fmt.Errorf("VIDEOSDK_ENDPOINT must not be empty")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultValue
	}
	return v
}
