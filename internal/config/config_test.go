package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("VIDEOSDK_ENDPOINT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.DatabaseURL != "sqlite::memory:" {
		t.Fatalf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "sqlite::memory:")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.VideoSDKEndpoint != "https://api.videosdk.live/v2" {
		t.Fatalf("VideoSDKEndpoint = %q, want default endpoint", cfg.VideoSDKEndpoint)
	}
}

func TestLoad_TrimsWhitespace(t *testing.T) {
	t.Setenv("VIDEOSDK_API_KEY", "  key-123  ")
	t.Setenv("VIDEOSDK_SECRET_KEY", " s3cret ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.VideoSDKAPIKey != "key-123" {
		t.Fatalf("VideoSDKAPIKey = %q, want %q", cfg.VideoSDKAPIKey, "key-123")
	}
	if cfg.VideoSDKSecret != "s3cret" {
		t.Fatalf("VideoSDKSecret = %q, want %q", cfg.VideoSDKSecret, "s3cret")
	}
}
