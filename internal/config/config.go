package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultPageLimit     = "20"
	defaultHTTPTimeout   = "15s"
	defaultWriteWait     = "10s"
	defaultPongWait      = "60s"
	defaultSendBuffer    = "256"
	defaultTypingIdle    = "1000ms"
	defaultMaxFrameBytes = "524288" // 512 KB, same as the API's frame limit
)

// Config holds the runtime settings of the realtime client core.
type Config struct {
	APIBaseURL string // REST API root, e.g. https://api.motorent.io/api/v1
	StreamURL  string // websocket endpoint, e.g. wss://api.motorent.io/ws/events

	PageLimit     int
	HTTPTimeout   time.Duration
	WriteWait     time.Duration
	PongWait      time.Duration
	SendBuffer    int
	TypingIdle    time.Duration
	MaxFrameBytes int64
}

// Load reads configuration from the environment. API_BASE_URL and STREAM_URL
// have no defaults; everything else falls back to sane values.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("API_BASE_URL")), "/")
	cfg.StreamURL = strings.TrimSpace(os.Getenv("STREAM_URL"))

	var err error
	if cfg.PageLimit, err = parseIntEnv("PAGE_LIMIT", defaultPageLimit); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = parseDurationEnv("HTTP_TIMEOUT", defaultHTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.WriteWait, err = parseDurationEnv("WS_WRITE_WAIT", defaultWriteWait); err != nil {
		return nil, err
	}
	if cfg.PongWait, err = parseDurationEnv("WS_PONG_WAIT", defaultPongWait); err != nil {
		return nil, err
	}
	if cfg.SendBuffer, err = parseIntEnv("WS_SEND_BUFFER", defaultSendBuffer); err != nil {
		return nil, err
	}
	if cfg.TypingIdle, err = parseDurationEnv("TYPING_IDLE", defaultTypingIdle); err != nil {
		return nil, err
	}
	frame, err := parseIntEnv("WS_MAX_FRAME_BYTES", defaultMaxFrameBytes)
	if err != nil {
		return nil, err
	}
	cfg.MaxFrameBytes = int64(frame)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL must not be empty")
	}
	if cfg.StreamURL == "" {
		return fmt.Errorf("STREAM_URL must not be empty")
	}
	if !strings.HasPrefix(cfg.StreamURL, "ws://") && !strings.HasPrefix(cfg.StreamURL, "wss://") {
		return fmt.Errorf("STREAM_URL must use ws:// or wss://, got %q", cfg.StreamURL)
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > 100 {
		return fmt.Errorf("PAGE_LIMIT must be in 1..100")
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0")
	}
	if cfg.WriteWait <= 0 {
		return fmt.Errorf("WS_WRITE_WAIT must be > 0")
	}
	if cfg.PongWait <= cfg.WriteWait {
		return fmt.Errorf("WS_PONG_WAIT must be greater than WS_WRITE_WAIT")
	}
	if cfg.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be > 0")
	}
	if cfg.TypingIdle <= 0 {
		return fmt.Errorf("TYPING_IDLE must be > 0")
	}
	if cfg.MaxFrameBytes <= 0 {
		return fmt.Errorf("WS_MAX_FRAME_BYTES must be > 0")
	}
	return nil
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
