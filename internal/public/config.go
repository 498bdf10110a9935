package public

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the public server configuration, loaded from environment
// variables.
type Config struct {
	ListenAddr      string
	BaseURL         string // prefix for status links handed back to submitters
	ShutdownTimeout time.Duration

	RateLimitSubmit int      // POST /public-request per IP per minute (default: 10)
	AllowedOrigins  []string // CORS origins for the web form; empty = same-origin only
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8090",
		BaseURL:         "http://localhost:8090",
		ShutdownTimeout: 10 * time.Second,
		RateLimitSubmit: 10,
	}

	if v := os.Getenv("DESK_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DESK_PUBLIC_BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("DESK_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("DESK_RATE_LIMIT_SUBMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitSubmit = n
		}
	}
	if v := os.Getenv("DESK_CORS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	return cfg
}
