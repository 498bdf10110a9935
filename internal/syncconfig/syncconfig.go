package syncconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Backend names which remote store implementation to use.
type Backend string

const (
	BackendREST     Backend = "rest"
	BackendPostgres Backend = "postgres"
)

// SyncConfig holds remote sync settings.
type SyncConfig struct {
	URL         string `json:"url,omitempty"`
	AnonKey     string `json:"anon_key,omitempty"`
	Backend     string `json:"backend,omitempty"`      // "rest" (default) or "postgres"
	DatabaseURL string `json:"database_url,omitempty"` // postgres backend only
	Debounce    string `json:"debounce,omitempty"`     // duration string, default "3s"
	Interval    string `json:"interval,omitempty"`     // duration string, default "120s"
}

// Config is the global desk config stored at ~/.config/desk/config.json.
type Config struct {
	Sync    SyncConfig `json:"sync"`
	User    string     `json:"user,omitempty"`
	DataDir string     `json:"data_dir,omitempty"`
}

const (
	defaultDebounce = 3 * time.Second
	defaultInterval = 120 * time.Second
)

var (
	// ErrNoRemote is returned when neither a URL nor a DSN is configured.
	ErrNoRemote = errors.New("no remote configured: set DESK_REMOTE_URL or DESK_DATABASE_URL")
	// ErrBadAnonKey is returned for keys that are not a usable project key.
	ErrBadAnonKey = errors.New("invalid anon key")
)

// ConfigDir returns ~/.config/desk, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "desk")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads the global config from ~/.config/desk/config.json.
// A missing file yields an empty config.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the global config. The file holds the anon key, so
// it is written 0600.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0600)
}

// loadOrEmpty never fails; a broken config file behaves like a missing one
// for the individual getters.
func loadOrEmpty() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		return &Config{}
	}
	return cfg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetRemoteURL returns the hosted backend base URL.
// Priority: DESK_REMOTE_URL env > config.json sync.url.
func GetRemoteURL() string {
	return strings.TrimRight(firstNonEmpty(os.Getenv("DESK_REMOTE_URL"), loadOrEmpty().Sync.URL), "/")
}

// GetAnonKey returns the project anon key.
// Priority: DESK_ANON_KEY env > config.json sync.anon_key.
func GetAnonKey() string {
	return firstNonEmpty(os.Getenv("DESK_ANON_KEY"), loadOrEmpty().Sync.AnonKey)
}

// GetDatabaseURL returns the direct Postgres DSN.
// Priority: DESK_DATABASE_URL env > config.json sync.database_url.
func GetDatabaseURL() string {
	return firstNonEmpty(os.Getenv("DESK_DATABASE_URL"), loadOrEmpty().Sync.DatabaseURL)
}

// GetBackend returns the remote backend kind.
// Priority: DESK_BACKEND env > config.json sync.backend > rest.
// Unknown values fall back to rest.
func GetBackend() Backend {
	v := strings.ToLower(firstNonEmpty(os.Getenv("DESK_BACKEND"), loadOrEmpty().Sync.Backend))
	if Backend(v) == BackendPostgres {
		return BackendPostgres
	}
	return BackendREST
}

func parseDuration(env, fromFile string, def time.Duration) time.Duration {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	if fromFile != "" {
		if d, err := time.ParseDuration(fromFile); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// GetPushDebounce returns the quiet period before local edits are pushed.
// Priority: DESK_PUSH_DEBOUNCE env > config.json sync.debounce > 3s
func GetPushDebounce() time.Duration {
	return parseDuration("DESK_PUSH_DEBOUNCE", loadOrEmpty().Sync.Debounce, defaultDebounce)
}

// GetProbeInterval returns the liveness probe period.
// Priority: DESK_PROBE_INTERVAL env > config.json sync.interval > 120s
func GetProbeInterval() time.Duration {
	return parseDuration("DESK_PROBE_INTERVAL", loadOrEmpty().Sync.Interval, defaultInterval)
}

// GetDataDir returns where the local mirror lives.
// Priority: DESK_DATA_DIR env > config.json data_dir > ~/.local/share/desk
func GetDataDir() (string, error) {
	if v := firstNonEmpty(os.Getenv("DESK_DATA_DIR"), loadOrEmpty().DataDir); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "desk"), nil
}

// GetUser returns the configured current user id, or "" for the default.
// Priority: DESK_USER env > config.json user.
func GetUser() string {
	return firstNonEmpty(os.Getenv("DESK_USER"), loadOrEmpty().User)
}

// AnonKeyClaims are the claims read from a project key.
type AnonKeyClaims struct {
	Role      string
	Ref       string
	ExpiresAt time.Time
}

// ValidateAnonKey decodes the key without verifying its signature (only
// the server holds the secret) and rejects expired keys and keys whose
// role is neither anon nor service_role.
func ValidateAnonKey(key string, now time.Time) (AnonKeyClaims, error) {
	if key == "" {
		return AnonKeyClaims{}, fmt.Errorf("%w: empty", ErrBadAnonKey)
	}
	token, _, err := jwt.NewParser().ParseUnverified(key, jwt.MapClaims{})
	if err != nil {
		return AnonKeyClaims{}, fmt.Errorf("%w: %v", ErrBadAnonKey, err)
	}
	claims := token.Claims.(jwt.MapClaims)

	var out AnonKeyClaims
	out.Role, _ = claims["role"].(string)
	out.Ref, _ = claims["ref"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
		if !exp.Time.After(now) {
			return out, fmt.Errorf("%w: expired at %s", ErrBadAnonKey, exp.Time.Format(time.RFC3339))
		}
	}
	switch out.Role {
	case "anon", "service_role":
	default:
		return out, fmt.Errorf("%w: role %q", ErrBadAnonKey, out.Role)
	}
	return out, nil
}

// Settings is the resolved remote configuration.
type Settings struct {
	Backend       Backend
	URL           string
	AnonKey       string
	DatabaseURL   string
	PushDebounce  time.Duration
	ProbeInterval time.Duration
}

// Resolve gathers and validates the remote settings for the selected
// backend.
func Resolve(now time.Time) (Settings, error) {
	s := Settings{
		Backend:       GetBackend(),
		URL:           GetRemoteURL(),
		AnonKey:       GetAnonKey(),
		DatabaseURL:   GetDatabaseURL(),
		PushDebounce:  GetPushDebounce(),
		ProbeInterval: GetProbeInterval(),
	}
	switch s.Backend {
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return s, ErrNoRemote
		}
	default:
		if s.URL == "" {
			return s, ErrNoRemote
		}
		if _, err := ValidateAnonKey(s.AnonKey, now); err != nil {
			return s, err
		}
	}
	return s, nil
}
