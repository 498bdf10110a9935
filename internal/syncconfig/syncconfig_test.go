package syncconfig

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// writeTestConfig points HOME at a temp dir holding ~/.config/desk/config.json.
func writeTestConfig(t *testing.T, cfg *Config) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	dir := filepath.Join(tmpDir, ".config", "desk")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// clearEnv blanks every desk variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DESK_REMOTE_URL", "DESK_ANON_KEY", "DESK_BACKEND", "DESK_DATABASE_URL",
		"DESK_PUSH_DEBOUNCE", "DESK_PROBE_INTERVAL", "DESK_DATA_DIR", "DESK_USER",
	} {
		t.Setenv(k, "")
	}
}

func makeKey(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestDefaults(t *testing.T) {
	writeTestConfig(t, &Config{})
	clearEnv(t)

	if d := GetPushDebounce(); d != 3*time.Second {
		t.Errorf("debounce = %v, want 3s", d)
	}
	if d := GetProbeInterval(); d != 120*time.Second {
		t.Errorf("interval = %v, want 120s", d)
	}
	if b := GetBackend(); b != BackendREST {
		t.Errorf("backend = %s, want rest", b)
	}
	dir, err := GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir: %v", err)
	}
	if filepath.Base(dir) != "desk" || filepath.Base(filepath.Dir(dir)) != "share" {
		t.Errorf("data dir = %s", dir)
	}
}

func TestConfigFileValues(t *testing.T) {
	writeTestConfig(t, &Config{
		Sync: SyncConfig{
			URL:      "https://proj.example.co/",
			Backend:  "postgres",
			Debounce: "10s",
			Interval: "5m",
		},
		User:    "u2",
		DataDir: "/tmp/desk-data",
	})
	clearEnv(t)

	if u := GetRemoteURL(); u != "https://proj.example.co" {
		t.Errorf("url = %q, trailing slash should be trimmed", u)
	}
	if b := GetBackend(); b != BackendPostgres {
		t.Errorf("backend = %s", b)
	}
	if d := GetPushDebounce(); d != 10*time.Second {
		t.Errorf("debounce = %v", d)
	}
	if d := GetProbeInterval(); d != 5*time.Minute {
		t.Errorf("interval = %v", d)
	}
	if u := GetUser(); u != "u2" {
		t.Errorf("user = %q", u)
	}
	if dir, _ := GetDataDir(); dir != "/tmp/desk-data" {
		t.Errorf("data dir = %q", dir)
	}
}

func TestEnvOverridesConfig(t *testing.T) {
	writeTestConfig(t, &Config{Sync: SyncConfig{URL: "https://file.example", Debounce: "10s", Backend: "postgres"}, User: "u2"})
	clearEnv(t)

	t.Setenv("DESK_REMOTE_URL", "https://env.example")
	t.Setenv("DESK_PUSH_DEBOUNCE", "500ms")
	t.Setenv("DESK_BACKEND", "REST")
	t.Setenv("DESK_USER", "u3")

	if u := GetRemoteURL(); u != "https://env.example" {
		t.Errorf("url = %q", u)
	}
	if d := GetPushDebounce(); d != 500*time.Millisecond {
		t.Errorf("debounce = %v", d)
	}
	if b := GetBackend(); b != BackendREST {
		t.Errorf("backend = %s", b)
	}
	if u := GetUser(); u != "u3" {
		t.Errorf("user = %q", u)
	}
}

func TestInvalidDurationFallsThrough(t *testing.T) {
	writeTestConfig(t, &Config{Sync: SyncConfig{Debounce: "7s"}})
	clearEnv(t)

	t.Setenv("DESK_PUSH_DEBOUNCE", "soon")
	if d := GetPushDebounce(); d != 7*time.Second {
		t.Errorf("invalid env should fall through to config, got %v", d)
	}
	t.Setenv("DESK_PROBE_INTERVAL", "-1s")
	if d := GetProbeInterval(); d != 120*time.Second {
		t.Errorf("negative env should fall through to default, got %v", d)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	writeTestConfig(t, &Config{})
	want := &Config{Sync: SyncConfig{URL: "https://x.example", AnonKey: "k"}, User: "u1"}
	if err := SaveConfig(want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Sync.URL != want.Sync.URL || got.Sync.AnonKey != "k" || got.User != "u1" {
		t.Fatalf("round trip = %+v", got)
	}
	dir, _ := ConfigDir()
	info, err := os.Stat(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestValidateAnonKey(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(365 * 24 * time.Hour).Unix()
	past := now.Add(-time.Hour).Unix()

	tests := []struct {
		name    string
		claims  jwt.MapClaims
		wantErr bool
	}{
		{"anon", jwt.MapClaims{"role": "anon", "ref": "proj", "exp": future}, false},
		{"service role", jwt.MapClaims{"role": "service_role", "exp": future}, false},
		{"no expiry", jwt.MapClaims{"role": "anon"}, false},
		{"expired", jwt.MapClaims{"role": "anon", "exp": past}, true},
		{"user token", jwt.MapClaims{"role": "authenticated", "exp": future}, true},
		{"no role", jwt.MapClaims{"exp": future}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateAnonKey(makeKey(t, tt.claims), now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrBadAnonKey) {
				t.Fatalf("err = %v, want ErrBadAnonKey", err)
			}
			if tt.name == "anon" && claims.Ref != "proj" {
				t.Fatalf("ref = %q", claims.Ref)
			}
		})
	}

	if _, err := ValidateAnonKey("not-a-jwt", now); !errors.Is(err, ErrBadAnonKey) {
		t.Fatalf("garbage key err = %v", err)
	}
	if _, err := ValidateAnonKey("", now); !errors.Is(err, ErrBadAnonKey) {
		t.Fatalf("empty key err = %v", err)
	}
}

func TestResolve(t *testing.T) {
	writeTestConfig(t, &Config{})
	clearEnv(t)
	now := time.Now()

	if _, err := Resolve(now); !errors.Is(err, ErrNoRemote) {
		t.Fatalf("unconfigured err = %v, want ErrNoRemote", err)
	}

	t.Setenv("DESK_REMOTE_URL", "https://proj.example.co")
	t.Setenv("DESK_ANON_KEY", makeKey(t, jwt.MapClaims{"role": "anon"}))
	s, err := Resolve(now)
	if err != nil {
		t.Fatalf("Resolve rest: %v", err)
	}
	if s.Backend != BackendREST || s.URL != "https://proj.example.co" {
		t.Fatalf("settings = %+v", s)
	}

	t.Setenv("DESK_BACKEND", "postgres")
	if _, err := Resolve(now); !errors.Is(err, ErrNoRemote) {
		t.Fatalf("postgres without DSN err = %v", err)
	}
	t.Setenv("DESK_DATABASE_URL", "postgres://localhost/desk")
	if s, err := Resolve(now); err != nil || s.DatabaseURL == "" {
		t.Fatalf("Resolve postgres = %+v, %v", s, err)
	}
}
