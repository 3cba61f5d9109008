package configuration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Presence.HeartbeatInterval.Duration != 5*time.Second ||
		cfg.Presence.JanitorInterval.Duration != 15*time.Minute ||
		cfg.Presence.StaleAfter.Duration != 30*time.Minute {
		t.Fatalf("unexpected presence defaults %+v", cfg.Presence)
	}
	if cfg.Server.SocketRoute != "ws" || cfg.Store.Driver != "mongo" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Server, cfg.Store)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"app_port": 9000, "socket_port": 9001, "socket_route": "chat"},
		"store": {"driver": "memory"},
		"presence": {"heartbeat_interval": "2s", "pong_wait": "6s", "stale_after": "10m"},
		"redis": {"addr": "localhost:6379", "messages_per_minute": 30}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.AppPort != 9000 || cfg.Server.SocketRoute != "chat" || cfg.Store.Driver != "memory" {
		t.Fatalf("file values not applied: %+v %+v", cfg.Server, cfg.Store)
	}
	if cfg.Presence.HeartbeatInterval.Duration != 2*time.Second || cfg.Presence.StaleAfter.Duration != 10*time.Minute {
		t.Fatalf("durations not parsed: %+v", cfg.Presence)
	}
	// Untouched keys keep their defaults.
	if cfg.Presence.JanitorInterval.Duration != 15*time.Minute || cfg.Hub.Workers != 16 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Presence, cfg.Hub)
	}
	if cfg.Redis.MessagesPerMinute != 30 {
		t.Fatalf("redis limit = %d", cfg.Redis.MessagesPerMinute)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"store": {"driver": "memory"}, "server": {"app_port": 9000}}`)
	t.Setenv("CHAT_APP_PORT", "7000")
	t.Setenv("CHAT_STALE_AFTER", "45m")
	t.Setenv("CHAT_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.AppPort != 7000 {
		t.Fatalf("app_port = %d, want env value", cfg.Server.AppPort)
	}
	if cfg.Presence.StaleAfter.Duration != 45*time.Minute {
		t.Fatalf("stale_after = %v", cfg.Presence.StaleAfter)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("allowed_origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("jwt secret not applied")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "parse"},
		{"bad duration", `{"presence": {"pong_wait": "soon"}}`, "duration"},
		{"unknown driver", `{"store": {"driver": "cassandra"}}`, "store.driver"},
		{"pong before heartbeat", `{"store": {"driver": "memory"}, "presence": {"heartbeat_interval": "10s", "pong_wait": "5s"}}`, "pong_wait"},
		{"zero janitor", `{"store": {"driver": "memory"}, "presence": {"janitor_interval": "0s"}}`, "janitor_interval"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file must fail")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "debug", Development: true}); err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Fatal("unknown level must fail")
	}
}

func TestBuildContainer_MemoryStore(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "memory"
	cfg.Log.Level = "error"

	c, err := BuildContainer(&cfg)
	if err != nil {
		t.Fatalf("BuildContainer: %v", err)
	}
	if c.ChatHandler == nil || c.MonitorHandler == nil || c.Hub == nil || c.Janitor == nil || c.ChatService == nil {
		t.Fatalf("container not fully wired: %+v", c)
	}
	if c.Verifier.Enabled() {
		t.Fatal("verifier must be disabled without a secret")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
