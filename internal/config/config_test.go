package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/47anjan/tinderfood-sub000/internal/config"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}
	return path
}

func TestLoadProfile(t *testing.T) {
	path := writeProfile(t, `
user_id: "u-1042"
name: "Alice"
relay_url: "ws://127.0.0.1:3000/ws"
contacts:
  - id: "u-2089"
    name: "Bob"
  - id: "u-3077"
    name: "Cleo"
`)

	p, err := config.LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}

	if p.UserID != "u-1042" || p.Name != "Alice" {
		t.Errorf("identity = %q/%q, want u-1042/Alice", p.UserID, p.Name)
	}
	if got := p.SessionURL(); got != "ws://127.0.0.1:3000/ws/u-1042" {
		t.Errorf("SessionURL() = %q", got)
	}

	dir := p.Directory()
	if len(dir) != 2 {
		t.Fatalf("len(Directory()) = %d, want 2", len(dir))
	}
	if dir["u-2089"] != "Bob" {
		t.Errorf("Directory()[u-2089] = %q, want Bob", dir["u-2089"])
	}
}

func TestLoadProfile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing user id",
			content: "name: Alice\nrelay_url: ws://x/ws\n",
		},
		{
			name:    "missing name",
			content: "user_id: u1\nrelay_url: ws://x/ws\n",
		},
		{
			name:    "missing relay url",
			content: "user_id: u1\nname: Alice\n",
		},
		{
			name:    "relay url not websocket",
			content: "user_id: u1\nname: Alice\nrelay_url: http://x/ws\n",
		},
		{
			name:    "contact missing id",
			content: "user_id: u1\nname: Alice\nrelay_url: ws://x/ws\ncontacts:\n  - name: Bob\n",
		},
		{
			name:    "not yaml",
			content: "{{nope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProfile(t, tt.content)
			if _, err := config.LoadProfile(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadProfile_MissingFile(t *testing.T) {
	if _, err := config.LoadProfile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRelay_Defaults(t *testing.T) {
	t.Setenv("TF_RELAY_ADDR", "")
	t.Setenv("TF_NATS_URL", "")

	cfg := config.LoadRelay()
	if cfg.Addr != "127.0.0.1:3000" {
		t.Errorf("Addr = %q, want default 127.0.0.1:3000", cfg.Addr)
	}
	if cfg.NATSURL != "" {
		t.Errorf("NATSURL = %q, want empty", cfg.NATSURL)
	}
}

func TestLoadRelay_FromEnv(t *testing.T) {
	t.Setenv("TF_RELAY_ADDR", "0.0.0.0:8080")
	t.Setenv("TF_NATS_URL", "nats://127.0.0.1:4222")

	cfg := config.LoadRelay()
	if cfg.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q, want 0.0.0.0:8080", cfg.Addr)
	}
	if cfg.NATSURL != "nats://127.0.0.1:4222" {
		t.Errorf("NATSURL = %q, want nats://127.0.0.1:4222", cfg.NATSURL)
	}
}
