// Package config handles relay environment configuration and the messenger
// profile file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultRelayAddr = "127.0.0.1:3000"

// RelayConfig configures the relay binary. Values come from the
// environment; an optional .env file is loaded first.
type RelayConfig struct {
	// Addr is the listen address (TF_RELAY_ADDR).
	Addr string

	// NATSURL selects the JetStream broker when set (TF_NATS_URL); empty
	// means the in-memory broker.
	NATSURL string
}

// LoadRelay reads the relay configuration from the environment, after
// loading .env if present.
func LoadRelay() RelayConfig {
	// Missing .env is the common case, not an error.
	_ = godotenv.Load()

	cfg := RelayConfig{
		Addr:    os.Getenv("TF_RELAY_ADDR"),
		NATSURL: os.Getenv("TF_NATS_URL"),
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultRelayAddr
	}
	return cfg
}

// Contact is one counterpart from the connection-graph service, cached in
// the profile so the messenger can resolve sender names offline.
type Contact struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Profile is the messenger's per-user configuration file:
//
//	user_id: "u-1042"             - local user id from the identity provider
//	name: "Alice"                 - display name
//	relay_url: "ws://host/ws"     - relay websocket base URL
//	contacts:                     - counterpart directory
//	  - id: "u-2089"
//	    name: "Bob"
type Profile struct {
	UserID   string    `yaml:"user_id"`
	Name     string    `yaml:"name"`
	RelayURL string    `yaml:"relay_url"`
	Contacts []Contact `yaml:"contacts"`
}

// LoadProfile reads and validates a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the profile for the fields the messenger cannot run
// without.
func (p *Profile) Validate() error {
	var missing []string
	if p.UserID == "" {
		missing = append(missing, "user_id")
	}
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if p.RelayURL == "" {
		missing = append(missing, "relay_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("profile missing required fields: %s", strings.Join(missing, ", "))
	}
	if !strings.HasPrefix(p.RelayURL, "ws://") && !strings.HasPrefix(p.RelayURL, "wss://") {
		return fmt.Errorf("relay_url must be a ws:// or wss:// URL, got %q", p.RelayURL)
	}
	for i, c := range p.Contacts {
		if c.ID == "" {
			return fmt.Errorf("contacts[%d] missing id", i)
		}
	}
	return nil
}

// SessionURL returns the websocket URL for this user's transport session.
func (p *Profile) SessionURL() string {
	return strings.TrimSuffix(p.RelayURL, "/") + "/" + p.UserID
}

// Directory returns the contact list as an id-to-name map.
func (p *Profile) Directory() map[string]string {
	dir := make(map[string]string, len(p.Contacts))
	for _, c := range p.Contacts {
		dir[c.ID] = c.Name
	}
	return dir
}
