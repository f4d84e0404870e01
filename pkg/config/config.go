// Package config loads replica process configuration from YAML, with
// environment-variable substitution, following the teacher's
// anchor_config.go pattern: struct tags, a `${VAR}` / `${VAR:-default}`
// substitution regex, and a Duration wrapper for human-readable durations.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// ReplicaConfig is the top-level configuration for one cmd/replica process:
// its identity within a threshold signing group, where to find its peers,
// how to reach its event store, and where to listen.
type ReplicaConfig struct {
	Environment string `yaml:"environment"`

	Group     GroupSettings     `yaml:"group"`
	Signer    SignerSettings    `yaml:"signer"`
	Server    ServerSettings    `yaml:"server"`
	EventStore EventStoreSettings `yaml:"event_store"`
	Genesis   GenesisSettings   `yaml:"genesis"`
	Metrics   MetricsSettings   `yaml:"metrics"`
}

// GroupSettings describes this replica's threshold signing group.
type GroupSettings struct {
	// KeyIndex is this replica's 0-based participant index within the group
	// key set described by PeerCommitsHex.
	KeyIndex int `yaml:"key_index"`
	// Threshold is the group's (t, n) degree: t+1 shares combine a signature.
	Threshold int `yaml:"threshold"`
	// PeerCommitsHex are the group public key set's polynomial commitments,
	// hex-encoded in degree order (see bls.PublicKeySet.Commits).
	PeerCommitsHex []string `yaml:"peer_commits_hex"`
}

// SignerSettings configures how this replica reaches its secret key share.
type SignerSettings struct {
	// SecretKeySharePath is the file holding this replica's hex-encoded
	// secret key share, used by signer.LoadFileGateway.
	SecretKeySharePath string `yaml:"secret_key_share_path"`
}

// ServerSettings configures the HTTP listener exposing replica operations.
type ServerSettings struct {
	ListenAddr      string   `yaml:"listen_addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// EventStoreSettings configures the durable replay log.
type EventStoreSettings struct {
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// GenesisSettings configures the one-shot minting ceremony, when this
// process is the one responsible for running it.
type GenesisSettings struct {
	Enabled     bool   `yaml:"enabled"`
	AmountNano  uint64 `yaml:"amount_nano"`
}

// MetricsSettings configures the Prometheus exposition endpoint.
type MetricsSettings struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like
// "5s" or "1m30s", matching the teacher's anchor_config.go Duration type.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Load reads path, substitutes ${VAR} / ${VAR:-default} environment
// variable references, and parses the result as a ReplicaConfig.
func Load(path string) (*ReplicaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg ReplicaConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *ReplicaConfig) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8443"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(10 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(15 * time.Second)
	}
	if c.EventStore.MaxOpenConns == 0 {
		c.EventStore.MaxOpenConns = 10
	}
	if c.EventStore.MaxIdleConns == 0 {
		c.EventStore.MaxIdleConns = 5
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} references with environment
// variable values, falling back to the :- default when unset or empty.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
