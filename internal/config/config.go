// Package config handles mqttscope configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by [FindConfig] when no config file exists at
// the explicit path or at any of the search paths.
var ErrNotFound = errors.New("config file not found")

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./mqttscope.yaml, ~/.config/mqttscope/config.yaml,
// /etc/mqttscope/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"mqttscope.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mqttscope", "config.yaml"))
	}

	paths = append(paths, "/etc/mqttscope/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error wrapping [ErrNotFound] if nothing
// was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNotFound, DefaultSearchPaths())
}

// Protocol version names accepted in broker.protocol.
const (
	ProtocolV5   = "5"
	ProtocolV311 = "3.1.1"
)

// Config holds all mqttscope configuration.
type Config struct {
	Broker    BrokerConfig `yaml:"broker"`
	Output    OutputConfig `yaml:"output"`
	LogLevel  string       `yaml:"log_level"`
	LogFormat string       `yaml:"log_format"` // text (default) or json
}

// BrokerConfig describes the connection a session makes. Every field
// can be overridden from the command line.
type BrokerConfig struct {
	// URL is the broker URI. The scheme selects the transport:
	// tcp/mqtt, ssl/tls/mqtts, ws, wss.
	URL string `yaml:"url"`
	// Topic is the subscription filter. Empty subscribes to "#".
	Topic string `yaml:"topic"`
	// Username and Password are only sent when both are set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Protocol is "5" (default) or "3.1.1".
	Protocol string `yaml:"protocol"`
}

// Configured reports whether a broker URL is present.
func (b BrokerConfig) Configured() bool {
	return b.URL != ""
}

// OutputConfig tunes the terminal display.
type OutputConfig struct {
	// Buffer is the display's event subscription buffer. Events beyond
	// it are dropped, never queued against the session.
	Buffer int `yaml:"buffer"`
	// TableIntervalSec is how often the table view redraws.
	TableIntervalSec int `yaml:"table_interval_sec"`
	// MaxCell truncates table cells to this many runes.
	MaxCell int `yaml:"max_cell"`
	// StopGraceSec is how long the host waits for a stopped session to
	// notice its stop signal before tearing the connection down.
	StopGraceSec int `yaml:"stop_grace_sec"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file (${VAR}) are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration with no broker configured.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values with their defaults.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Broker.Protocol == "" {
		c.Broker.Protocol = ProtocolV5
	}
	if c.Output.Buffer <= 0 {
		c.Output.Buffer = 1024
	}
	if c.Output.TableIntervalSec <= 0 {
		c.Output.TableIntervalSec = 2
	}
	if c.Output.MaxCell <= 0 {
		c.Output.MaxCell = 60
	}
	if c.Output.StopGraceSec <= 0 {
		c.Output.StopGraceSec = 5
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, err := ParseLogFormat(c.LogFormat); err != nil {
		return fmt.Errorf("log_format: %w", err)
	}
	if _, err := NormalizeProtocol(c.Broker.Protocol); err != nil {
		return fmt.Errorf("broker.protocol: %w", err)
	}
	return nil
}

// NormalizeProtocol maps the accepted spellings of a protocol version to
// [ProtocolV5] or [ProtocolV311]. Empty means v5.
func NormalizeProtocol(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "5", "5.0", "v5", "mqttv5":
		return ProtocolV5, nil
	case "3.1.1", "311", "v311", "4", "mqttv311":
		return ProtocolV311, nil
	default:
		return "", fmt.Errorf("unknown protocol %q (valid: 5, 3.1.1)", s)
	}
}
