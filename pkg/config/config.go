// Package config loads the slotd daemon configuration.
//
// Configuration is read from a YAML file on top of Default. Fields that
// are absent from the file keep their default value; unknown fields are
// rejected so typos do not go unnoticed.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/msgslot/msgslot-go/pkg/discovery"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultListenAddress     = ":7380"
	DefaultMaxHandlesPerConn = 64
	DefaultLogLevel          = "info"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the daemon configuration.
type Config struct {
	ListenAddress     string          `yaml:"listen_address"`
	TLS               TLSConfig       `yaml:"tls"`
	Limits            Limits          `yaml:"limits"`
	MaxHandlesPerConn int             `yaml:"max_handles_per_conn"`
	ProtocolLog       string          `yaml:"protocol_log"`
	MetricsAddress    string          `yaml:"metrics_address"`
	Discovery         DiscoveryConfig `yaml:"discovery"`
	LogLevel          string          `yaml:"log_level"`
}

// TLSConfig names the server certificate. Both files empty means plain TCP.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether TLS is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" || t.KeyFile != ""
}

// Limits bound the memory held by the registry. Zero means unlimited.
type Limits struct {
	MaxChannels    int64 `yaml:"max_channels"`
	MaxBufferBytes int64 `yaml:"max_buffer_bytes"`
}

// DiscoveryConfig controls mDNS advertisement.
type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Instance  string `yaml:"instance"`
	Interface string `yaml:"interface"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddress:     DefaultListenAddress,
		MaxHandlesPerConn: DefaultMaxHandlesPerConn,
		LogLevel:          DefaultLogLevel,
		Discovery: DiscoveryConfig{
			Instance: discovery.DefaultInstanceName,
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("%w: listen_address %q: %v", ErrInvalid, c.ListenAddress, err)
	}
	if c.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddress); err != nil {
			return fmt.Errorf("%w: metrics_address %q: %v", ErrInvalid, c.MetricsAddress, err)
		}
	}
	if c.TLS.Enabled() && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls.cert_file and tls.key_file must be set together", ErrInvalid)
	}
	if c.Limits.MaxChannels < 0 {
		return fmt.Errorf("%w: limits.max_channels must not be negative", ErrInvalid)
	}
	if c.Limits.MaxBufferBytes < 0 {
		return fmt.Errorf("%w: limits.max_buffer_bytes must not be negative", ErrInvalid)
	}
	if c.MaxHandlesPerConn < 1 {
		return fmt.Errorf("%w: max_handles_per_conn must be at least 1, got %d", ErrInvalid, c.MaxHandlesPerConn)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Discovery.Enabled {
		if err := discovery.ValidateInstanceName(c.Discovery.Instance); err != nil {
			return fmt.Errorf("%w: discovery.instance: %v", ErrInvalid, err)
		}
	}
	return nil
}

// Level returns the slog level for LogLevel. Call after Validate.
func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}
