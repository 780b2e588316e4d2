package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/blemsg/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Initiator InitiatorConfig `yaml:"initiator"`
	Responder ResponderConfig `yaml:"responder"`
}

// BluetoothConfig holds the identifiers both peers must agree on.
type BluetoothConfig struct {
	ServiceUUID        string `yaml:"service_uuid"`
	DeviceInfoUUID     string `yaml:"device_info_uuid"`
	MessageUUID        string `yaml:"message_uuid"`
	ReadyToReceiveUUID string `yaml:"ready_to_receive_uuid"`
}

// InitiatorConfig holds settings for the scanning side.
type InitiatorConfig struct {
	EnforceReadiness bool `yaml:"enforce_readiness"`
}

// ResponderConfig holds settings for the advertising side.
type ResponderConfig struct {
	DeviceName string        `yaml:"device_name"` // empty means the host name
	LocalName  string        `yaml:"local_name"`
	Hold       time.Duration `yaml:"hold"` // how long a message is shown before ready
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blemsg")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Bluetooth: BluetoothConfig{
			ServiceUUID:        protocol.DefaultServiceUUID,
			DeviceInfoUUID:     protocol.DefaultDeviceInfoUUID,
			MessageUUID:        protocol.DefaultMessageUUID,
			ReadyToReceiveUUID: protocol.DefaultReadyToReceiveUUID,
		},
		Responder: ResponderConfig{
			LocalName: "blemsg",
			Hold:      5 * time.Second,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if _, err := c.Identifiers(); err != nil {
		return err
	}

	if c.Responder.Hold < 0 {
		return fmt.Errorf("responder.hold must be >= 0, got %s", c.Responder.Hold)
	}
	return nil
}

// Identifiers parses the configured UUIDs.
func (c *Config) Identifiers() (protocol.Identifiers, error) {
	var ids protocol.Identifiers
	fields := []struct {
		key string
		val string
		dst *uuid.UUID
	}{
		{"bluetooth.service_uuid", c.Bluetooth.ServiceUUID, &ids.Service},
		{"bluetooth.device_info_uuid", c.Bluetooth.DeviceInfoUUID, &ids.DeviceInfo},
		{"bluetooth.message_uuid", c.Bluetooth.MessageUUID, &ids.Message},
		{"bluetooth.ready_to_receive_uuid", c.Bluetooth.ReadyToReceiveUUID, &ids.ReadyToReceive},
	}
	for _, f := range fields {
		id, err := uuid.Parse(f.val)
		if err != nil {
			return protocol.Identifiers{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = id
	}
	if err := ids.Validate(); err != nil {
		return protocol.Identifiers{}, fmt.Errorf("bluetooth: %w", err)
	}
	return ids, nil
}

// DeviceName returns the configured descriptor, falling back to the host
// name.
func (c *Config) DeviceName() string {
	if c.Responder.DeviceName != "" {
		return c.Responder.DeviceName
	}
	name, err := os.Hostname()
	if err != nil {
		return "blemsg"
	}
	return name
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// default to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# blemsg configuration
# Both peers must use the same bluetooth identifiers.
# responder.device_name defaults to the host name when empty.

`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
