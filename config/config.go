// Package config provides configuration management for ovpn3.
// It handles loading, saving, and defaulting of client settings stored
// as YAML (or TOML, chosen by file extension).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/vpn"
)

// Duration is a time.Duration written as "1s", "500ms" or "2m" in
// configuration files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config represents the application configuration.
type Config struct {
	// Bus selects the message bus: "system" or "session".
	Bus string `yaml:"bus" toml:"bus"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// LogFile enables file logging when set. "default" uses the standard
	// location under the config directory.
	LogFile string `yaml:"log_file,omitempty" toml:"log_file,omitempty"`

	Ready       ReadyConfig       `yaml:"ready" toml:"ready"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Journal     JournalConfig     `yaml:"journal" toml:"journal"`
	Health      HealthConfig      `yaml:"health" toml:"health"`
}

// ReadyConfig controls readiness polling after a tunnel is created.
type ReadyConfig struct {
	Interval Duration `yaml:"interval" toml:"interval"`
	// MaxAttempts bounds readiness checks (0 = until interrupted).
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
}

// CredentialsConfig controls where credentials are looked up.
type CredentialsConfig struct {
	// UseKeyring answers credential requests from the system keyring
	// before prompting.
	UseKeyring bool `yaml:"use_keyring" toml:"use_keyring"`
	// Save stores prompted values in the keyring.
	Save bool `yaml:"save" toml:"save"`
}

// JournalConfig controls the local event journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Path of the SQLite file; empty uses the data directory.
	Path string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// HealthConfig mirrors vpn.HealthConfig.
type HealthConfig struct {
	CheckInterval      Duration `yaml:"check_interval" toml:"check_interval"`
	FailureThreshold   int      `yaml:"failure_threshold" toml:"failure_threshold"`
	AutoRestart        bool     `yaml:"auto_restart" toml:"auto_restart"`
	RestartDelay       Duration `yaml:"restart_delay" toml:"restart_delay"`
	MaxRestartAttempts int      `yaml:"max_restart_attempts" toml:"max_restart_attempts"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	health := vpn.DefaultHealthConfig()
	return &Config{
		Bus:      common.BusSystem,
		LogLevel: "warn",
		Ready: ReadyConfig{
			Interval: Duration(common.ReadyInterval),
		},
		Credentials: CredentialsConfig{
			UseKeyring: true,
			Save:       false,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Health: HealthConfig{
			CheckInterval:      Duration(health.CheckInterval),
			FailureThreshold:   health.FailureThreshold,
			AutoRestart:        health.AutoRestart,
			RestartDelay:       Duration(health.RestartDelay),
			MaxRestartAttempts: health.MaxRestartAttempts,
		},
	}
}

// DefaultPath returns the standard location of the config file.
func DefaultPath() (string, error) {
	dir, err := common.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, common.ConfigFileName), nil
}

// Load loads the configuration from path, or from DefaultPath if path
// is empty. If the default file doesn't exist, it is created with
// default values; an explicitly named file must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}

	cfg := DefaultConfig()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("%w: error parsing %s: %v", common.ErrConfigLoad, filepath.Base(path), err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid configuration: %v", common.ErrConfigLoad, err)
	}
	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// decode parses data into cfg. Unknown fields are rejected.
func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(cfg)
	if errors.Is(err, io.EOF) {
		// empty file
		return nil
	}
	return err
}

// validate verifies that configuration values are valid. Unknown enum
// values fall back to defaults; negative numbers are rejected.
func (c *Config) validate() error {
	def := DefaultConfig()

	if _, err := proxy.ParseBus(c.Bus); err != nil {
		c.Bus = def.Bus
	}
	if _, ok := common.ParseLevel(c.LogLevel); !ok {
		c.LogLevel = def.LogLevel
	}

	if c.Ready.Interval < 0 {
		return fmt.Errorf("ready.interval must not be negative")
	}
	if c.Ready.MaxAttempts < 0 {
		return fmt.Errorf("ready.max_attempts must not be negative")
	}
	if c.Health.CheckInterval < 0 || c.Health.RestartDelay < 0 {
		return fmt.Errorf("health intervals must not be negative")
	}
	if c.Health.FailureThreshold < 0 || c.Health.MaxRestartAttempts < 0 {
		return fmt.Errorf("health counts must not be negative")
	}

	if c.Ready.Interval == 0 {
		c.Ready.Interval = def.Ready.Interval
	}
	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = def.Health.CheckInterval
	}
	if c.Health.FailureThreshold == 0 {
		c.Health.FailureThreshold = def.Health.FailureThreshold
	}
	return nil
}

// Save writes the configuration to path in the format its extension
// selects.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: error creating config directory: %v", common.ErrConfigSave, err)
	}

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("%w: error serializing configuration: %v", common.ErrConfigSave, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}
	return nil
}

// BusKind returns the configured bus.
func (c *Config) BusKind() proxy.Bus {
	bus, err := proxy.ParseBus(c.Bus)
	if err != nil {
		return proxy.SystemBus
	}
	return bus
}

// Level returns the configured log level.
func (c *Config) Level() common.LogLevel {
	level, _ := common.ParseLevel(c.LogLevel)
	return level
}

// LogConfig returns the logger settings.
func (c *Config) LogConfig() common.LogConfig {
	lc := common.LogConfig{Level: c.Level()}
	switch c.LogFile {
	case "":
	case "default":
		lc.EnableFile = true
	default:
		lc.EnableFile = true
		lc.FilePath = c.LogFile
	}
	return lc
}

// ReadyPolicy returns the readiness polling policy.
func (c *Config) ReadyPolicy() vpn.ReadyPolicy {
	return vpn.ReadyPolicy{
		Interval:    time.Duration(c.Ready.Interval),
		MaxAttempts: c.Ready.MaxAttempts,
	}
}

// HealthConfig returns the health checker settings.
func (c *Config) HealthConfig() vpn.HealthConfig {
	return vpn.HealthConfig{
		CheckInterval:      time.Duration(c.Health.CheckInterval),
		FailureThreshold:   c.Health.FailureThreshold,
		AutoRestart:        c.Health.AutoRestart,
		RestartDelay:       time.Duration(c.Health.RestartDelay),
		MaxRestartAttempts: c.Health.MaxRestartAttempts,
	}
}

// JournalPath returns the journal database location.
func (c *Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return c.Journal.Path, nil
	}
	dir, err := common.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, common.JournalFileName), nil
}
