// Package config loads the settings shared by the nrfmodem command line
// tools from a YAML file layered over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jaracil/nrfmodem"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration of the nrfmodem tools
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Modem     ModemConfig     `yaml:"modem"`
	Log       LogConfig       `yaml:"log"`
	Trace     TraceConfig     `yaml:"trace"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// DeviceConfig holds the serial port settings
type DeviceConfig struct {
	Port       string        `yaml:"port"`
	Baud       int           `yaml:"baud"`
	NMEAPort   string        `yaml:"nmeaPort"`
	NMEABaud   int           `yaml:"nmeaBaud"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxHandles int           `yaml:"maxHandles"`
}

// ModemConfig holds the radio settings
type ModemConfig struct {
	SystemMode     SystemModeConfig `yaml:"systemMode"`
	PollInterval   time.Duration    `yaml:"pollInterval"`
	ConnectTimeout time.Duration    `yaml:"connectTimeout"`
}

// SystemModeConfig selects the enabled radios and the preferred network
type SystemModeConfig struct {
	LTE        bool   `yaml:"lte"`
	NBIoT      bool   `yaml:"nbiot"`
	GNSS       bool   `yaml:"gnss"`
	Preference string `yaml:"preference"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// TraceConfig holds command trace settings
type TraceConfig struct {
	File string `yaml:"file"` // CBOR trace file, empty disables it
	Log  bool   `yaml:"log"`  // also log every trace event at debug level
}

// SimulatorConfig holds the simulated modem settings used by simmodem
type SimulatorConfig struct {
	RegistrationDelay time.Duration `yaml:"registrationDelay"`
	FixPeriod         time.Duration `yaml:"fixPeriod"`
	Latitude          float64       `yaml:"latitude"`
	Longitude         float64       `yaml:"longitude"`
	Altitude          float64       `yaml:"altitude"`
	Satellites        int           `yaml:"satellites"`
}

// Environment variables overriding file settings
const (
	EnvPort     = "NRFMODEM_PORT"
	EnvLogLevel = "NRFMODEM_LOG_LEVEL"
)

var (
	// ErrInvalidPreference is returned for an unknown network preference name
	ErrInvalidPreference = errors.New("invalid network preference")
	// ErrInvalidLogLevel is returned for an unknown log level name
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat is returned for an unknown log format name
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Port:       "/dev/ttyACM0",
			Baud:       115200,
			NMEABaud:   115200,
			Timeout:    5 * time.Second,
			MaxHandles: 8,
		},
		Modem: ModemConfig{
			SystemMode: SystemModeConfig{
				LTE:        true,
				GNSS:       true,
				Preference: nrfmodem.PreferenceNone.String(),
			},
			PollInterval:   nrfmodem.DefaultPollInterval,
			ConnectTimeout: 3 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Simulator: SimulatorConfig{
			RegistrationDelay: 2 * time.Second,
			FixPeriod:         time.Second,
			Latitude:          41.3874,
			Longitude:         2.1686,
			Altitude:          12,
			Satellites:        8,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and the environment, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv(EnvPort); port != "" {
		cfg.Device.Port = port
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Log.Level = level
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Device.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Device.Baud)
	}
	if c.Device.NMEAPort != "" && c.Device.NMEABaud <= 0 {
		return fmt.Errorf("invalid NMEA baud rate %d", c.Device.NMEABaud)
	}
	if c.Device.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %v", c.Device.Timeout)
	}
	if c.Device.MaxHandles <= 0 {
		return fmt.Errorf("invalid handle count %d", c.Device.MaxHandles)
	}
	if c.Modem.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %v", c.Modem.PollInterval)
	}
	if _, err := c.Modem.SystemMode.Mode(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
	if c.Simulator.Latitude < -90 || c.Simulator.Latitude > 90 {
		return fmt.Errorf("invalid latitude %v", c.Simulator.Latitude)
	}
	if c.Simulator.Longitude < -180 || c.Simulator.Longitude > 180 {
		return fmt.Errorf("invalid longitude %v", c.Simulator.Longitude)
	}
	return nil
}

// ParsePreference maps a preference name, as printed by
// nrfmodem.ConnectionPreference.String, back to its value. Case is ignored.
func ParsePreference(name string) (nrfmodem.ConnectionPreference, error) {
	for p := nrfmodem.PreferenceNone; p <= nrfmodem.PreferenceNetworkNBIoTFallback; p++ {
		if strings.EqualFold(name, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPreference, name)
}

// Mode converts the settings into a system mode, rejecting preferences
// that name a disabled network.
func (s SystemModeConfig) Mode() (nrfmodem.SystemMode, error) {
	pref, err := ParsePreference(s.Preference)
	if err != nil {
		return nrfmodem.SystemMode{}, err
	}
	mode := nrfmodem.SystemMode{LTE: s.LTE, NBIoT: s.NBIoT, GNSS: s.GNSS, Preference: pref}
	if !mode.Valid() {
		return nrfmodem.SystemMode{}, fmt.Errorf("%w: preference %s", nrfmodem.ErrInvalidConfiguration, pref)
	}
	return mode, nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}
	return level, nil
}

// Logger builds a logger writing to w with the configured level and format.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogFormat, l.Format)
	}
}
