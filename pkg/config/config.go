package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HuiFDU/adcsync/pkg/frame"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig        `yaml:"serial"`
	Protocol    ProtocolConfig      `yaml:"protocol"`
	Calibration []CalibrationConfig `yaml:"calibration"`
	Measurement MeasurementConfig   `yaml:"measurement"`
	Logging     LoggingConfig       `yaml:"logging"`
	Metrics     MetricsConfig       `yaml:"metrics"`
	Mock        MockConfig          `yaml:"mock"`

	// Set while Calibration holds the variant defaults rather than a
	// configured list, so a variant override can replace them.
	defaultCalibration bool
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port         string        `yaml:"port"`
	BaudRate     int           `yaml:"baud_rate"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	BufferSize   int           `yaml:"buffer_size"`   // chunk channel capacity
	PollCommand  string        `yaml:"poll_command"`  // hex bytes, e.g. "AF 01 FA"
	PollInterval time.Duration `yaml:"poll_interval"` // 0 disables polling
}

// ProtocolConfig selects the wire format and the resync behaviour.
type ProtocolConfig struct {
	Variant           string  `yaml:"variant"`
	VRef              float64 `yaml:"vref"`              // 0 selects the variant default
	SyncLossDiscard   string  `yaml:"sync_loss_discard"` // "frame" or "byte"
	ReportHuntRejects bool    `yaml:"report_hunt_rejects"`
}

// CalibrationConfig maps one channel's decoded value to a physical quantity.
type CalibrationConfig struct {
	Channel frame.ChannelID `yaml:"channel"`
	Name    string          `yaml:"name"`
	Unit    string          `yaml:"unit"`
	FromMin float64         `yaml:"from_min"`
	FromMax float64         `yaml:"from_max"`
	ToMin   float64         `yaml:"to_min"`
	ToMax   float64         `yaml:"to_max"`
}

// MeasurementConfig contains measurement parameters.
type MeasurementConfig struct {
	WindowSeconds  float64       `yaml:"window_seconds"`
	AverageSamples int           `yaml:"average_samples"` // Number of records to average (0 = disabled, default)
	DisplayRate    time.Duration `yaml:"display_rate"`    // Minimum interval between console updates
}

// LoggingConfig contains logger configuration.
type LoggingConfig struct {
	Level  string         `yaml:"level"`  // debug, info, warn, error; empty = silent
	Format string         `yaml:"format"` // console or json
	File   FileLogConfig  `yaml:"file"`
	Errors ErrorLogConfig `yaml:"errors"`
}

// FileLogConfig configures the rotating log file. An empty filename disables it.
type FileLogConfig struct {
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ErrorLogConfig throttles frame error and sync loss diagnostics.
type ErrorLogConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// MetricsConfig contains the prometheus endpoint configuration.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // listen address for /metrics, empty disables
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	SampleRate   time.Duration `yaml:"sample_rate"`   // Interval between frames
	NoiseLevel   float64       `yaml:"noise_level"`   // Noise amplitude (V)
	GarbageEvery int           `yaml:"garbage_every"` // Insert a garbage byte every N frames (0 = never)
	CorruptEvery int           `yaml:"corrupt_every"` // Corrupt a tag every N frames (0 = never)
	MaxChunk     int           `yaml:"max_chunk"`     // Largest simulated read size in bytes
	Seed         int64         `yaml:"seed"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:         "COM3", // Default for Windows, should be "/dev/ttyUSB0" on Linux
			BaudRate:     115200,
			ReadTimeout:  100 * time.Millisecond,
			BufferSize:   100,
			PollCommand:  "AF 01 FA",
			PollInterval: 0,
		},
		Protocol: ProtocolConfig{
			Variant:         frame.VariantMixed,
			SyncLossDiscard: "frame",
		},
		Calibration: DefaultCalibration(frame.VariantMixed),
		Measurement: MeasurementConfig{
			WindowSeconds:  60,
			AverageSamples: 0, // No averaging by default
			DisplayRate:    100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "",
			Format: "console",
			File: FileLogConfig{
				MaxSizeMB:  10,
				MaxBackups: 5,
				MaxAgeDays: 30,
			},
			Errors: ErrorLogConfig{
				PerSecond: 5,
				Burst:     10,
			},
		},
		Mock: MockConfig{
			SampleRate:   20 * time.Millisecond, // 50 frames per second
			NoiseLevel:   0.01,
			GarbageEvery: 50,
			CorruptEvery: 200,
			MaxChunk:     24,
			Seed:         1,
		},
		defaultCalibration: true,
	}
}

// DefaultCalibration returns the sensor ranges wired to a variant's board.
// Only the mixed board carries calibrated sensors:
// CH1 1.5..3.0 V -> -30..200 °C and CH2 1.5..3.0 V -> 100..1000 kPa.
// Every other variant reports plain voltages.
func DefaultCalibration(variant string) []CalibrationConfig {
	if variant != frame.VariantMixed {
		return nil
	}
	return []CalibrationConfig{
		{Channel: frame.Ch1, Name: "temperature", Unit: "°C", FromMin: 1.5, FromMax: 3.0, ToMin: -30, ToMax: 200},
		{Channel: frame.Ch2, Name: "pressure", Unit: "kPa", FromMin: 1.5, FromMax: 3.0, ToMin: 100, ToMax: 1000},
	}
}

// SetVariant selects a frame variant. Calibration that came from defaults
// follows the new variant; a configured list is kept.
func (c *Config) SetVariant(name string) {
	c.Protocol.Variant = name
	if c.defaultCalibration {
		c.Calibration = DefaultCalibration(name)
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// An omitted calibration list is filled in for the configured variant.
	cfg.Calibration = nil
	cfg.defaultCalibration = false
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports settings that cannot be used. Degenerate calibration
// ranges are not errors; the mapper saturates them.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Protocol.Spec(); err != nil {
		errs = append(errs, err)
	}
	switch c.Protocol.SyncLossDiscard {
	case "", "frame", "byte":
	default:
		errs = append(errs, fmt.Errorf("protocol.sync_loss_discard: %q is not frame or byte", c.Protocol.SyncLossDiscard))
	}
	if c.Protocol.VRef < 0 {
		errs = append(errs, fmt.Errorf("protocol.vref must not be negative: %g", c.Protocol.VRef))
	}

	seen := make(map[frame.ChannelID]bool, len(c.Calibration))
	for i, cal := range c.Calibration {
		if !cal.Channel.Valid() {
			errs = append(errs, fmt.Errorf("calibration[%d]: invalid channel", i))
			continue
		}
		if seen[cal.Channel] {
			errs = append(errs, fmt.Errorf("calibration[%d]: duplicate channel %s", i, cal.Channel))
		}
		seen[cal.Channel] = true
	}

	if _, err := c.Serial.PollBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.Serial.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("serial.read_timeout must not be negative: %s", c.Serial.ReadTimeout))
	}
	if c.Serial.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("serial.poll_interval must not be negative: %s", c.Serial.PollInterval))
	}
	if c.Mock.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("mock.sample_rate must be positive: %s", c.Mock.SampleRate))
	}
	if c.Measurement.AverageSamples < 0 {
		errs = append(errs, fmt.Errorf("measurement.average_samples must not be negative: %d", c.Measurement.AverageSamples))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: %q is not console or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Spec returns the frame spec selected by the protocol section.
func (p ProtocolConfig) Spec() (*frame.Spec, error) {
	return frame.Variant(p.Variant, p.VRef)
}

// PollBytes decodes PollCommand. Whitespace between hex pairs is ignored.
func (s SerialConfig) PollBytes() ([]byte, error) {
	b, err := frame.ParseHex(s.PollCommand)
	if err != nil {
		return nil, fmt.Errorf("serial.poll_command %q: %w", s.PollCommand, err)
	}
	return b, nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}
	if c.Serial.BufferSize == 0 {
		c.Serial.BufferSize = def.Serial.BufferSize
	}
	if c.Serial.PollCommand == "" {
		c.Serial.PollCommand = def.Serial.PollCommand
	}

	if c.Protocol.Variant == "" {
		c.Protocol.Variant = def.Protocol.Variant
	}
	if c.Protocol.SyncLossDiscard == "" {
		c.Protocol.SyncLossDiscard = def.Protocol.SyncLossDiscard
	}

	if len(c.Calibration) == 0 {
		c.Calibration = DefaultCalibration(c.Protocol.Variant)
		c.defaultCalibration = true
	}

	if c.Measurement.WindowSeconds == 0 {
		c.Measurement.WindowSeconds = def.Measurement.WindowSeconds
	}
	if c.Measurement.DisplayRate == 0 {
		c.Measurement.DisplayRate = def.Measurement.DisplayRate
	}

	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Logging.File.MaxSizeMB == 0 {
		c.Logging.File.MaxSizeMB = def.Logging.File.MaxSizeMB
	}
	if c.Logging.Errors.PerSecond == 0 {
		c.Logging.Errors.PerSecond = def.Logging.Errors.PerSecond
	}
	if c.Logging.Errors.Burst == 0 {
		c.Logging.Errors.Burst = def.Logging.Errors.Burst
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.MaxChunk == 0 {
		c.Mock.MaxChunk = def.Mock.MaxChunk
	}
}
