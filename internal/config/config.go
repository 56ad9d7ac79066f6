// Package config loads the acquisition settings from YAML.
//
// Example YAML:
//
//	port: /dev/ttyUSB0
//	baud: 57600
//	readTimeout: 1s
//	pollInterval: 5ms
//	logging: true
//	logDir: /var/lib/cdclogger
//	export: periods.txt
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luhtfiimanal/go-cdc-logger/serial"
)

// Config is the full set of runtime settings.
type Config struct {
	// Port is the serial device, e.g. /dev/ttyUSB0.
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	StopBits int    `yaml:"stopBits"`
	Parity   string `yaml:"parity"`

	// ReadTimeout bounds each line read and so the shutdown latency.
	ReadTimeout Duration `yaml:"readTimeout"`
	ResetDelay  Duration `yaml:"resetDelay"`
	StreamDelay Duration `yaml:"streamDelay"`
	JoinTimeout Duration `yaml:"joinTimeout"`

	PollInterval Duration `yaml:"pollInterval"`

	Logging bool   `yaml:"logging"`
	LogDir  string `yaml:"logDir"`
	LogExt  string `yaml:"logExt"`

	// Export is the file periods are written to on stop; empty means stdout.
	Export string `yaml:"export"`

	LogLevel string `yaml:"logLevel"`

	Display         bool     `yaml:"display"`
	DisplayInterval Duration `yaml:"displayInterval"`
}

// Default returns the settings used when neither a file nor a flag sets a value.
func Default() Config {
	return Config{
		Baud:            57600,
		StopBits:        1,
		Parity:          serial.ParityNone,
		ReadTimeout:     Duration(time.Second),
		ResetDelay:      Duration(3 * time.Second),
		StreamDelay:     Duration(time.Second),
		JoinTimeout:     Duration(10 * time.Second),
		PollInterval:    Duration(5 * time.Millisecond),
		LogDir:          ".",
		LogExt:          ".csv",
		LogLevel:        "info",
		Display:         true,
		DisplayInterval: Duration(200 * time.Millisecond),
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config from YAML: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port cannot be empty"))
	}
	if !serial.SupportedBaud(c.Baud) {
		errs = append(errs, fmt.Errorf("unsupported baud rate %d", c.Baud))
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		errs = append(errs, fmt.Errorf("stopBits must be 1 or 2, got %d", c.StopBits))
	}
	switch c.Parity {
	case serial.ParityNone, serial.ParityOdd, serial.ParityEven:
	default:
		errs = append(errs, fmt.Errorf("unknown parity %q", c.Parity))
	}
	for name, d := range map[string]Duration{
		"readTimeout":  c.ReadTimeout,
		"pollInterval": c.PollInterval,
		"joinTimeout":  c.JoinTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.ResetDelay < 0 || c.StreamDelay < 0 {
		errs = append(errs, errors.New("startup delays cannot be negative"))
	}
	if c.Display && c.DisplayInterval <= 0 {
		errs = append(errs, errors.New("displayInterval must be positive"))
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as a string ("5ms", "1s") in YAML.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}
