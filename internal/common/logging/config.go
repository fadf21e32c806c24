package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"
)

const (
	FormatText = "text"
	FormatJson = "json"
)

var validLogFormats = map[string]bool{
	FormatText: true,
	FormatJson: true,
}

// Config defines logging configuration.
type Config struct {
	// Defines configuration for console logging on stdout
	Console struct {
		// Log level, e.g. INFO, ERROR etc
		Level string `yaml:"level"`
		// Logging format, either text or json
		Format string `yaml:"format"`
	} `yaml:"console"`
	// Defines configuration for file logging
	File struct {
		// Whether file logging is enabled.
		Enabled bool `yaml:"enabled"`
		// Log level, e.g. INFO, ERROR etc
		Level string `yaml:"level"`
		// Logging format, either text or json
		Format string `yaml:"format"`
		// The Location of the logfile on disk
		LogFile string `yaml:"logfile"`
		// Log Rotation Options
		Rotation struct {
			// Maximum size in megabytes of the log file before it gets rotated
			MaxSizeMb int `yaml:"maxSizeMb"`
			// Maximum number of old log files to retain
			MaxBackups int `yaml:"maxBackups"`
			// Maximum number of days to retain old log files
			MaxAgeDays int `yaml:"maxAgeDays"`
			// Whether to compress rotated log files
			Compress bool `yaml:"compress"`
		} `yaml:"rotation"`
	} `yaml:"file"`
	// If true, a counter of log lines by level is exported to the default prometheus registry.
	Prometheus bool `yaml:"prometheus"`
}

// DefaultConfig logs text at info level to stdout.
func DefaultConfig() Config {
	c := Config{}
	c.Console.Level = "info"
	c.Console.Format = FormatText
	return c
}

func readConfig(path string) (Config, error) {
	yamlConfig, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WithMessagef(err, "failed to read log config file %s", path)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(yamlConfig, &config); err != nil {
		return Config{}, errors.WithMessagef(err, "failed to unmarshal log config file %s", path)
	}
	if err := validate(config); err != nil {
		return Config{}, errors.WithMessagef(err, "invalid log config file %s", path)
	}
	return config, nil
}

func validate(c Config) error {
	if _, err := log.ParseLevel(c.Console.Level); err != nil {
		return errors.WithStack(err)
	}
	if err := validateLogFormat(c.Console.Format); err != nil {
		return err
	}
	if c.File.Enabled {
		if _, err := log.ParseLevel(c.File.Level); err != nil {
			return errors.WithStack(err)
		}
		if err := validateLogFormat(c.File.Format); err != nil {
			return err
		}
		if c.File.LogFile == "" {
			return errors.New("file.logfile must be set when file logging is enabled")
		}
		if c.File.Rotation.MaxSizeMb < 0 || c.File.Rotation.MaxBackups < 0 || c.File.Rotation.MaxAgeDays < 0 {
			return errors.New("rotation limits must not be negative")
		}
	}
	return nil
}

func validateLogFormat(f string) error {
	if !validLogFormats[strings.ToLower(f)] {
		formats := maps.Keys(validLogFormats)
		slices.Sort(formats)
		return errors.Errorf("unknown log format: %s. Valid formats are %s", f, formats)
	}
	return nil
}
