package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogConfigPath = "config/logging.yaml"
	logConfigPathEnvVar  = "CLUSTERSIM_LOG_CONFIG"
	RFC3339Milli         = "2006-01-02T15:04:05.000Z07:00"
)

// MustConfigureApplicationLogging sets up logging suitable for an application. Logging configuration is loaded from
// a filepath given by the CLUSTERSIM_LOG_CONFIG environmental variable or from config/logging.yaml if this var is
// unset. If neither exists, text logging at info level is used.
// Note that this function will immediately shut down the application if it fails.
func MustConfigureApplicationLogging() {
	if err := ConfigureApplicationLogging(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error initializing logging: "+err.Error())
		os.Exit(1)
	}
}

// ConfigureApplicationLogging configures the standard logrus logger from the logging config file.
func ConfigureApplicationLogging() error {
	configPath, explicit := os.LookupEnv(logConfigPathEnvVar)
	if !explicit {
		configPath = defaultLogConfigPath
	}
	config := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil || explicit {
		config, err = readConfig(configPath)
		if err != nil {
			return err
		}
	}
	return Configure(log.StandardLogger(), config)
}

// Configure applies config to logger. Every destination is a hook with its own level and format, so that e.g. debug
// lines can go to disk only; the logger itself writes nowhere.
func Configure(logger *log.Logger, config Config) error {
	if err := validate(config); err != nil {
		return err
	}
	consoleLevel, _ := log.ParseLevel(config.Console.Level)
	logger.SetOutput(io.Discard)
	logger.SetLevel(consoleLevel)
	logger.ReplaceHooks(make(log.LevelHooks))
	logger.AddHook(&writerHook{
		writer:    os.Stdout,
		formatter: newFormatter(config.Console.Format),
		levels:    levelsUpTo(consoleLevel),
	})

	if config.File.Enabled {
		fileLevel, _ := log.ParseLevel(config.File.Level)
		logger.AddHook(&writerHook{
			writer: &lumberjack.Logger{
				Filename:   config.File.LogFile,
				MaxSize:    config.File.Rotation.MaxSizeMb,
				MaxBackups: config.File.Rotation.MaxBackups,
				MaxAge:     config.File.Rotation.MaxAgeDays,
				Compress:   config.File.Rotation.Compress,
			},
			formatter: newFormatter(config.File.Format),
			levels:    levelsUpTo(fileLevel),
		})
		// The logger level gates hooks too.
		if fileLevel > consoleLevel {
			logger.SetLevel(fileLevel)
		}
	}

	if config.Prometheus {
		hook, err := NewPrometheusHook()
		if err != nil {
			return err
		}
		logger.AddHook(hook)
	}
	return nil
}

func newFormatter(format string) log.Formatter {
	if strings.ToLower(format) == FormatJson {
		return &log.JSONFormatter{TimestampFormat: RFC3339Milli}
	}
	return &log.TextFormatter{FullTimestamp: true, TimestampFormat: RFC3339Milli, DisableColors: true}
}

func levelsUpTo(level log.Level) []log.Level {
	levels := make([]log.Level, 0, len(log.AllLevels))
	for _, l := range log.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	return levels
}

type writerHook struct {
	writer    io.Writer
	formatter log.Formatter
	levels    []log.Level
}

func (h *writerHook) Levels() []log.Level {
	return h.levels
}

func (h *writerHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = h.writer.Write(line)
	return errors.WithStack(err)
}
