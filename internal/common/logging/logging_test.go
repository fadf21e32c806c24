package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		modify      func(c *Config)
		expectError bool
	}{
		"default": {
			modify: func(c *Config) {},
		},
		"json console": {
			modify: func(c *Config) { c.Console.Format = "json" },
		},
		"unknown level": {
			modify:      func(c *Config) { c.Console.Level = "chatty" },
			expectError: true,
		},
		"unknown format": {
			modify:      func(c *Config) { c.Console.Format = "xml" },
			expectError: true,
		},
		"file enabled without path": {
			modify: func(c *Config) {
				c.File.Enabled = true
				c.File.Level = "debug"
				c.File.Format = "json"
			},
			expectError: true,
		},
		"file enabled": {
			modify: func(c *Config) {
				c.File.Enabled = true
				c.File.Level = "debug"
				c.File.Format = "json"
				c.File.LogFile = "sim.log"
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			tc.modify(&c)
			err := validate(c)
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logging.yaml")
	require.NoError(t, os.WriteFile(path, []byte("console:\n  level: warn\n  format: json\n"), 0o600))

	config, err := readConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", config.Console.Level)
	assert.Equal(t, "json", config.Console.Format)
	assert.False(t, config.File.Enabled)
}

func TestConfigure_FileHookGetsDebugLines(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "sim.log")
	config := DefaultConfig()
	config.File.Enabled = true
	config.File.Level = "debug"
	config.File.Format = "json"
	config.File.LogFile = logFile

	logger := logrus.New()
	require.NoError(t, Configure(logger, config))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("jobId", "a").Debug("instance advanced")

	contents, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"jobId":"a"`)
	assert.Contains(t, string(contents), "instance advanced")
}

func TestWithStacktrace(t *testing.T) {
	logger, hook := test.NewNullLogger()

	WithStacktrace(logger, errors.New("boom")).Error("failed")
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "boom", hook.LastEntry().Data[logrus.ErrorKey].(error).Error())
	assert.NotNil(t, hook.LastEntry().Data[Stacktrace])

	hook.Reset()
	WithStacktrace(logger, os.ErrNotExist).Error("failed")
	require.Len(t, hook.Entries, 1)
	assert.NotContains(t, hook.LastEntry().Data, Stacktrace)
}

func TestNewNullLogger(t *testing.T) {
	logger := NewNullLogger()
	logger.Error("nobody hears this")
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())
}
