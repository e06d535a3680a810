package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rule-console/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LogConfig
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: &config.LogConfig{
				Level:      "info",
				OutputPath: "stdout",
				Encoding:   "json",
			},
			wantErr: false,
		},
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name: "invalid level",
			cfg: &config.LogConfig{
				Level:      "invalid",
				OutputPath: "stderr",
				Encoding:   "console",
			},
			wantErr: false, // defaults to info level
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "console.log")

	logger, err := NewLogger(&config.LogConfig{
		Level:      "debug",
		OutputPath: path,
		Encoding:   "json",
		MaxSizeMB:  1,
	})
	require.NoError(t, err)

	logger.With("component", "test").Info("rules loaded", "count", 3)
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"rules loaded"`)
	assert.Contains(t, string(data), `"count":3`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestLoggerMethods(t *testing.T) {
	logger := NewNop()

	// Test each log level
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
	assert.NoError(t, logger.Sync())
}
