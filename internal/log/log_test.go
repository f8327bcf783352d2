package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateLoggerWithLumberjackBasic(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	logger := CreateLoggerWithLumberjack(logFile, 5, zap.InfoLevel)
	require.NotNil(t, logger)

	logger.Info("test message")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message")
}

func TestCreateLoggerWithLumberjackInvalidDirectory(t *testing.T) {
	logger := CreateLoggerWithLumberjack("/nonexistent/directory/test.log", 1, zap.InfoLevel)
	require.NotNil(t, logger)

	assert.NotPanics(t, func() {
		logger.Info("test message")
	})
}

func TestCreateLoggerWritesStderrAndFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	logger := CreateLogger(zap.DebugLevel, logFile)
	require.NotNil(t, logger)

	logger.Debug("debug test message")

	assert.FileExists(t, logFile)
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "debug test message")
}

func TestCreateLoggerWithoutLogFile(t *testing.T) {
	logger := CreateLogger(zap.ErrorLevel, "")
	require.NotNil(t, logger)

	assert.NotPanics(t, func() {
		logger.Error("error test message")
	})
}
