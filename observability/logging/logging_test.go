package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "billd", "test", slog.LevelInfo)
	logger.Info("hello", "op", "factoring_createOffer")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, "billd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "factoring_createOffer", line["op"])
}

func TestLoggerOmitsEmptyEnv(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "billd", "  ", slog.LevelInfo).Info("x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.NotContains(t, line, "env")
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "billd", "", slog.LevelWarn)
	logger.Debug("dropped")
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestSetupWithOptionsWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billd.log")
	logger, closer := SetupWithOptions("billd", "test", Options{File: path, MaxSizeMB: 1, MaxBackups: 1})
	logger.Info("to file")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer secret").Value.String())
	require.Equal(t, "", MaskField("authorization", "").Value.String())
	require.Equal(t, "factoring_completeBill", MaskField("method", "factoring_completeBill").Value.String())
	require.Contains(t, RedactionAllowlist(), "requestid")
}
