package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_LevelFiltering(t *testing.T) {
	var out bytes.Buffer
	logger := newLogger("warn", "text", &out)

	logger.Info("filtered out")
	logger.Warn("kept")

	assert.NotContains(t, out.String(), "filtered out")
	assert.Contains(t, out.String(), "kept")
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	var out bytes.Buffer
	logger := newLogger("chatty", "text", &out)

	logger.Debug("filtered out")
	logger.Info("kept")

	assert.NotContains(t, out.String(), "filtered out")
	assert.Contains(t, out.String(), "kept")
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var out bytes.Buffer
	logger := newLogger("info", "json", &out)

	logger.Info("structured", "goal", "pack")

	var record map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &record))
	assert.Equal(t, "structured", record["msg"])
	assert.Equal(t, "pack", record["goal"])
}
