package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	l := WithComponent("ingest")
	l.Info().Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ingest", line["component"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	l := WithBoosterID("b-1")
	l.Warn().Msg("x")
	assert.Contains(t, buf.String(), `"booster_id":"b-1"`)

	buf.Reset()
	l = WithBatchID("batch-1")
	l.Warn().Msg("y")
	assert.Contains(t, buf.String(), `"batch_id":"batch-1"`)
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level    Level
		debugOut bool
		warnOut  bool
	}{
		{DebugLevel, true, true},
		{InfoLevel, false, true},
		{"WARN", false, true},
		{ErrorLevel, false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			Init(Config{Level: tt.level, JSONOutput: true, Output: &buf})

			Logger.Debug().Msg("debug line")
			Logger.Warn().Msg("warn line")

			assert.Equal(t, tt.debugOut, strings.Contains(buf.String(), "debug line"))
			assert.Equal(t, tt.warnOut, strings.Contains(buf.String(), "warn line"))
		})
	}

	// restore the default level for other tests in the package
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &bytes.Buffer{}})
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})

	l := WithComponent("stream")
	l.Info().Msg("connected")

	assert.Contains(t, buf.String(), "connected")
	assert.Contains(t, buf.String(), "component=stream")
}
