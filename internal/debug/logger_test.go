package debug

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Output: &buf})
	Debug("hidden")
	Error("shown", "code", 7)
	assert.False(t, Enabled())
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "code=7")

	buf.Reset()
	Init(Options{Enable: true, Output: &buf})
	Debug("visible")
	assert.True(t, Enabled())
	assert.Contains(t, buf.String(), "visible")
}

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Enable: true, Format: "JSON", Output: &buf})
	Warn("careful", "sql", "SELECT 1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "careful", rec["msg"])
	assert.Equal(t, "SELECT 1", rec["sql"])
	assert.Equal(t, "duckql", rec["app"])
}
