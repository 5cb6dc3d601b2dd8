package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesLeveledJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf).With("task", "users")

	l.Infof("fetched %d records", 12)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "fetched 12 records", line["message"])
	assert.Equal(t, "users", line["task"])
	assert.Contains(t, line, "time")
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Errorf("ignored %s", "x") })
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, INFO, lvl)

	_, err = ParseLevel("chatty")
	require.Error(t, err)
}
