package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: WARN, Output: &buf})

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")

	l.SetLevel(DEBUG)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestWithFieldsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: INFO, Output: &buf, JSON: true})

	l.WithFields(map[string]interface{}{"lead_id": "l1", "records": 2}).Info("enrolled")

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "enrolled", entry["msg"])
	assert.Equal(t, "l1", entry["lead_id"])
	assert.EqualValues(t, 2, entry["records"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" warning "))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
	assert.Equal(t, "ERROR", ERROR.String())
}
