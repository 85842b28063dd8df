package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("info", "", &buf)
	logger.Info("unit extracted", "period", "2000_10")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "unit extracted", rec["msg"])
	assert.Equal(t, "2000_10", rec["period"])
	assert.Equal(t, "nxtensor", rec["service"])
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
	}{
		{"debug", true, true},
		{"DEBUG", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.level, "text", &buf)

			logger.Debug("d")
			assert.Equal(t, tt.debugSeen, bytes.Contains(buf.Bytes(), []byte("msg=d")))
			buf.Reset()
			logger.Info("i")
			assert.Equal(t, tt.infoSeen, bytes.Contains(buf.Bytes(), []byte("msg=i")))
		})
	}
}
