package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLevel(t *testing.T) {
	cases := []struct {
		name  string
		debug bool
		level string
		want  zerolog.Level
	}{
		{"default", false, "", zerolog.InfoLevel},
		{"debug flag", true, "", zerolog.DebugLevel},
		{"explicit wins", true, "warn", zerolog.WarnLevel},
		{"case insensitive", false, " ERROR ", zerolog.ErrorLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveLevel(tc.debug, tc.level)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := resolveLevel(false, "loud")
	assert.Error(t, err)
}

func TestNewTagsService(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "raffle-backend", zerolog.InfoLevel)
	l.Debug().Msg("hidden")
	l.Info().Int("denomination", 100).Msg("visible")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "raffle-backend", entry["service"])
	assert.Equal(t, float64(100), entry["denomination"])
}
