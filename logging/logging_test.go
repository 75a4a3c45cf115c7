package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestNew_UnknownLevel(t *testing.T) {
	_, _, err := New("verbose", "")
	assert.Error(t, err)
}

func TestNew_Console(t *testing.T) {
	logger, closer, err := New("warn", "")
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNew_FileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ledger.log")

	logger, closer, err := New("info", path)
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("alias", "main").Msg("account opened")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "main", entry["alias"])
	assert.Equal(t, "account opened", entry["message"])
	assert.Contains(t, entry, "time")
}
