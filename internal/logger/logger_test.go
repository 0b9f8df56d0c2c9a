package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategyd.log")
	Initialize("warn", path)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	l := GetForComponent("test")
	l.Info().Msg("filtered")
	l.Warn().Msg("kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
	assert.Contains(t, string(data), `"component":"test"`)
	assert.NotContains(t, string(data), "filtered")
}
