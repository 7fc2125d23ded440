package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dministrator/flowdb/internal/config"
)

func restoreGlobals(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestApplyConsoleAndFile(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "logs", "flowdb.log")
	var console bytes.Buffer

	closer, err := Apply(config.LogConfig{Level: "debug", File: path, MaxSizeMB: 1}, &console)
	require.NoError(t, err)

	log.Debug().Str("connection", "DEFAULT").Msg("database opened")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "database opened")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "connection=DEFAULT")
}

func TestApplyLevel(t *testing.T) {
	restoreGlobals(t)
	var console bytes.Buffer

	_, err := Apply(config.LogConfig{Level: "warn"}, &console)
	require.NoError(t, err)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")

	applyLevel("")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
