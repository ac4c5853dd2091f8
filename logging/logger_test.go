package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewProduction(t *testing.T) {
	log, err := New(DefaultConfig())
	require.NoError(t, err)
	defer log.Sync()

	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewDevelopment(t *testing.T) {
	log, err := New(Config{
		Level:       "debug",
		Development: true,
		OutputPaths: []string{"stdout"},
	})
	require.NoError(t, err)
	defer log.Sync()

	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose", OutputPaths: []string{"stdout"}})
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.Info("discarded")
		log.Error("also discarded")
	})
}
