package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewBuildsBothModes(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		logger, err := New(dev, "aram-crawler")
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("logger ready")
		_ = logger.Sync()
	}
}

func TestComponentNamesLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	Component(zap.New(core), "crawler").Info("cycle done")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "crawler", entries[0].LoggerName)
}

func TestComponentToleratesNil(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() { Component(nil, "x").Info("dropped") })
}
