package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentora-ai/mentora/internal/log"
)

func TestCloseWithoutResources(t *testing.T) {
	t.Parallel()

	a := &App{logger: log.NewNop()}

	// Close must be safe before any resource was initialized (Setup calls
	// it on partial failure) and must be safe to call again.
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestCloseRunsTraceShutdown(t *testing.T) {
	t.Parallel()

	var shutdownCalls int
	a := &App{
		logger:      log.NewNop(),
		otelCleanup: func() { shutdownCalls++ },
	}

	require.NoError(t, a.Close())
	assert.Equal(t, 1, shutdownCalls)
}
