package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

func TestRootCmd_RegistersCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"search", "page", "embed", "cluster", "tags", "serve", "mcp", "settings", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestSetServices(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	defaults := domain.DefaultAppSettings().Search
	defaults.Limit = 7
	SetServices(Services{SearchDefaults: defaults, ServerAddr: "0.0.0.0:9000"})

	assert.Nil(t, searchService)
	assert.Nil(t, taggingService)
	assert.Equal(t, 7, searchDefaults.Limit)
	assert.Equal(t, "0.0.0.0:9000", serverAddr)

	// An empty address keeps the previous one.
	SetServices(Services{})
	assert.Equal(t, "0.0.0.0:9000", serverAddr)
}

func TestSetVersion(t *testing.T) {
	original := version
	defer func() { version = original }()

	SetVersion("1.2.3")
	out, err := executeCommand(t, "", "version")

	require.NoError(t, err)
	assert.Contains(t, out, "wikiscope version 1.2.3")
}

func TestRootCmd_VerboseFlag(t *testing.T) {
	defer logger.SetVerbose(false)

	_, err := executeCommand(t, "", "--verbose", "version")

	require.NoError(t, err)
	assert.True(t, logger.IsVerbose())
}
