package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// Test helper functions in settings.go

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short key",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long key",
			input:    "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "Very long key",
			input:    "sk-proj-1234567890abcdefghijklmnop",
			expected: "sk-p...mnop",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSettingsShowCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand(t, "", "settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "[Search]")
	assert.Contains(t, out, "Mode: Hybrid (keyword + semantic)")
	assert.Contains(t, out, "Threshold: 0.50")
	assert.Contains(t, out, "Provider: Embedding producer (self-hosted)")
	assert.Contains(t, out, "Base URL: "+domain.DefaultProducerURL)
	assert.Contains(t, out, "Provider: (none, tagging disabled)")
	assert.Contains(t, out, "K: auto")
	assert.Contains(t, out, "Address: "+domain.DefaultServerAddr)
	assert.Contains(t, out, "Configuration is valid.")
}

func TestSettingsShowCmd_ValidationWarning(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	mock := newMockSettingsService()
	mock.validateErr = errBoom
	mock.settings.LLM = domain.LLMSettings{Provider: domain.AIProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-1234567890abcdef"}
	settingsService = mock

	out, err := executeCommand(t, "", "settings")

	require.NoError(t, err)
	assert.Contains(t, out, "API Key: sk-1...cdef")
	assert.Contains(t, out, "Warning: boom")
	assert.Contains(t, out, "wikiscope settings wizard")
}

func TestSettingsModeCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	mock := newMockSettingsService()
	settingsService = mock

	out, err := executeCommand(t, "3\n", "settings", "mode")

	require.NoError(t, err)
	assert.Contains(t, out, "Search mode set to: Keyword (full-text search)")
	assert.Equal(t, domain.SearchModeKeyword, mock.settings.Search.Mode)

	_, err = executeCommand(t, "9\n", "settings", "mode")
	assert.Error(t, err)
}

func TestSettingsEmbeddingCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	mock := newMockSettingsService()
	settingsService = mock

	// ollama, default model, custom URL
	out, err := executeCommand(t, "2\n\nhttp://gpu:11434\n", "settings", "embedding")

	require.NoError(t, err)
	assert.Contains(t, out, "Validating configuration... OK")
	assert.Equal(t, domain.AIProviderOllama, mock.settings.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", mock.settings.Embedding.Model)
	assert.Equal(t, "http://gpu:11434", mock.settings.Embedding.BaseURL)
}

func TestSettingsEmbeddingCmd_ValidationFails(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	mock := newMockSettingsService()
	mock.embedErr = domain.ErrEmbeddingUnavailable
	settingsService = mock

	out, err := executeCommand(t, "1\n\n\n", "settings", "embedding")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Contains(t, out, "FAILED")
}

func TestSettingsLLMCmd_RequiresAPIKey(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	// anthropic, default model, empty key
	_, err := executeCommand(t, "3\n\n\n", "settings", "llm")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestSettingsLLMCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	mock := newMockSettingsService()
	settingsService = mock

	_, err := executeCommand(t, "2\ngpt-4o\nsk-test-key\n", "settings", "llm")

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOpenAI, mock.settings.LLM.Provider)
	assert.Equal(t, "gpt-4o", mock.settings.LLM.Model)
	assert.Equal(t, "sk-test-key", mock.settings.LLM.APIKey)
}

func TestSettingsWizardCmd_KeywordWithoutLLM(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	mock := newMockSettingsService()
	settingsService = mock

	out, err := executeCommand(t, "3\nn\n", "settings", "wizard")

	require.NoError(t, err)
	assert.Contains(t, out, "Step 2: Embedding Provider (skipped)")
	assert.Contains(t, out, "Tagging stays disabled.")
	assert.Contains(t, out, "All settings are valid and saved.")
	assert.Equal(t, domain.SearchModeKeyword, mock.settings.Search.Mode)
	assert.Empty(t, mock.settings.LLM.Provider)
}

func TestSettingsWizardCmd_HybridWithLLM(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	mock := newMockSettingsService()
	settingsService = mock

	// hybrid; producer with defaults; yes to LLM; ollama with defaults
	out, err := executeCommand(t, "1\n1\n\n\ny\n1\n\n\n", "settings", "wizard")

	require.NoError(t, err)
	assert.Contains(t, out, "Embedding provider configured: Embedding producer (self-hosted)")
	assert.Contains(t, out, "LLM provider configured: Ollama (local) (llama3.2)")
	assert.Equal(t, domain.AIProviderOllama, mock.settings.LLM.Provider)
}

func TestSettingsCmd_ServiceNotConfigured(t *testing.T) {
	old := settingsService
	settingsService = nil
	defer func() { settingsService = old }()

	_, err := executeCommand(t, "", "settings")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings service not configured")
}
