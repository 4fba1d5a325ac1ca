package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Equal(t, 0.7, cfg.Validation.AcceptanceThreshold)
	assert.Equal(t, 20, cfg.Chat.HistoryWindow)
	assert.Equal(t, 20*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 1, cfg.LLM.MaxRetries)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes())
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claimdesk.yaml")
	content := `
server:
  port: 9090
llm:
  provider: none
  timeout: 3s
validation:
  acceptance_threshold: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, 3*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 0.8, cfg.Validation.AcceptanceThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLAIMDESK_SERVER_PORT", "7070")
	t.Setenv("CLAIMDESK_LLM_PROVIDER", "gemini")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold zero", func(c *Config) { c.Validation.AcceptanceThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.Validation.AcceptanceThreshold = 1.5 }},
		{"too many retries", func(c *Config) { c.LLM.MaxRetries = 3 }},
		{"no history", func(c *Config) { c.Chat.HistoryWindow = 0 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "mystery" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LLM:        LLMConfig{Provider: "openai", MaxRetries: 1},
				Chat:       ChatConfig{HistoryWindow: 10},
				Validation: ValidationConfig{AcceptanceThreshold: 0.7},
			}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
