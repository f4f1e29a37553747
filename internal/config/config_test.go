package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/generate"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HttpAddress)
	assert.Equal(t, format.DefaultAgentURL, cfg.AgentURL)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.NotEmpty(t, cfg.Storage.SQLiteDSN)
	assert.Equal(t, generate.DefaultModel, cfg.Generation.Model)
	assert.Equal(t, generate.DefaultImageModel, cfg.Generation.ImageModel)
	assert.False(t, cfg.MCP.Enabled)
	assert.False(t, cfg.Validation.CheckRemoteMIME)
	assert.Equal(t, 10.0, cfg.RateLimit.RPS)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestNewConfigFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9090")
	t.Setenv("AGENT_URL", "https://creative.example.com/")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MCP_TRANSPORT", "stdio")
	t.Setenv("VALIDATION_CHECK_REMOTE_MIME", "true")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("GENERATION_IMAGE_MODEL", "None")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HttpAddress)
	assert.Equal(t, "https://creative.example.com", cfg.AgentURL)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.True(t, cfg.MCP.Enabled)
	assert.Equal(t, "stdio", cfg.MCP.Transport)
	assert.True(t, cfg.Validation.CheckRemoteMIME)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
	assert.Empty(t, cfg.Generation.ImageModel)
}

func TestSecretsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))
	t.Setenv("JWT_SECRET_KEY_FILE", path)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JwtSecretKey)
}

func TestS3ConfigReportsAllMissingVariables(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("AWS_ACCESS_KEY_ID", "key")

	_, err := NewConfig()
	require.Error(t, err)
	assert.Equal(t,
		"missing environment variables for s3 storage: AWS_SECRET_ACCESS_KEY, AWS_ENDPOINT_URL_S3, BUCKET_NAME",
		err.Error())
}

func TestS3Config(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("AWS_ACCESS_KEY_ID", "key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_ENDPOINT_URL_S3", "https://fly.storage.tigris.dev")
	t.Setenv("BUCKET_NAME", "previews")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, StorageS3, cfg.Storage.Backend)
	assert.Equal(t, "previews", cfg.Storage.S3.Bucket)
	assert.Equal(t, "auto", cfg.Storage.S3.Region)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "agent url", key: "AGENT_URL", value: "not a url", want: "invalid AGENT_URL"},
		{name: "agent url scheme", key: "AGENT_URL", value: "ftp://files.example.com", want: "invalid AGENT_URL"},
		{name: "public base url", key: "PUBLIC_BASE_URL", value: "localhost", want: "invalid PUBLIC_BASE_URL"},
		{name: "storage backend", key: "STORAGE_BACKEND", value: "gcs", want: "unknown STORAGE_BACKEND"},
		{name: "rate limit", key: "RATE_LIMIT_BURST", value: "0", want: "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := NewConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
