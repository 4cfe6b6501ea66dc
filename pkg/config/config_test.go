package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, "memory", cfg.Vector.Backend)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.InDelta(t, 0.1, cfg.Pipeline.SimilarityThreshold, 1e-9)
	assert.Empty(t, cfg.Embedding.APIKey)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoadEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("CITYRAG_EMBEDDING_APIKEY", "embed-key-from-env")
	t.Setenv("CITYRAG_LLM_APIKEY", "llm-key-from-env")
	t.Setenv("CITYRAG_REDIS_PASSWORD", "redis-secret")
	t.Setenv("CITYRAG_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "embed-key-from-env", cfg.Embedding.APIKey)
	assert.Equal(t, "llm-key-from-env", cfg.LLM.APIKey)
	assert.Equal(t, "redis-secret", cfg.Redis.Password)
	assert.Equal(t, 9090, cfg.Server.Port)
}
