package boot

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fpang/video-summarizer/internal/auth"
	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/config"
	"github.com/fpang/video-summarizer/internal/events"
	"github.com/fpang/video-summarizer/internal/memory"
	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/fpang/video-summarizer/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	metrics.SetOutput(io.Discard)
}

func localConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	return config.Config{
		Provider:       config.ProviderOpenAI,
		ChatModel:      "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		EmbeddingDim:   1536,
		Classify:       true,
		OrgDir:         root + "/videos",
		TempDir:        root + "/temp",
		ChunkSize:      200,
		ChunkOverlap:   50,
		TopK:           4,
		VectorBackend:  vectorstore.BackendMemory,
		CatalogBackend: catalog.BackendMemory,
		MemoryBackend:  memory.BackendMemory,
		MaxThreads:     10,
		TempMaxAge:     time.Minute,
	}
}

func TestNewLocal(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := localConfig(t)

	app, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &catalog.MemoryStore{}, app.Catalog)
	assert.IsType(t, &vectorstore.MemoryStore{}, app.Vectors)
	assert.IsType(t, &memory.LRUStore{}, app.Memory)
	assert.IsType(t, events.Nop{}, app.Events)
	assert.Nil(t, app.Archive)
	require.NotNil(t, app.Service)
	require.NotNil(t, app.Library)
	assert.Equal(t, cfg.OrgDir, app.Library.OrgDir())

	s := app.Cleanup()
	assert.Equal(t, cfg.TempDir, s.TempDir)
	assert.Equal(t, time.Minute, s.TempMaxAge)
}

func TestNewCatalogOnly(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HOME", t.TempDir())

	app, err := New(context.Background(), localConfig(t), Options{SkipModels: true})
	require.NoError(t, err)
	assert.NotNil(t, app.Catalog)
	assert.NotNil(t, app.Library)
	assert.Nil(t, app.Vectors)
	assert.Nil(t, app.Service)
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HOME", t.TempDir())

	_, err := New(context.Background(), localConfig(t), Options{})
	var ve *auth.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, auth.ErrTypeNoKey, ve.Type)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"catalog", func(c *config.Config) { c.CatalogBackend = "mysql" }, "catalog backend"},
		{"vectors", func(c *config.Config) { c.VectorBackend = "faiss" }, "vector backend"},
		{"memory", func(c *config.Config) { c.MemoryBackend = "redis" }, "memory backend"},
		{"provider", func(c *config.Config) { c.Provider = "anthropic" }, "provider"},
		{"aurora without arns", func(c *config.Config) { c.VectorBackend = vectorstore.BackendAurora }, "VIDEO_AURORA_CLUSTER_ARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := localConfig(t)
			tt.mutate(&cfg)
			_, err := New(context.Background(), cfg, Options{})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
