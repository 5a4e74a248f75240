package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorAdmin/internal/config"
	"vectorAdmin/internal/database"
)

func TestVectorDefaults(t *testing.T) {
	hits, err := Vector(Request{Query: "hello"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, Hit{Content: "Result 1 for hello", Score: 0.95, Source: "doc1.pdf"}, hits[0])
	assert.Equal(t, Hit{Content: "Result 2 for hello", Score: 0.88, Source: "doc2.pdf"}, hits[1])
}

func TestVectorTopK(t *testing.T) {
	hits, err := Vector(Request{Query: "q", TopK: 100})
	require.NoError(t, err)
	assert.Len(t, hits, MaxTopK)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}

	_, err = Vector(Request{Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = Vector(Request{Query: "q", Mode: "fuzzy"})
	assert.Error(t, err)
}

func TestCleanLLMOutput(t *testing.T) {
	in := "here is the answer:\nLine one\n\n   \nLine two\nI HOPE THIS HELPS.  "
	assert.Equal(t, "Line one\nLine two", CleanLLMOutput(in))
	assert.Equal(t, "", CleanLLMOutput("\n\n"))
}

func TestKBConfigPersistence(t *testing.T) {
	db, err := database.InitDatabase(config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: database.MemoryDSN(t.Name())})
	require.NoError(t, err)
	ctx := context.Background()

	cfg, err := LoadKBConfig(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, DefaultKBConfig(), cfg)

	cfg.RetrievalMode = RetrievalDense
	cfg.TopK = 1
	require.NoError(t, SaveKBConfig(ctx, db, cfg))
	cfg.TopK = 2
	require.NoError(t, SaveKBConfig(ctx, db, cfg))

	got, err := LoadKBConfig(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, RetrievalDense, got.RetrievalMode)
	assert.Equal(t, 2, got.TopK)

	bad := got
	bad.EmbeddingModel = "gpt"
	assert.Error(t, SaveKBConfig(ctx, db, bad))
}

func TestRetrieve(t *testing.T) {
	cfg := DefaultKBConfig()
	hits, err := Retrieve("向量", ModeSemantic, cfg)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 0.92, hits[0].Score)

	cfg.TopK = 1
	hits, err = Retrieve("x", ModeHybrid, cfg)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	cfg = DefaultKBConfig()
	hits, err = Retrieve("hybrid search", ModeExact, cfg)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Architecture_Review.pptx", hits[0].Source)

	cfg.ScoreThreshold = 0.9
	hits, err = Retrieve("x", ModeSemantic, cfg)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
