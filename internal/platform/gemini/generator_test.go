package gemini

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/pathlight/pathlight-api/internal/config"
	"github.com/pathlight/pathlight-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewGeminiGenerator_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("nil logger", func(t *testing.T) {
		t.Parallel()
		_, err := NewGeminiGenerator(ctx, nil, config.GenerationConfig{
			GeminiAPIKey: "key",
			ModelName:    "gemini-2.0-flash",
		})
		assert.Error(t, err)
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Parallel()
		_, err := NewGeminiGenerator(ctx, testLogger(), config.GenerationConfig{
			ModelName: "gemini-2.0-flash",
		})
		assert.ErrorIs(t, err, generation.ErrInvalidConfig)
	})

	t.Run("missing model name", func(t *testing.T) {
		t.Parallel()
		_, err := NewGeminiGenerator(ctx, testLogger(), config.GenerationConfig{
			GeminiAPIKey: "key",
		})
		assert.ErrorIs(t, err, generation.ErrInvalidConfig)
	})

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		g, err := NewGeminiGenerator(ctx, testLogger(), config.GenerationConfig{
			GeminiAPIKey: "key",
			ModelName:    "gemini-2.0-flash",
		})
		require.NoError(t, err)
		assert.NotNil(t, g)
	})
}

func TestGeminiGenerator_RejectsEmptyInput(t *testing.T) {
	t.Parallel()

	g, err := NewGeminiGenerator(context.Background(), testLogger(), config.GenerationConfig{
		GeminiAPIKey: "key",
		ModelName:    "gemini-2.0-flash",
	})
	require.NoError(t, err)

	_, err = g.ExtractGoals(context.Background(), "   ")
	assert.ErrorIs(t, err, generation.ErrEmptyTopic)
}
