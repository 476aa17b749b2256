package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingualens/lingualens/internal/core"
)

func TestSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultsWhenEmpty", func(t *testing.T) {
		settings, err := Settings{KV: NewMemoryKV()}.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, core.DefaultSettings(), settings)
	})

	t.Run("SetAndLoad", func(t *testing.T) {
		s := Settings{KV: NewMemoryKV()}
		require.NoError(t, s.Set(ctx, "blur_toxic", "false"))
		require.NoError(t, s.Set(ctx, "toxicity_threshold", "0.55"))
		require.NoError(t, s.Set(ctx, "target_lang", " DE "))

		settings, err := s.Load(ctx)
		require.NoError(t, err)
		assert.False(t, settings.BlurToxic)
		assert.Equal(t, 0.55, settings.ToxicityThreshold)
		assert.Equal(t, "de", settings.TargetLang)
		assert.True(t, settings.Enabled)

		value, err := s.Get(ctx, "target_lang")
		require.NoError(t, err)
		assert.Equal(t, "de", value)
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		s := Settings{KV: NewMemoryKV()}
		require.ErrorIs(t, s.Set(ctx, "colour", "red"), ErrUnknownSetting)
		require.Error(t, s.Set(ctx, "enabled", "maybe"))
		require.Error(t, s.Set(ctx, "toxicity_threshold", "1.5"))
		require.Error(t, s.Set(ctx, "source_lang", "  "))

		_, err := s.Get(ctx, "colour")
		require.ErrorIs(t, err, ErrUnknownSetting)
	})

	t.Run("ResetRestoresDefault", func(t *testing.T) {
		s := Settings{KV: NewMemoryKV()}
		require.NoError(t, s.Set(ctx, "compact_mode", "false"))
		require.NoError(t, s.Reset(ctx, "compact_mode"))

		value, err := s.Get(ctx, "compact_mode")
		require.NoError(t, err)
		assert.Equal(t, "true", value)
	})

	t.Run("Names", func(t *testing.T) {
		assert.Equal(t, []string{
			"blur_toxic", "compact_mode", "enabled", "source_lang", "target_lang", "toxicity_threshold",
		}, SettingNames())
		assert.Len(t, Values(core.DefaultSettings()), len(SettingNames()))
	})
}

func TestStatsOverMemoryKV(t *testing.T) {
	ctx := context.Background()
	stats := NewStats(NewMemoryKV())

	require.NoError(t, stats.RecordAnalysis(ctx, false))
	require.NoError(t, stats.RecordAnalysis(ctx, true))
	require.NoError(t, stats.RecordAnalysis(ctx, true))

	got, err := stats.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{AnalyzedCount: 3, ToxicCount: 2}, got)

	require.NoError(t, stats.Reset(ctx))
	got, err = stats.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{}, got)
}

func TestStatsCorruptCounter(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, statsAnalyzedKey, "many"))

	_, err := NewStats(kv).Get(ctx)
	require.Error(t, err)
}
