package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []int{128, 64, 32}, cfg.MLPHiddenLayers)
	assert.Equal(t, 2020, cfg.TrainStartSeason)
	assert.Equal(t, 2023, cfg.TrainEndSeason)
	assert.Equal(t, 2024, cfg.ValidationSeason)
	assert.Equal(t, 2025, cfg.TestSeason)
	assert.Equal(t, "recency", cfg.SampleWeightScheme)
	assert.Equal(t, "elo", cfg.FallbackSource)
	assert.Equal(t, 1500.0, cfg.EloBase)
	assert.Equal(t, 65.0, cfg.EloHomeAdvantage)
	assert.Equal(t, 0.33, cfg.EloMeanReversion)
	assert.Equal(t, 150, cfg.GBRTTrees)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "production")
	t.Setenv("MLP_HIDDEN_LAYERS", "16, 8")
	t.Setenv("FALLBACK_SOURCE", "market")
	t.Setenv("ELO_K_FACTOR", "24")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []int{16, 8}, cfg.MLPHiddenLayers)
	assert.Equal(t, "market", cfg.FallbackSource)
	assert.Equal(t, 24.0, cfg.EloKFactor)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"fallback", "FALLBACK_SOURCE", "coinflip"},
		{"spread", "SPREAD_CONVENTION", "sideways"},
		{"weights", "SAMPLE_WEIGHT_SCHEME", "uniform"},
		{"layers", "MLP_HIDDEN_LAYERS", "128,zero"},
		{"split", "VALIDATION_SEASON", "2022"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
