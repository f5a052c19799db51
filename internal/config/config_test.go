package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSafetyConfig() SafetyConfig {
	return SafetyConfig{
		Version:           1,
		ToxicityThreshold: 0.3,
		HighRiskThreshold: 0.6,
		CriticalThreshold: 0.8,
		MaxProcessingTime: 500 * time.Millisecond,
		MaxInputLength:    10000,
		CombineRule:       "max",
	}
}

func TestSafetyConfigValidate_OK(t *testing.T) {
	cfg := validSafetyConfig()
	require.NoError(t, cfg.Validate())

	cfg.CombineRule = "weighted"
	require.NoError(t, cfg.Validate())
}

// TestSafetyConfigValidate_ThresholdOrdering verifies misordered thresholds
// are refused at startup rather than producing undefined risk mapping.
func TestSafetyConfigValidate_ThresholdOrdering(t *testing.T) {
	cfg := validSafetyConfig()
	cfg.ToxicityThreshold = 0.5
	cfg.HighRiskThreshold = 0.3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config invalid")

	equal := validSafetyConfig()
	equal.HighRiskThreshold = equal.CriticalThreshold
	assert.Error(t, equal.Validate(), "equal thresholds are also invalid")
}

func TestSafetyConfigValidate_Range(t *testing.T) {
	cfg := validSafetyConfig()
	cfg.CriticalThreshold = 1.2
	assert.Error(t, cfg.Validate())

	cfg = validSafetyConfig()
	cfg.ToxicityThreshold = -0.1
	assert.Error(t, cfg.Validate())
}

func TestSafetyConfigValidate_Misc(t *testing.T) {
	cfg := validSafetyConfig()
	cfg.MaxProcessingTime = 0
	assert.Error(t, cfg.Validate())

	cfg = validSafetyConfig()
	cfg.MaxInputLength = 0
	assert.Error(t, cfg.Validate())

	cfg = validSafetyConfig()
	cfg.CombineRule = "average"
	assert.Error(t, cfg.Validate(), "averaging is not a supported combine rule")
}

// TestSafetyConfigValidate_BandOverrides verifies an override that breaks
// the per-band ordering is refused.
func TestSafetyConfigValidate_BandOverrides(t *testing.T) {
	cfg := validSafetyConfig()
	cfg.AgeBandOverrides = map[string]ThresholdDelta{
		"toddler": {Toxicity: -0.1, HighRisk: -0.1, Critical: -0.1},
	}
	require.NoError(t, cfg.Validate())

	cfg.AgeBandOverrides["teen"] = ThresholdDelta{Toxicity: 0.4}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teen")
}

func TestThresholdsFor(t *testing.T) {
	cfg := validSafetyConfig()
	cfg.AgeBandOverrides = map[string]ThresholdDelta{
		"toddler": {Toxicity: -0.2, HighRisk: -0.2, Critical: -0.2},
	}

	tox, high, crit := cfg.ThresholdsFor("toddler")
	assert.InDelta(t, 0.1, tox, 1e-9)
	assert.InDelta(t, 0.4, high, 1e-9)
	assert.InDelta(t, 0.6, crit, 1e-9)

	tox, high, crit = cfg.ThresholdsFor("teen")
	assert.InDelta(t, 0.3, tox, 1e-9)
	assert.InDelta(t, 0.6, high, 1e-9)
	assert.InDelta(t, 0.8, crit, 1e-9)
}

// TestThresholdsFor_Clamped verifies deltas cannot push thresholds outside
// the unit interval.
func TestThresholdsFor_Clamped(t *testing.T) {
	cfg := validSafetyConfig()
	cfg.AgeBandOverrides = map[string]ThresholdDelta{
		"toddler": {Toxicity: -0.9, Critical: 0.9},
	}

	tox, _, crit := cfg.ThresholdsFor("toddler")
	assert.Zero(t, tox)
	assert.Equal(t, 1.0, crit)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.3, cfg.Safety.ToxicityThreshold, 1e-9)
	assert.InDelta(t, 0.6, cfg.Safety.HighRiskThreshold, 1e-9)
	assert.InDelta(t, 0.8, cfg.Safety.CriticalThreshold, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.Safety.MaxProcessingTime)
	assert.Equal(t, 10000, cfg.Safety.MaxInputLength)
	assert.Equal(t, "max", cfg.Safety.CombineRule)
	assert.True(t, cfg.Safety.NotifyParentsOnRisk)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 8, cfg.Batch.Workers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SAFETY_STRICT_MODE", "true")
	t.Setenv("SAFETY_TOXICITY_THRESHOLD", "0.2")
	t.Setenv("SERVER_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Safety.StrictMode)
	assert.InDelta(t, 0.2, cfg.Safety.ToxicityThreshold, 1e-9)
	assert.Equal(t, "0.0.0.0:9999", cfg.Addr())
}

func TestLoad_RejectsInvalidThresholds(t *testing.T) {
	t.Setenv("SAFETY_TOXICITY_THRESHOLD", "0.9")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config invalid")
}
