package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 0.70, cfg.CorroborationThreshold)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("CORROBORATION_THRESHOLD", "0.85")
	cfg := Load()
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 0.85, cfg.CorroborationThreshold)
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	raw := `
name: Cook County
code: cook
accepted_tiers:
  - GOVERNMENT
  - FINANCIAL_INSTITUTION
intake:
  rate_per_second: 2
  burst: 10
retention:
  audit_log_days: 3650
admission_rules:
  - 'submission.tier != "UNCORROBORATED_PERSON"'
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_cook.yaml"), []byte(raw), 0o644))

	p, err := LoadProfile(dir, "COOK")
	require.NoError(t, err)
	assert.Equal(t, "cook", p.Code)
	assert.True(t, p.AcceptsTier("GOVERNMENT"))
	assert.False(t, p.AcceptsTier("UNCORROBORATED_PERSON"))
	assert.Equal(t, 2.0, p.Intake.RatePerSecond)
	assert.Len(t, p.AdmissionRules, 1)

	all, err := LoadAllProfiles(dir)
	require.NoError(t, err)
	assert.Contains(t, all, "cook")
}

func TestLoadProfileMissing(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "nowhere")
	assert.Error(t, err)
}

func TestAcceptsTierEmptyListAcceptsAll(t *testing.T) {
	p := &JurisdictionProfile{}
	assert.True(t, p.AcceptsTier("UNCORROBORATED_PERSON"))
}
