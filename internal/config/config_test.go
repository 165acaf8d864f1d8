package config

import (
	"testing"
	"time"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, models.RegimeGeral, cfg.Extraction.Regime)
	assert.Equal(t, models.FieldSetMinimal, cfg.Extraction.FieldSet)
	assert.Equal(t, 10, cfg.Extraction.Workers)
	assert.Equal(t, 5, cfg.Extraction.RecoveryWorkers)
	assert.Equal(t, 3, cfg.Extraction.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Extraction.RetryDelay)
	assert.Equal(t, 10, cfg.Portal.PageSize)
	assert.Zero(t, cfg.Extraction.CompletenessThreshold)
	assert.Equal(t, 61*time.Minute, cfg.Extraction.PoolTimeout())
	assert.Equal(t, []string{"csv"}, cfg.Export.Formats)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TJRJ_REGIME", "Especial")
	t.Setenv("TJRJ_FIELD_SET", "full")
	t.Setenv("TJRJ_WORKERS", "3")
	t.Setenv("TJRJ_RETRY_DELAY", "2.5")
	t.Setenv("TJRJ_PAGE_LOAD_TIMEOUT", "45s")
	t.Setenv("TJRJ_COMPLETENESS_THRESHOLD", "0.9")
	t.Setenv("TJRJ_EXPORT_FORMATS", "csv, excel")
	t.Setenv("TJRJ_BASE_URL", "http://localhost:9999/precatorio/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, models.RegimeEspecial, cfg.Extraction.Regime)
	assert.Equal(t, models.FieldSetFull, cfg.Extraction.FieldSet)
	assert.Equal(t, 3, cfg.Extraction.Workers)
	assert.Equal(t, 3, cfg.Extraction.RecoveryWorkers, "recovery workers default to min(5, workers)")
	assert.Equal(t, 2500*time.Millisecond, cfg.Extraction.RetryDelay)
	assert.Equal(t, 45*time.Second, cfg.Extraction.PageTimeout)
	assert.InDelta(t, 0.9, cfg.Extraction.CompletenessThreshold, 1e-9)
	assert.Equal(t, []string{"csv", "excel"}, cfg.Export.Formats)
	assert.Equal(t, "http://localhost:9999/precatorio", cfg.Portal.BaseURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("regime", func(t *testing.T) {
		t.Setenv("TJRJ_REGIME", "municipal")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("threshold", func(t *testing.T) {
		t.Setenv("TJRJ_COMPLETENESS_THRESHOLD", "1.5")
		_, err := Load()
		assert.ErrorContains(t, err, "completeness threshold")
	})

	t.Run("workers", func(t *testing.T) {
		t.Setenv("TJRJ_WORKERS", "0")
		t.Setenv("TJRJ_RECOVERY_WORKERS", "1")
		_, err := Load()
		assert.ErrorContains(t, err, "workers must be at least 1")
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("TJRJ_EXPORT_FORMATS", "postgres")
		_, err := Load()
		assert.ErrorContains(t, err, "TJRJ_PG_DSN")
	})
}

func TestTimeoutsFollowConfig(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	timeouts := cfg.Timeouts()
	assert.Equal(t, 30*time.Second, timeouts.ServerReadTimeout)
	assert.Equal(t, cfg.Browser.StartupTimeout+cfg.Extraction.PageTimeout, timeouts.PreflightTimeout)
}
