package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "", cfg.APIPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 15*time.Minute, cfg.Work.ClaimTTL)
	assert.False(t, cfg.Work.ReviewExcludeOwnWork)
	assert.Equal(t, int64(10*1024*1024), cfg.Ingestion.MaxUploadBytes)
	assert.Equal(t, 500, cfg.Ingestion.BatchSize)
	assert.Equal(t, 720*time.Hour, cfg.Ingestion.ArchiveRetention)
	assert.Nil(t, cfg.Session.BootstrapAdminEmails)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("API_PREFIX", "/api/v1/")
	v.Set("WORK_CLAIM_TTL", "2m")
	v.Set("SESSION_TTL", "not-a-duration")
	v.Set("BOOTSTRAP_ADMIN_EMAILS", " root@example.com, ,ops@example.com ")
	v.Set("INGEST_MAX_UPLOAD_BYTES", -1)

	cfg := fromViper(v)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 2*time.Minute, cfg.Work.ClaimTTL)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, []string{"root@example.com", "ops@example.com"}, cfg.Session.BootstrapAdminEmails)
	assert.Equal(t, int64(10*1024*1024), cfg.Ingestion.MaxUploadBytes)
}

func TestValidateRejectsDefaultSecretInProduction(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ENV", EnvProduction)

	cfg := fromViper(v)
	assert.ErrorIs(t, cfg.Validate(), ErrInsecureSessionSecret)

	cfg.Session.Secret = "  "
	assert.ErrorIs(t, cfg.Validate(), ErrInsecureSessionSecret)

	cfg.Session.Secret = "rotated-production-secret"
	assert.NoError(t, cfg.Validate())

	cfg.Env = EnvDevelopment
	cfg.Session.Secret = defaultSessionSecret
	assert.NoError(t, cfg.Validate())
}

func TestLoadFailsWithDefaultSecretInProduction(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("ENV", EnvProduction)
	t.Setenv("SESSION_SECRET", "")

	var cfg *Config
	cfg, err = Load()
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInsecureSessionSecret)
}
