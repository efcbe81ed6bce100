package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

const minimalConfig = `
global:
  log_level: info
detection:
  implementation: zkx-gpu
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Global.LogLevel)
	assert.Equal(t, "zkx-gpu", cfg.Detection.Implementation)
	assert.InDelta(t, DefaultRegressionThreshold, cfg.Detection.RegressionThreshold, 1e-9)
	assert.Equal(t, DefaultRollingWindow, cfg.Detection.RollingWindow)
	assert.Equal(t, DefaultResultsFile, cfg.Detection.ResultsFile)
	assert.Equal(t, DefaultHistoryDir, cfg.Storage.HistoryDir)
	assert.InDelta(t, DefaultCPULoadThreshold, cfg.SysLoad.CPULoadThreshold, 1e-9)
	assert.False(t, cfg.Detection.StoreResults)
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "zkx-gpu", cfg.Detection.Implementation)
			},
		},
		{
			name: "string override - implementation",
			envVars: map[string]string{
				"PERFGATE_DETECTION_IMPLEMENTATION": "zkx-cpu",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "zkx-cpu", cfg.Detection.Implementation)
			},
		},
		{
			name: "float override - regression_threshold",
			envVars: map[string]string{
				"PERFGATE_DETECTION_REGRESSION_THRESHOLD": "0.25",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.InDelta(t, 0.25, cfg.Detection.RegressionThreshold, 1e-9)
			},
		},
		{
			name: "int override - rolling_window",
			envVars: map[string]string{
				"PERFGATE_DETECTION_ROLLING_WINDOW": "10",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10, cfg.Detection.RollingWindow)
			},
		},
		{
			name: "bool override - store_results",
			envVars: map[string]string{
				"PERFGATE_DETECTION_STORE_RESULTS": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Detection.StoreResults)
			},
		},
		{
			name: "nested override - analysis api key",
			envVars: map[string]string{
				"PERFGATE_ANALYSIS_API_KEY": "sk-test",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "sk-test", cfg.Analysis.APIKey)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(writeConfig(t, minimalConfig))
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Detection.Implementation = "zkx-gpu"
		cfg.applyDefaults()

		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantField string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name: "missing implementation",
			mutate: func(cfg *Config) {
				cfg.Detection.Implementation = ""
			},
			wantField: "detection.implementation",
		},
		{
			name: "negative threshold",
			mutate: func(cfg *Config) {
				cfg.Detection.RegressionThreshold = -0.1
			},
			wantField: "detection.regression_threshold",
		},
		{
			name: "threshold of one",
			mutate: func(cfg *Config) {
				cfg.Detection.RegressionThreshold = 1.0
			},
			wantField: "detection.regression_threshold",
		},
		{
			name: "zero rolling window",
			mutate: func(cfg *Config) {
				cfg.Detection.RollingWindow = 0
			},
			wantField: "detection.rolling_window",
		},
		{
			name: "negative rolling window",
			mutate: func(cfg *Config) {
				cfg.Detection.RollingWindow = -3
			},
			wantField: "detection.rolling_window",
		},
		{
			name: "bad metric direction",
			mutate: func(cfg *Config) {
				cfg.Detection.MetricDirections = map[string]string{
					"proof_size": "smaller_is_nicer",
				}
			},
			wantField: "detection.metric_directions.proof_size",
		},
		{
			name: "s3 enabled without bucket",
			mutate: func(cfg *Config) {
				cfg.Storage.S3 = &S3StorageConfig{Enabled: true}
			},
			wantField: "storage.s3.bucket",
		},
		{
			name: "dashboard sqlite without path",
			mutate: func(cfg *Config) {
				cfg.Dashboard.Enabled = true
				cfg.Dashboard.Database.Driver = "sqlite"
			},
			wantField: "dashboard.database.sqlite.path",
		},
		{
			name: "dashboard unknown driver",
			mutate: func(cfg *Config) {
				cfg.Dashboard.Enabled = true
				cfg.Dashboard.Database.Driver = "oracle"
			},
			wantField: "dashboard.database.driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)

				return
			}

			var cfgErr *ConfigurationError

			require.Error(t, err)
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}
