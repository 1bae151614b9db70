package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "model.pkl", cfg.Model.Path)
	assert.Equal(t, "ocorrencias.csv", cfg.Training.DataPath)
	assert.Equal(t, "0.0.0.0:5001", cfg.HTTP.Addr())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Training.NEstimators)
	assert.Equal(t, 4, cfg.Training.MaxDepth)
	assert.InDelta(t, 0.1, cfg.Training.LearningRate, 1e-12)
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 8081
  timeout: 10s
model:
  path: /var/lib/ocorrencias/model.pkl
database:
  path: ocorrencias.db
  log_predictions: true
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "/var/lib/ocorrencias/model.pkl", cfg.Model.Path)
	assert.Equal(t, "ocorrencias.db", cfg.Database.Path)
	assert.True(t, cfg.Database.LogPredictions)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 1024, cfg.Cache.Size)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port", "http:\n  port: 70000\n"},
		{"estimators", "training:\n  n_estimators: 0\n"},
		{"depth", "training:\n  max_depth: -1\n"},
		{"learning rate", "training:\n  learning_rate: 0\n"},
		{"cache", "cache:\n  size: -5\n"},
		{"model path", "model:\n  path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "http: [unterminated"))
	assert.Error(t, err)
}
