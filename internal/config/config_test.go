package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FullFile(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "gasoline.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Store.MaxSteps)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "./gasoline.db", cfg.Persistence.Database)
	assert.False(t, cfg.Persistence.RecordActions)
	require.NotNil(t, cfg.Service)
	assert.Equal(t, 2*time.Second, cfg.Service.DialTimeout)
	assert.Equal(t, 50.0, cfg.Service.SendRate)
	assert.Equal(t, "todo_app", cfg.Metrics.Namespace)

	assert.Len(t, cfg.EngineOptions(slog.Default()), 2)
	assert.Len(t, cfg.AdapterOptions(slog.Default()), 4)
}

func TestParse_EmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Nil(t, cfg.AdapterOptions(slog.Default()))
}

func TestParse_ServiceDefaults(t *testing.T) {
	cfg, err := Parse([]byte("service:\n  url: wss://example.com/ws\n"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Service.DialTimeout)
	assert.Len(t, cfg.AdapterOptions(slog.Default()), 3)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("store:\n  max_stepz: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_stepz")
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"negative max steps", "store:\n  max_steps: -1\n", "max_steps"},
		{"unknown log level", "store:\n  log_level: loud\n", "log_level"},
		{"http service url", "service:\n  url: http://example.com\n", "url"},
		{"bad namespace", "metrics:\n  namespace: 9lives\n", "namespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.NotEmpty(t, verrs)
			assert.Contains(t, verrs[0].Field, tt.field)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
