package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crane.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	model, err := Load(context.Background(), filepath.Join(t.TempDir(), "crane.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), model)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
workers = 16

log {
  level  = "debug"
  format = "json"
}

cache {
  max_entries = 500
  state_dir   = ".state"
}

watch {
  enabled     = true
  debounce_ms = 100
  ignore      = [".git", "vendor"]
}
`)
	model, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 16, model.Workers)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, model.Log)
	assert.Equal(t, Cache{MaxEntries: 500, StateDir: ".state"}, model.Cache)
	assert.Equal(t, Watch{Enabled: true, DebounceMS: 100, Ignore: []string{".git", "vendor"}}, model.Watch)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
log {
  level = "warn"
}
`)
	model, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, Default().Workers, model.Workers)
	assert.Equal(t, "warn", model.Log.Level)
	assert.Equal(t, Default().Log.Format, model.Log.Format)
}

func TestLoad_RejectsInvalidSyntax(t *testing.T) {
	path := writeConfig(t, `log { level = `)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoad_RejectsUnknownAttribute(t *testing.T) {
	path := writeConfig(t, `concurrency = 4`)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}

func TestLoad_RejectsWrongTypes(t *testing.T) {
	path := writeConfig(t, `workers = "many"`)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestLoad_ValidatesValues(t *testing.T) {
	path := writeConfig(t, `workers = 0`)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be at least 1")
}

func TestValidate_CatchesBadSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Model)
		want   string
	}{
		{"bad level", func(m *Model) { m.Log.Level = "loud" }, "log level"},
		{"bad format", func(m *Model) { m.Log.Format = "xml" }, "log format"},
		{"negative cache", func(m *Model) { m.Cache.MaxEntries = -1 }, "max_entries"},
		{"empty state dir", func(m *Model) { m.Cache.StateDir = "" }, "state_dir"},
		{"negative debounce", func(m *Model) { m.Watch.DebounceMS = -5 }, "debounce_ms"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Default()
			tc.mutate(m)
			err := m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
