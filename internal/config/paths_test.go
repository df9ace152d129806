package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePaths_HomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUERYDESK_HOME", dir)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, dir, p.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p.Config)
	assert.Equal(t, filepath.Join(dir, ".env"), p.EnvFile)
	assert.Equal(t, filepath.Join(dir, "data", "state.db"), p.StateDB)
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv("QUERYDESK_HOME", filepath.Join(t.TempDir(), "qd"))
	p, err := ResolvePaths()
	require.NoError(t, err)

	require.NoError(t, p.EnsureDirs())
	for _, d := range []string{p.Base, p.Data} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"single segment", "server", []string{"server"}, false},
		{"two segments", "server.platform", []string{"server", "platform"}, false},
		{"empty", "", nil, true},
		{"empty segment", "server..platform", nil, true},
		{"trailing dot", "server.", nil, true},
		{"blocked key", "server.__proto__", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueAtPath(t *testing.T) {
	root := map[string]any{}
	SetValueAtPath(root, []string{"transport", "reconnectAttempts"}, 7)

	v, ok := GetValueAtPath(root, []string{"transport", "reconnectAttempts"})
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = GetValueAtPath(root, []string{"transport", "missing"})
	assert.False(t, ok)

	assert.True(t, UnsetValueAtPath(root, []string{"transport", "reconnectAttempts"}))
	assert.False(t, UnsetValueAtPath(root, []string{"transport", "reconnectAttempts"}))
}
