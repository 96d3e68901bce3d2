package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cli.json")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "authctl.db", c.SessionDB)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_NoArgs(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeTempJSON(t, `{"server_url": "http://json:1/", "session_db": "json.db", "request_timeout": "3s"}`)

	cfg, err := LoadConfig([]string{"-c", path, "-d", "flag.db"})
	require.NoError(t, err)

	want := &Config{ServerURL: "http://json:1", SessionDB: "flag.db", RequestTimeout: 3 * time.Second}
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "bad flag value", args: []string{"-t", "abc"}},
		{name: "relative url", args: []string{"-a", "localhost:8080"}},
		{name: "zero timeout", args: []string{"-t", "0"}},
		{name: "missing file", args: []string{"-c", filepath.Join(os.TempDir(), "does-not-exist.json")}},
		{name: "broken json", args: []string{"-c", writeTempJSON(t, "{")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.args)
			assert.Error(t, err)
		})
	}
}
