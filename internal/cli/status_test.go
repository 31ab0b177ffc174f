package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, addr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opsagent.json")
	content := `{"alerts": {"addr": "` + addr + `"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runStatusCmd(t *testing.T, configPath string) string {
	t.Helper()
	prev := cfgFile
	cfgFile = configPath
	defer func() { cfgFile = prev }()

	var out bytes.Buffer
	cmd := statusCmd
	cmd.SetOut(&out)
	require.NoError(t, runStatus(cmd, nil))
	return out.String()
}

func TestStatus_DaemonRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"uptime":      "1m30s",
			"subscribers": 2,
		})
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	out := runStatusCmd(t, writeConfigFile(t, addr))

	assert.Contains(t, out, "Status: ok")
	assert.Contains(t, out, "Uptime: 1m30s")
	assert.Contains(t, out, "Alert subscribers: 2")
}

func TestStatus_DaemonStopped(t *testing.T) {
	out := runStatusCmd(t, writeConfigFile(t, "127.0.0.1:1"))
	assert.Contains(t, out, "Status: stopped")
}
