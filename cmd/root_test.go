package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const msbaPage = `<html><head><title>MSBA</title></head><body><main>
<p>The MS in Business Analytics program trains data-driven leaders.</p>
<p>Reach the program office at msba@utdallas.edu or 972-883-2705.</p>
</main></body></html>`

func writeConfig(t *testing.T, url, dataDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.yaml")
	body := fmt.Sprintf(`
ingest:
  urls: ["%s"]
  delay_seconds: 0
  max_retries: 0
storage:
  backend: local
  base_dir: %s
embedding:
  provider: hash
  dimensions: 64
logging:
  level: error
`, url, dataDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(args ...string) error {
	root, sess := newRootCmd()
	root.SetArgs(args)
	return execute(context.Background(), root, sess)
}

func TestIngestThenIndex(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(msbaPage))
	}))
	defer ts.Close()

	dataDir := t.TempDir()
	cfgPath := writeConfig(t, ts.URL+"/msba", dataDir)

	require.NoError(t, run("--config", cfgPath, "ingest"))
	assert.FileExists(t, filepath.Join(dataDir, "utd_data.json"))
	assert.FileExists(t, filepath.Join(dataDir, "vector_index.json"))

	require.NoError(t, os.Remove(filepath.Join(dataDir, "vector_index.json")))
	require.NoError(t, run("--config", cfgPath, "index"))
	assert.FileExists(t, filepath.Join(dataDir, "vector_index.json"))
}

func TestIngestFailsWhenNothingScraped(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	dataDir := t.TempDir()
	err := run("--config", writeConfig(t, ts.URL+"/gone", dataDir), "ingest", "--skip-index")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dataDir, "utd_data.json"))
}

func TestBadConfigFails(t *testing.T) {
	err := run("--config", filepath.Join(t.TempDir(), "missing.yaml"), "index")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestServicesClosedAfterFailedCommand(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	root, sess := newRootCmd()
	root.SetArgs([]string{"--config", writeConfig(t, ts.URL+"/gone", t.TempDir()), "ingest", "--skip-index"})
	require.Error(t, execute(context.Background(), root, sess))

	require.NotNil(t, sess.svc, "services were opened before the command failed")
	assert.True(t, sess.closed)
}

func TestSessionCloseWithoutServices(t *testing.T) {
	sess := &session{}
	sess.close()
	assert.False(t, sess.closed)
}
