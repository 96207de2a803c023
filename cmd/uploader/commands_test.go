package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotAPI — записывает вызванные методы Bot API
type fakeBotAPI struct {
	mu      sync.Mutex
	methods []string
	ok      bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.methods = append(f.methods, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
	ok := f.ok
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
}

func setupEnv(t *testing.T, api *fakeBotAPI) {
	t.Helper()
	for _, k := range []string{"MAX_LOCAL_MB", "RETENTION_HOURS", "DEBUG", "LISTEN_ADDR"} {
		t.Setenv(k, "")
	}
	t.Setenv("UPLOAD_DIR", "/data/uploads")
	t.Setenv("TELEGRAM_TOKEN", "123:secret")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	if api != nil {
		srv := httptest.NewServer(api)
		t.Cleanup(srv.Close)
		t.Setenv("TELEGRAM_API_ENDPOINT", srv.URL+"/bot%s/%s")
	}
}

func execute(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := &App{FS: fs, Out: &out, LogOut: &bytes.Buffer{}}
	root := NewRootCommand(app)
	root.SetArgs(append(args, "--config-dir", t.TempDir()))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSend_LocalFile(t *testing.T) {
	api := &fakeBotAPI{ok: true}
	setupEnv(t, api)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/op/report.pdf", []byte("%PDF-1.4"), 0o644))

	out, err := execute(t, fs, "send", "--file", "/home/op/report.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved report.pdf (8.0B) locally and sent it to Telegram.")
	assert.Equal(t, []string{"sendDocument"}, api.methods)

	got, err := afero.ReadFile(fs, "/data/uploads/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(got))
}

func TestSend_RelayFailureExitsWithError(t *testing.T) {
	setupEnv(t, &fakeBotAPI{ok: false})
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmp/a.txt", []byte("a"), 0o644))

	_, err := execute(t, fs, "send", "--file", "/tmp/a.txt", "--name", "b.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	// файл сохранён под новым именем
	ok, _ := afero.Exists(fs, "/data/uploads/b.txt")
	assert.True(t, ok)
}

func TestSend_NoInput(t *testing.T) {
	setupEnv(t, &fakeBotAPI{ok: true})
	_, err := execute(t, afero.NewMemMapFs(), "send")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "please upload a file or provide a URL")
}

func TestSend_MissingCredentials(t *testing.T) {
	setupEnv(t, nil)
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")

	_, err := execute(t, afero.NewMemMapFs(), "send", "--url", "http://example.invalid/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_TOKEN and TELEGRAM_CHAT_ID")
}

func TestServe_MissingCredentials(t *testing.T) {
	setupEnv(t, nil)
	t.Setenv("TELEGRAM_CHAT_ID", "")

	_, err := execute(t, afero.NewMemMapFs(), "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
}

func TestList(t *testing.T) {
	setupEnv(t, nil)
	t.Setenv("TELEGRAM_TOKEN", "")
	fs := afero.NewMemMapFs()

	out, err := execute(t, fs, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No files uploaded yet.")

	require.NoError(t, afero.WriteFile(fs, "/data/uploads/old.bin", make([]byte, 2048), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/uploads/new.txt", []byte("x"), 0o644))
	require.NoError(t, fs.Chtimes("/data/uploads/old.bin", time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	out, err = execute(t, fs, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "new.txt"))
	assert.Contains(t, lines[1], "2.0KB")
}

func TestCleanup(t *testing.T) {
	setupEnv(t, nil)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/uploads/stale.txt", []byte("s"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/uploads/fresh.txt", []byte("f"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, fs.Chtimes("/data/uploads/stale.txt", old, old))

	_, err := execute(t, fs, "cleanup")
	require.Error(t, err, "retention is off by default")

	out, err := execute(t, fs, "cleanup", "--older-than", "24h")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1 file(s)")

	ok, _ := afero.Exists(fs, "/data/uploads/stale.txt")
	assert.False(t, ok)
	ok, _ = afero.Exists(fs, "/data/uploads/fresh.txt")
	assert.True(t, ok)
}

func TestSend_FileWinsOverURL(t *testing.T) {
	api := &fakeBotAPI{ok: true}
	setupEnv(t, api)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmp/local.txt", []byte("local"), 0o644))

	out, err := execute(t, fs, "send", "--file", "/tmp/local.txt", "--url", "http://example.invalid/remote.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved local.txt")

	ok, _ := afero.Exists(fs, "/data/uploads/remote.txt")
	assert.False(t, ok)
}
