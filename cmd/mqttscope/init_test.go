package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/nugget/mqttscope/internal/config"
)

// clearUmask sets the process umask to 0 so file permission assertions are
// deterministic. It restores the original umask when the test completes.
func clearUmask(t *testing.T) {
	t.Helper()
	old := syscall.Umask(0)
	t.Cleanup(func() { syscall.Umask(old) })
}

func TestRunInit_FreshDirectory(t *testing.T) {
	clearUmask(t)
	dir := filepath.Join(t.TempDir(), "scope")
	var buf bytes.Buffer

	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	path := filepath.Join(dir, "mqttscope.yaml")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("mqttscope.yaml not created: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("mqttscope.yaml permissions = %o, want 0600", got)
	}
	if !strings.Contains(buf.String(), "✓") {
		t.Errorf("output missing success marker:\n%s", buf.String())
	}

	// The example must load as a valid configuration.
	t.Setenv("MQTTSCOPE_PASSWORD", "secret")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Broker.URL != "tcp://localhost:1883" {
		t.Errorf("Broker.URL = %q", cfg.Broker.URL)
	}
	if cfg.Broker.Password != "secret" {
		t.Errorf("Broker.Password = %q, want expanded env var", cfg.Broker.Password)
	}
}

func TestRunInit_SkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("first runInit failed: %v", err)
	}

	sentinel := []byte("# sentinel, do not overwrite\n")
	path := filepath.Join(dir, "mqttscope.yaml")
	if err := os.WriteFile(path, sentinel, 0o600); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}

	buf.Reset()
	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("second runInit failed: %v", err)
	}
	if !strings.Contains(buf.String(), "exists, skipping") {
		t.Error("output missing 'exists, skipping' for pre-existing file")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, sentinel) {
		t.Error("mqttscope.yaml was overwritten")
	}
}

func TestWriteIfMissing_CreateError(t *testing.T) {
	// A regular file where a directory is expected makes OpenFile fail
	// with something other than ErrExist.
	dir := t.TempDir()
	parent := filepath.Join(dir, "blocker")
	if err := os.WriteFile(parent, []byte("i am a file"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	var buf bytes.Buffer
	err := writeIfMissing(&buf, filepath.Join(parent, "file.txt"), []byte("data"), 0o644)
	if err == nil {
		t.Fatal("expected error for create failure, got nil")
	}
	if !strings.Contains(err.Error(), "create") {
		t.Errorf("error = %q, want it to mention 'create'", err)
	}
}

func TestRun_Init(t *testing.T) {
	dir := t.TempDir()
	out, _, err := runCmd(t, "init", dir)
	if err != nil {
		t.Fatalf("run(init) error = %v", err)
	}
	if !strings.Contains(out, "mqttscope.yaml") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "mqttscope.yaml")); err != nil {
		t.Errorf("config not written: %v", err)
	}
}
