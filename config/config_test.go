package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "byterun.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadParsesAllSections(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[vm]
stack-words = 4096
frame-depth = 128

[analysis]
store = "idioms.db"

[log]
verbosity = 2
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.VM.StackWords != 4096 || c.VM.FrameDepth != 128 {
		t.Errorf("vm section = %+v", c.VM)
	}
	if c.Analysis.Store != "idioms.db" {
		t.Errorf("analysis.store = %q", c.Analysis.Store)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("log.verbosity = %d", c.Log.Verbosity)
	}
	if c.Dir != dir {
		t.Errorf("Dir = %q, want %q", c.Dir, dir)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[vm\nstack-words=")
	if _, err := Load(dir); err == nil {
		t.Error("Load accepted a malformed file")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[vm]\nstack-words = 99\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c.VM.StackWords != 99 {
		t.Errorf("stack-words = %d, want 99", c.VM.StackWords)
	}
}

func TestFindAndLoadDefaultsWhenAbsent(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c.VM.StackWords != 0 || c.Analysis.Store != "" {
		t.Errorf("defaults = %+v", c)
	}
}
