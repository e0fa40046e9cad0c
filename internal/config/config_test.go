package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
dialect:
  package: dflow
  input_stream: In
diag_format: json
metadata: out/topology.yaml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	want.Dialect.Package = "dflow"
	want.Dialect.InputStream = "In"
	want.DiagFormat = "json"
	want.Metadata = "out/topology.yaml"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "dialect:\n  packge: tlp\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "packge") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadRejectsEmptyDialectName(t *testing.T) {
	path := writeConfig(t, "dialect:\n  output_stream: \"\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "dialect.output_stream must not be empty") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TLPC_DIAG_FORMAT", "json")
	t.Setenv("TLPC_DIALECT_PACKAGE", "hls")
	t.Setenv("TLPC_NO_FORMAT", "1")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.DiagFormat != "json" || cfg.Dialect.Package != "hls" || cfg.Format {
		t.Fatalf("environment not applied: %+v", cfg)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tlpc.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
