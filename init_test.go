package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitCreatesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reflgen.yaml")

	runOK(t, "init", path)

	var got fileConfig
	if err := yaml.Unmarshal([]byte(readFile(t, path)), &got); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	want := defaultFileConfig()
	if got.Input != want.Input || got.Output != want.Output || got.Suffix != want.Suffix {
		t.Errorf("config = %+v, want %+v", got, want)
	}
	if got.RootMarker != "wir::Class" || got.RuntimeInclude != "WIR/Class.hpp" {
		t.Errorf("runtime defaults = %q, %q", got.RootMarker, got.RuntimeInclude)
	}
	if len(got.Extensions) != 1 || got.Extensions[0] != ".hpp" {
		t.Errorf("extensions = %v", got.Extensions)
	}
}

func TestInitDryRun(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reflgen.yaml")

	out, _ := runOK(t, "init", "--dry-run", path)

	if !strings.HasPrefix(out, configHeader) {
		t.Errorf("dry run output missing header comment:\n%s", out)
	}
	if !strings.Contains(out, "root-marker: wir::Class") {
		t.Errorf("dry run output missing root-marker:\n%s", out)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("--dry-run should not create the file")
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, t.TempDir(), "reflgen.yaml", "input: src\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{"init", path}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already-exists error, got %v", err)
	}
	if got := readFile(t, path); got != "input: src\n" {
		t.Errorf("existing file modified: %q", got)
	}

	runOK(t, "init", "--force", path)
	if got := readFile(t, path); !strings.Contains(got, "input: .") {
		t.Errorf("--force did not overwrite:\n%s", got)
	}
}

func TestInitConfigDrivesGenerate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in, out := filepath.Join(dir, "src"), filepath.Join(dir, "gen")
	writeTestFile(t, in, "widget.hpp", chainHeader)

	cfg := defaultFileConfig()
	cfg.Input, cfg.Output = in, out
	cfg.CacheDir = filepath.Join(dir, "cache")
	data, err := renderConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := writeTestFile(t, dir, "reflgen.yaml", string(data))

	runOK(t, "--config", path, "generate")
	if _, err := os.Stat(filepath.Join(out, "widget.generated.cpp")); err != nil {
		t.Fatalf("generate did not honor rendered config: %v", err)
	}
	if blobs, _ := filepath.Glob(filepath.Join(cfg.CacheDir, "*.rflg")); len(blobs) != 1 {
		t.Errorf("expected one cache blob, got %v", blobs)
	}
}
