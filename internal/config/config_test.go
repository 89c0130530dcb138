package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsMatchExternalInterface(t *testing.T) {
	d := Defaults()
	if d.MaxSize != 640 || d.Extension != "webp" || d.Quality != 90 || d.TimeoutSecs != 5 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if len(d.Fields) != 1 || d.Fields[0] != 0 || d.URLField != -1 {
		t.Fatalf("unexpected field defaults: %+v", d)
	}
}

func TestValidateRejectsProgressAndVerbose(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.csv")
	os.WriteFile(indexPath, []byte("id,url\n"), 0o644)

	c := Defaults()
	c.IndexPath = indexPath
	c.OutputRoot = dir
	c.Progress = true
	c.Verbose = 1

	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for progress+verbose combination")
	}
}

func TestValidateRejectsBadExtension(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.csv")
	os.WriteFile(indexPath, []byte("id,url\n"), 0o644)

	c := Defaults()
	c.IndexPath = indexPath
	c.OutputRoot = dir
	c.Extension = "bmp"

	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}

func TestValidateRejectsMissingIndex(t *testing.T) {
	c := Defaults()
	c.IndexPath = "/nonexistent/path/index.csv"
	c.OutputRoot = t.TempDir()

	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing index file")
	}
}

func TestLoadDefaultsFileOverlaysFields(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "rskachka.toml")
	contents := `
max_size = 1024
extension = "jpg"
quality = 75
`
	if err := os.WriteFile(cfgPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	c := Defaults()
	if err := LoadDefaultsFile(&c, cfgPath); err != nil {
		t.Fatalf("LoadDefaultsFile: %v", err)
	}
	if c.MaxSize != 1024 || c.Extension != "jpg" || c.Quality != 75 {
		t.Fatalf("overlay did not apply: %+v", c)
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.csv")
	os.WriteFile(indexPath, []byte("id,url\n"), 0o644)

	c := Defaults()
	c.IndexPath = indexPath
	c.OutputRoot = dir

	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
