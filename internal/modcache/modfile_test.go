package modcache

import (
	"io/ioutil"
	"os"
	"strings"
	"testing"
)

func TestModFile(t *testing.T) {
	content := `
module kuroko-test

remote_cache kuroko-cache-dynamodb
cache_dir .build-cache
`
	tmpfile, err := ioutil.TempFile("", "kuroko.mod")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseModFile(tmpfile.Name())
	if err != nil {
		t.Fatalf("ParseModFile failed: %v", err)
	}

	if cfg.Module != "kuroko-test" {
		t.Errorf("expected module kuroko-test, got %s", cfg.Module)
	}
	if cfg.RemotePlugin() != "kuroko-cache-dynamodb" {
		t.Errorf("expected remote_cache kuroko-cache-dynamodb, got %s", cfg.RemotePlugin())
	}
	if cfg.CachePath() != ".build-cache" {
		t.Errorf("expected cache_dir .build-cache, got %s", cfg.CachePath())
	}

	cfg.Settings["cache_dir"] = ".other-cache"
	if err := cfg.Save(tmpfile.Name()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := ioutil.ReadFile(tmpfile.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), ".other-cache") {
		t.Errorf("expected saved content to contain '.other-cache', got:\n%s", string(data))
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	if cfg.CachePath() != ".kuroko-cache" {
		t.Errorf("expected default cache path, got %s", cfg.CachePath())
	}
	if cfg.RemotePlugin() != "" {
		t.Errorf("expected no remote plugin configured by default, got %s", cfg.RemotePlugin())
	}
}
