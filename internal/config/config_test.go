package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != "badger" {
		t.Errorf("store = %q, want badger", cfg.Store)
	}
	if cfg.SearchBackend != "sqlite" {
		t.Errorf("search backend = %q, want sqlite", cfg.SearchBackend)
	}
	if cfg.GrpcAddr != ":50051" {
		t.Errorf("grpc addr = %q", cfg.GrpcAddr)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("REVSTORE_STORE", "memory")
	t.Setenv("REVSTORE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != "memory" {
		t.Errorf("store = %q, want memory", cfg.Store)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "revstore.yaml")
	body := "store: memory\nsearch_backend: memory\ngrpc_addr: \":6000\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != "memory" || cfg.SearchBackend != "memory" {
		t.Errorf("backends = %q/%q, want memory/memory", cfg.Store, cfg.SearchBackend)
	}
	if cfg.GrpcAddr != ":6000" {
		t.Errorf("grpc addr = %q, want :6000", cfg.GrpcAddr)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := &Config{Store: "etcd", SearchBackend: "sqlite", BinaryBackend: "memory"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown store backend")
	}
}
