package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:      "/home/user/.local/share/glance",
		LogDir:       "/home/user/.local/share/glance/log",
		DefaultStore: "s3",
		Registry:     RegistryConfig{Type: "sqlite", DataDir: "/home/user/.local/share/glance/registry"},
		Stores: []StoreConfig{
			{Type: "file", Root: "/srv/glance/images", ChunkSize: 2},
			{Type: "http"},
			{
				Type:        "s3",
				S3Endpoint:  "s3.amazonaws.com",
				S3Region:    "eu-west-1",
				S3Bucket:    "glance",
				S3AccessKey: "access",
				S3SecretKey: "secret",
			},
			{
				Type:           "swift",
				SwiftAuthURL:   "auth.example.com",
				SwiftUser:      "user",
				SwiftKey:       "key",
				SwiftContainer: "glance",
			},
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/glance/keys/glance.pub",
			PrivateKeyPath: "/home/user/.local/share/glance/keys/glance.key",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.DefaultStore != "s3" {
		t.Errorf("DefaultStore = %q, want s3", got.DefaultStore)
	}
	if got.Registry.Type != "sqlite" {
		t.Errorf("Registry.Type = %q, want sqlite", got.Registry.Type)
	}
	if len(got.Stores) != 4 {
		t.Fatalf("len(Stores) = %d, want 4", len(got.Stores))
	}
	if got.Stores[0].Type != "file" || got.Stores[0].Root != "/srv/glance/images" {
		t.Errorf("file store = %+v", got.Stores[0])
	}
	if got.Stores[0].ChunkSize != 2 {
		t.Errorf("file store ChunkSize = %d, want 2", got.Stores[0].ChunkSize)
	}
	if got.Stores[2].S3Bucket != "glance" || got.Stores[2].S3Region != "eu-west-1" {
		t.Errorf("s3 store = %+v", got.Stores[2])
	}
	if got.Stores[3].SwiftAuthURL != "auth.example.com" || got.Stores[3].SwiftContainer != "glance" {
		t.Errorf("swift store = %+v", got.Stores[3])
	}
	if got.Encryption.Type != "age" {
		t.Errorf("Encryption.Type = %q, want age", got.Encryption.Type)
	}
	if got.Encryption.PublicKeyPath != original.Encryption.PublicKeyPath {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", got.Encryption.PublicKeyPath, original.Encryption.PublicKeyPath)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/glance")

	if cfg.BaseDir != "/data/glance" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/glance")
	}
	if cfg.LogDir != "/data/glance/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/glance/log")
	}
	if cfg.DefaultStore != "file" {
		t.Errorf("DefaultStore = %q, want file", cfg.DefaultStore)
	}
	if cfg.Registry.Type != "sqlite" {
		t.Errorf("Registry.Type = %q, want sqlite", cfg.Registry.Type)
	}
	if cfg.Registry.DataDir != "/data/glance/registry" {
		t.Errorf("Registry.DataDir = %q, want %q", cfg.Registry.DataDir, "/data/glance/registry")
	}
	if len(cfg.Stores) != 2 {
		t.Fatalf("len(Stores) = %d, want 2", len(cfg.Stores))
	}
	if cfg.Stores[0].Type != "file" || cfg.Stores[0].Root != "/data/glance/images" {
		t.Errorf("default file store = %+v", cfg.Stores[0])
	}
	if cfg.Stores[1].Type != "http" {
		t.Errorf("second store type = %q, want http", cfg.Stores[1].Type)
	}
	if cfg.Encryption.Type != "none" {
		t.Errorf("Encryption.Type = %q, want none", cfg.Encryption.Type)
	}
	if cfg.Encryption.PublicKeyPath != "/data/glance/keys/glance.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/glance/keys/glance.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/glance/keys/glance.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/glance/keys/glance.key")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "glance.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "glance.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "glance.toml")
		cfg := NewConfig(dir)
		cfg.Registry = RegistryConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Registry.Type != "memory" {
			t.Errorf("Registry.Type = %q, want memory", got.Registry.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/glance.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
