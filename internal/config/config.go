package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for glance.
type Config struct {
	BaseDir      string           `toml:"base_dir"`
	LogDir       string           `toml:"log_dir"`
	DefaultStore string           `toml:"default_store"` // scheme of the store Put writes to
	Registry     RegistryConfig   `toml:"registry"`
	Stores       []StoreConfig    `toml:"stores"`
	Encryption   EncryptionConfig `toml:"encryption"`
}

// RegistryConfig represents configuration for the image metadata
// registry. This uses a tagged union pattern - the Type field
// determines which other fields are relevant.
type RegistryConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StoreConfig represents configuration for one store backend. This
// uses a tagged union pattern - the Type field (which doubles as the
// locator scheme) determines which other fields are relevant.
type StoreConfig struct {
	Type      string `toml:"type"` // "file", "http", "s3", or "swift"
	ChunkSize int    `toml:"chunk_size,omitempty"`

	// Filesystem-specific fields (only used when Type == "file")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// Swift-specific fields (only used when Type == "swift")
	SwiftAuthURL   string `toml:"swift_auth_url,omitempty"`
	SwiftUser      string `toml:"swift_user,omitempty"`
	SwiftKey       string `toml:"swift_key,omitempty"`
	SwiftContainer string `toml:"swift_container,omitempty"`
}

// EncryptionConfig holds the at-rest encryption settings for the
// filesystem store. Type "none" (the default) stores plaintext.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default) or "age"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// NewConfig creates a Config with defaults under the given base
// directory: a sqlite registry, a single filesystem store, and no
// encryption.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:      baseDir,
		LogDir:       filepath.Join(baseDir, "log"),
		DefaultStore: "file",
		Registry: RegistryConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "registry"),
		},
		Stores: []StoreConfig{
			{Type: "file", Root: filepath.Join(baseDir, "images")},
			{Type: "http"},
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "glance.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "glance.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. Fails if a config already exists there.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
