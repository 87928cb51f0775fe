package registry

import (
	"testing"

	"github.com/vmcloud/glance/internal/config"
)

func TestNewRegistryFromConfig(t *testing.T) {
	t.Run("memory registry", func(t *testing.T) {
		cfg := config.RegistryConfig{Type: "memory"}
		got, err := NewRegistryFromConfig(cfg, nil)

		if err != nil {
			t.Errorf("NewRegistryFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Error("NewRegistryFromConfig() returned nil")
		}

		if got != nil {
			got.Close()
		}
	})

	t.Run("sqlite registry", func(t *testing.T) {
		cfg := config.RegistryConfig{
			Type:    "sqlite",
			DataDir: t.TempDir(),
		}
		got, err := NewRegistryFromConfig(cfg, nil)

		if err != nil {
			t.Errorf("NewRegistryFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Error("NewRegistryFromConfig() returned nil")
		}

		if got != nil {
			got.Close()
		}
	})

	t.Run("sqlite registry without data_dir", func(t *testing.T) {
		cfg := config.RegistryConfig{Type: "sqlite"}
		got, err := NewRegistryFromConfig(cfg, nil)

		if err == nil {
			t.Error("NewRegistryFromConfig() expected error for missing data_dir, got nil")
		}

		if got != nil {
			t.Error("NewRegistryFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown registry type", func(t *testing.T) {
		cfg := config.RegistryConfig{Type: "unknown"}
		got, err := NewRegistryFromConfig(cfg, nil)

		if err == nil {
			t.Error("NewRegistryFromConfig() expected error for unknown type, got nil")
		}

		if got != nil {
			t.Error("NewRegistryFromConfig() should return nil on error")
			got.Close()
		}
	})
}
