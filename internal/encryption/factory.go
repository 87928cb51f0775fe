package encryption

import (
	"fmt"

	"github.com/vmcloud/glance/internal/config"
	"github.com/vmcloud/glance/internal/glance"
)

// NewEncryptorFromConfig creates an Encryptor based on the
// configuration type. Type "none" (or empty) returns nil: stores
// treat a nil encryptor as plaintext storage.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (glance.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg.PublicKeyPath, cfg.PrivateKeyPath), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
