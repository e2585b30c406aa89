package encryption

import (
	"fmt"

	"redun-go/internal/config"
	"redun-go/internal/redun"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// It returns nil when redundancy segments are stored unencrypted.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (redun.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
