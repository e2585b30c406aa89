package testutil

import (
	"redun-go/internal/encryption"
	"redun-go/internal/redun"
)

// NewTestEncryptor creates a fast reversible encryptor for tests.
func NewTestEncryptor() redun.Encryptor {
	return encryption.NewTestEncryptor()
}
