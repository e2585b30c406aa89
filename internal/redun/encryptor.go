package redun

import "io"

// Encryptor seals redundancy segments before they reach the redundancy
// medium. Sealing needs only the public key; reading sealed segments back
// requires a DecryptionContext obtained from Unlock.
type Encryptor interface {
	// Setup generates the key pair and protects the private key with
	// passphrase. Called once from `redun config keys`.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock opens the private key with passphrase.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether the key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key for the duration of one
// operation. The key never leaves memory.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
