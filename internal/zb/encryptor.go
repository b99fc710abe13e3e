package zb

import "io"

// Encryptor handles encryption of archives and unlocking for decryption.
// Encryption uses the public key only, no user intervention required.
// Decryption requires a passphrase to unlock the private key.
type Encryptor interface {
	// Setup performs one-time key generation. Called by `zbackup keys init`.
	// Generates a key pair, stores the public key in plaintext, and encrypts
	// the private key with the provided passphrase.
	Setup(passphrase string) error

	// EncryptWriter wraps w so that everything written is encrypted with the
	// public key. The returned writer must be closed to flush the last chunk.
	EncryptWriter(w io.Writer) (io.WriteCloser, error)

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext. Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
