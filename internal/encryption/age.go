package encryption

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"zbackup/internal/config"
	"zbackup/internal/zb"
)

// ErrWrongPassphrase is returned by Unlock when the passphrase does not open
// the private key.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// AgeEncryptor encrypts archives with an age X25519 key pair.
//
// The public key file is plaintext. The private key file holds the identity
// encrypted to an scrypt passphrase recipient, so encryption never needs the
// passphrase and decryption always does.
type AgeEncryptor struct {
	publicKeyPath  string
	privateKeyPath string
	extra          []string
}

var _ zb.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor creates an AgeEncryptor for the configured key files.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
		extra:          cfg.Recipients,
	}
}

// Setup generates the key pair. Existing keys are never overwritten.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}
	for _, p := range []string{e.publicKeyPath, e.privateKeyPath} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("refusing to overwrite existing key %s", p)
		}
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	sealer, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	err = writeKeyFile(e.privateKeyPath, 0600, func(w io.Writer) error {
		sealed, err := age.Encrypt(w, sealer)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(sealed, identity.String()); err != nil {
			return err
		}
		return sealed.Close()
	})
	if err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	err = writeKeyFile(e.publicKeyPath, 0644, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, identity.Recipient().String())
		return err
	})
	if err != nil {
		os.Remove(e.privateKeyPath)
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// EncryptWriter wraps w so that everything written is encrypted to the
// public key and any extra recipients. Closing the returned writer flushes
// the last chunk and leaves w open.
func (e *AgeEncryptor) EncryptWriter(w io.Writer) (io.WriteCloser, error) {
	recipients, err := e.recipients()
	if err != nil {
		return nil, err
	}
	enc, err := age.Encrypt(w, recipients...)
	if err != nil {
		return nil, fmt.Errorf("starting encryption: %w", err)
	}
	return enc, nil
}

// Unlock opens the private key with passphrase.
func (e *AgeEncryptor) Unlock(passphrase string) (zb.DecryptionContext, error) {
	f, err := os.Open(e.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("opening private key: %w", err)
	}
	defer f.Close()

	opener, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	plain, err := age.Decrypt(f, opener)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}

	identities, err := age.ParseIdentities(plain)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("private key %s holds no identity", e.privateKeyPath)
	}
	return &AgeDecryptionContext{identities: identities}, nil
}

// IsConfigured reports whether both key files exist.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, p := range []string{e.publicKeyPath, e.privateKeyPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// recipients returns the public key followed by the configured extras.
func (e *AgeEncryptor) recipients() ([]age.Recipient, error) {
	f, err := os.Open(e.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("opening public key: %w", err)
	}
	defer f.Close()

	out, err := age.ParseRecipients(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", e.publicKeyPath, err)
	}
	for _, raw := range e.extra {
		r, err := age.ParseX25519Recipient(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", raw, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// writeKeyFile writes a key through a temporary file so a crash never leaves
// a truncated key behind.
func writeKeyFile(path string, perm os.FileMode, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-key-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// AgeDecryptionContext holds unlocked age identities.
type AgeDecryptionContext struct {
	identities []age.Identity
}

var _ zb.DecryptionContext = (*AgeDecryptionContext)(nil)

// Decrypt streams the plaintext of r into w.
func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, c.identities...)
	if err != nil {
		return fmt.Errorf("opening encrypted stream: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}
