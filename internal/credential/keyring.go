// Package credential keeps secrets in the OS keyring so they stay out of
// the config file.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "deadlined"

// Known credential keys.
const (
	KeyIMAPPassword = "imap-password"
	KeyAPIToken     = "api-token"
)

// ErrUnknownKey is returned for keys other than the known ones.
var ErrUnknownKey = errors.New("unknown credential key")

// Store reads and writes credentials in a keyring.
type Store struct {
	open func() (keyring.Keyring, error)
}

// New returns a Store backed by the system keyring.
func New() *Store {
	return &Store{open: openKeyring}
}

// NewWithKeyring returns a Store backed by ring. Tests use an
// in-memory keyring.ArrayKeyring.
func NewWithKeyring(ring keyring.Keyring) *Store {
	return &Store{open: func() (keyring.Keyring, error) { return ring, nil }}
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/deadlined/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("deadlined-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// ValidateKey reports whether key is one of the known credential keys.
func ValidateKey(key string) error {
	switch key {
	case KeyIMAPPassword, KeyAPIToken:
		return nil
	default:
		return fmt.Errorf("%w %q (want %s or %s)", ErrUnknownKey, key, KeyIMAPPassword, KeyAPIToken)
	}
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	ring, err := s.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key string, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	ring, err := s.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Resolve returns configured when it is non-empty, otherwise the keyring
// value for key. A missing keyring entry resolves to "".
func (s *Store) Resolve(configured, key string) string {
	if configured != "" {
		return configured
	}
	v, err := s.Get(key)
	if err != nil {
		return ""
	}
	return v
}
