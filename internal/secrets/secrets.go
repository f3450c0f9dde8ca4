// Package secrets resolves keyring:<name> password references found in
// sequence files against the OS-backed credential store, so plaintext
// passwords never need to live in a sequence file or on the command line.
package secrets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

const serviceName = "autorobot"

// refPrefix is the sequence-file syntax that marks a password field as a
// keyring lookup rather than a literal value: keyring:<name>.
const refPrefix = "keyring:"

var (
	ring     keyring.Keyring
	ringOnce sync.Once
	ringErr  error
)

func initKeyring() (keyring.Keyring, error) {
	ringOnce.Do(func() {
		ring, ringErr = keyring.Open(keyring.Config{
			ServiceName: serviceName,
			AllowedBackends: []keyring.BackendType{
				keyring.KeychainBackend,
				keyring.SecretServiceBackend,
				keyring.WinCredBackend,
				keyring.PassBackend,
				keyring.FileBackend,
			},
		})
	})
	return ring, ringErr
}

// IsRef reports whether a password field is a keyring reference rather than
// a literal password.
func IsRef(field string) bool {
	return strings.HasPrefix(field, refPrefix)
}

// Resolve returns the literal password for a sequence-file password field.
// If the field is not a keyring reference it is returned unchanged, so
// literal passwords keep working without a lookup.
func Resolve(field string) (string, error) {
	if !IsRef(field) {
		return field, nil
	}
	name := strings.TrimPrefix(field, refPrefix)
	return Get(name)
}

// Set stores a password under name in the OS credential store.
func Set(name, password string) error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("open keyring: %w", err)
	}
	return kr.Set(keyring.Item{
		Key:  name,
		Data: []byte(password),
	})
}

// Get retrieves a password previously stored under name.
func Get(name string) (string, error) {
	kr, err := initKeyring()
	if err != nil {
		return "", fmt.Errorf("open keyring: %w", err)
	}
	item, err := kr.Get(name)
	if err == keyring.ErrKeyNotFound {
		return "", fmt.Errorf("no credential stored for %q", name)
	}
	if err != nil {
		return "", fmt.Errorf("retrieve credential %q: %w", name, err)
	}
	return string(item.Data), nil
}

// Delete removes a stored password.
func Delete(name string) error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("open keyring: %w", err)
	}
	err = kr.Remove(name)
	if err == keyring.ErrKeyNotFound {
		return fmt.Errorf("no credential stored for %q", name)
	}
	return err
}

// Has reports whether a credential is stored under name.
func Has(name string) bool {
	kr, err := initKeyring()
	if err != nil {
		return false
	}
	_, err = kr.Get(name)
	return err == nil
}
