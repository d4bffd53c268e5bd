// Package keyring keeps vault passphrases in the OS keyring, keyed by the
// vault id so several vaults can coexist.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "passvault"

var ErrNotFound = errors.New("no passphrase stored in keyring")

// SavePassword stores a passphrase in the OS keyring.
func SavePassword(vaultID string, password []byte) error {
	if vaultID == "" {
		return errors.New("vault id required")
	}
	if err := keyring.Set(serviceName, vaultID, string(password)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return nil
}

// GetPassword retrieves a passphrase from the OS keyring.
func GetPassword(vaultID string) ([]byte, error) {
	pw, err := keyring.Get(serviceName, vaultID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	return []byte(pw), nil
}

// DeletePassword removes a passphrase. Deleting a missing entry is not an
// error.
func DeletePassword(vaultID string) error {
	err := keyring.Delete(serviceName, vaultID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// HasPassword checks if a passphrase is stored for vaultID.
func HasPassword(vaultID string) bool {
	_, err := keyring.Get(serviceName, vaultID)
	return err == nil
}
