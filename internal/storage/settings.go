package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/passvault/internal/crypto"
)

// GetSetting returns the value of a setting as a Secret the caller must
// Destroy.
func (s *Store) GetSetting(name string) (*crypto.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value []byte
	err := s.view(func(tx *bolt.Tx) error {
		ct := tx.Bucket(SettingsBucket).Get([]byte(name))
		if ct == nil {
			return fmt.Errorf("%w: %s", ErrSettingNotFound, name)
		}
		plain, err := s.enc.Decrypt(ct, rowLabel(SettingsBucket, []byte(name)))
		if err != nil {
			return fmt.Errorf("%w: setting %s: %w", ErrCorruptRow, name, err)
		}
		value = plain
		return nil
	})
	if err != nil {
		return nil, err
	}
	return crypto.NewSecret(value), nil
}

// SaveSetting stores or replaces a setting.
func (s *Store) SaveSetting(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(tx *bolt.Tx) error {
		plain := []byte(value)
		defer crypto.ClearBytes(plain)

		ct, err := s.enc.Encrypt(plain, rowLabel(SettingsBucket, []byte(name)))
		if err != nil {
			return err
		}
		return tx.Bucket(SettingsBucket).Put([]byte(name), ct)
	})
}

// DeleteSetting removes a setting. Deleting a missing setting is not an error.
func (s *Store) DeleteSetting(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(SettingsBucket).Delete([]byte(name))
	})
}
