package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/passvault/internal/crypto"
)

// rowLabel binds a ciphertext to its bucket and key.
func rowLabel(bucket, key []byte) []byte {
	label := make([]byte, 0, len(bucket)+1+len(key))
	label = append(label, bucket...)
	label = append(label, '/')
	return append(label, key...)
}

// view runs fn in a read transaction. The caller holds s.mu.
func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.View(fn)
}

// update runs fn in a write transaction and stamps the modified time when
// fn succeeds. bbolt rolls the whole transaction back if fn returns an
// error or panics. The caller holds s.mu.
func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		stamp, _ := s.opts.now().MarshalBinary()
		return tx.Bucket(ConfigBucket).Put(ConfigModified, stamp)
	})
}

func (s *Store) fail(step string) error {
	if s.failpoint == nil {
		return nil
	}
	return s.failpoint(step)
}

// putJSON encrypts v as JSON under bucket/key.
func (s *Store) putJSON(b *bolt.Bucket, bucket, key []byte, v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s row: %w", bucket, err)
	}
	defer crypto.ClearBytes(plain)

	ct, err := s.enc.Encrypt(plain, rowLabel(bucket, key))
	if err != nil {
		return fmt.Errorf("failed to encrypt %s row: %w", bucket, err)
	}
	return b.Put(key, ct)
}

// getJSON decrypts bucket/key into v. A missing key returns found=false.
func (s *Store) getJSON(b *bolt.Bucket, bucket, key []byte, v any) (bool, error) {
	ct := b.Get(key)
	if ct == nil {
		return false, nil
	}
	return true, s.decodeJSON(bucket, key, ct, v)
}

func (s *Store) decodeJSON(bucket, key, ct []byte, v any) error {
	plain, err := s.enc.Decrypt(ct, rowLabel(bucket, key))
	if err != nil {
		return fmt.Errorf("%w: %s/%x: %w", ErrCorruptRow, bucket, key, err)
	}
	defer crypto.ClearBytes(plain)

	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("%w: %s/%x: %w", ErrCorruptRow, bucket, key, err)
	}
	return nil
}
