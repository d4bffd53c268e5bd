package storage

import (
	"encoding/json"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/passvault/internal/crypto"
)

// BreachTTL is how long a breach cache entry stays valid.
const BreachTTL = 24 * time.Hour

// breachKey hides the password hash behind a keyed MAC.
func breachKey(indexKey []byte, hash string) []byte {
	return crypto.MAC(indexKey, []byte(strings.ToUpper(hash)))
}

// BreachStatus looks up a cached result for the password hash. Entries
// checked more than BreachTTL ago are reported as not found.
func (s *Store) BreachStatus(hash string) (exposed, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row breachRow
	err = s.view(func(tx *bolt.Tx) error {
		key := breachKey(s.indexKey, hash)
		found, err = s.getJSON(tx.Bucket(BreachBucket), BreachBucket, key, &row)
		return err
	})
	if err != nil {
		return false, false, err
	}
	if !found || row.Checked.Before(s.opts.now().Add(-BreachTTL)) {
		return false, false, nil
	}
	return row.Exposed, true, nil
}

// AddBreachStatus caches a result for the password hash, replacing any
// earlier entry.
func (s *Store) AddBreachStatus(hash string, exposed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := breachRow{Hash: strings.ToUpper(hash), Exposed: exposed, Checked: s.opts.now()}
	return s.update(func(tx *bolt.Tx) error {
		key := breachKey(s.indexKey, hash)
		return s.putJSON(tx.Bucket(BreachBucket), BreachBucket, key, row)
	})
}

// PurgeBreachCache removes entries checked more than BreachTTL ago and
// returns how many were removed. Nothing is written when no entry expired,
// so the file modification time is left alone.
func (s *Store) PurgeBreachCache() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.opts.now().Add(-BreachTTL)
	var stale [][]byte
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(BreachBucket).ForEach(func(k, v []byte) error {
			var row breachRow
			if err := s.decodeJSON(BreachBucket, k, v, &row); err != nil {
				return err
			}
			if row.Checked.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}

	err = s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(BreachBucket)
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

// rekeyBreach moves every entry under the MAC of newIndexKey and
// re-encrypts it with newEnc.
func rekeyBreach(b *bolt.Bucket, s *Store, newEnc *crypto.Encryptor, newIndexKey []byte) error {
	var (
		rows []breachRow
		keys [][]byte
	)
	err := b.ForEach(func(k, v []byte) error {
		var row breachRow
		if err := s.decodeJSON(BreachBucket, k, v, &row); err != nil {
			return err
		}
		rows = append(rows, row)
		keys = append(keys, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}

	for _, row := range rows {
		key := breachKey(newIndexKey, row.Hash)
		plain, err := json.Marshal(row)
		if err != nil {
			return err
		}
		ct, err := newEnc.Encrypt(plain, rowLabel(BreachBucket, key))
		crypto.ClearBytes(plain)
		if err != nil {
			return err
		}
		if err := b.Put(key, ct); err != nil {
			return err
		}
	}
	return nil
}
