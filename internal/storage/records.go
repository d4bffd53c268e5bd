package storage

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/passvault/internal/model"
)

// SaveRecord inserts r when r.ID is 0, otherwise updates the stored record.
// LastModified is always set to now; Created is set on insert only.
func (s *Store) SaveRecord(r *model.Record) error {
	return s.SaveRecordContent(r, nil)
}

// SaveContent inserts or updates c under the record recordID.
func (s *Store) SaveContent(recordID uint64, c *model.Content) error {
	if c.Value == nil {
		return ErrContentHasNoValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id uint64
	err := s.update(func(tx *bolt.Tx) error {
		if tx.Bucket(RecordsBucket).Get(itob(recordID)) == nil {
			return fmt.Errorf("%w: %d", ErrRecordNotFound, recordID)
		}
		var err error
		id, err = s.putContent(tx, recordID, c)
		return err
	})
	if err != nil {
		return err
	}

	c.ID = id
	return nil
}

// SaveRecordContent saves r and every element of content under it in one
// transaction. On error nothing is stored and no ids are assigned.
func (s *Store) SaveRecordContent(r *model.Record, content []*model.Content) error {
	for _, c := range content {
		if c.Value == nil {
			return fmt.Errorf("%w: %s", ErrContentHasNoValue, c.Label)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		row recordRow
		id  uint64
		ids = make([]uint64, len(content))
	)
	err := s.update(func(tx *bolt.Tx) error {
		var err error
		id, row, err = s.putRecord(tx, r)
		if err != nil {
			return err
		}
		for i, c := range content {
			if ids[i], err = s.putContent(tx, id, c); err != nil {
				return fmt.Errorf("failed to save %q: %w", c.Label, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.ID = id
	r.Created = row.Created
	r.LastModified = row.LastModified
	for i, c := range content {
		c.ID = ids[i]
	}
	return nil
}

func (s *Store) putRecord(tx *bolt.Tx, r *model.Record) (uint64, recordRow, error) {
	now := s.opts.now()
	id := r.ID
	row := recordRow{
		Title:        r.Title,
		Subtitle:     r.Subtitle,
		Category:     r.Category,
		Created:      now,
		LastModified: now,
	}

	b := tx.Bucket(RecordsBucket)
	if id == 0 {
		seq, err := b.NextSequence()
		if err != nil {
			return 0, row, err
		}
		id = seq
	} else {
		var existing recordRow
		found, err := s.getJSON(b, RecordsBucket, itob(id), &existing)
		if err != nil {
			return 0, row, err
		}
		if !found {
			return 0, row, fmt.Errorf("%w: %d", ErrRecordNotFound, id)
		}
		row.Created = existing.Created
	}
	return id, row, s.putJSON(b, RecordsBucket, itob(id), row)
}

// putContent writes c under recordID, which must exist in tx, and returns
// the content id. c itself is not modified.
func (s *Store) putContent(tx *bolt.Tx, recordID uint64, c *model.Content) (uint64, error) {
	id := c.ID
	row := contentRow{
		RecordID: recordID,
		Label:    c.Label,
		Position: c.Position,
		Required: c.Required,
		Kind:     c.Value.Kind(),
		Value:    c.Value.PlainString(),
	}

	b := tx.Bucket(ContentBucket)
	if id == 0 {
		seq, err := b.NextSequence()
		if err != nil {
			return 0, err
		}
		id = seq
	} else if b.Get(itob(id)) == nil {
		return 0, fmt.Errorf("%w: %d", ErrContentNotFound, id)
	}
	return id, s.putJSON(b, ContentBucket, itob(id), row)
}

// DeleteRecord removes every Content of r and then r itself in one
// transaction. Either all rows are gone afterwards or none are.
func (s *Store) DeleteRecord(r *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(tx *bolt.Tx) error {
		records := tx.Bucket(RecordsBucket)
		if records.Get(itob(r.ID)) == nil {
			return fmt.Errorf("%w: %d", ErrRecordNotFound, r.ID)
		}

		owned, err := s.contentKeysFor(tx.Bucket(ContentBucket), r.ID)
		if err != nil {
			return err
		}
		content := tx.Bucket(ContentBucket)
		for _, k := range owned {
			if err := s.fail("delete content"); err != nil {
				return err
			}
			if err := content.Delete(k); err != nil {
				return fmt.Errorf("failed to delete content %d: %w", btoi(k), err)
			}
		}

		if err := s.fail("delete record"); err != nil {
			return err
		}
		return records.Delete(itob(r.ID))
	})
}

func (s *Store) contentKeysFor(b *bolt.Bucket, recordID uint64) ([][]byte, error) {
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var row contentRow
		if err := s.decodeJSON(ContentBucket, k, v, &row); err != nil {
			return err
		}
		if row.RecordID == recordID {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	return keys, err
}

// DeleteContent removes a single content row.
func (s *Store) DeleteContent(c *model.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ContentBucket)
		if b.Get(itob(c.ID)) == nil {
			return fmt.Errorf("%w: %d", ErrContentNotFound, c.ID)
		}
		return b.Delete(itob(c.ID))
	})
}

// GetAllRecords returns every record ordered by id.
func (s *Store) GetAllRecords() ([]*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*model.Record
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(RecordsBucket).ForEach(func(k, v []byte) error {
			var row recordRow
			if err := s.decodeJSON(RecordsBucket, k, v, &row); err != nil {
				return err
			}
			records = append(records, row.toModel(btoi(k)))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetRecord returns the record with the given id.
func (s *Store) GetRecord(id uint64) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row recordRow
	err := s.view(func(tx *bolt.Tx) error {
		found, err := s.getJSON(tx.Bucket(RecordsBucket), RecordsBucket, itob(id), &row)
		if err == nil && !found {
			err = fmt.Errorf("%w: %d", ErrRecordNotFound, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return row.toModel(id), nil
}

// GetAllContentForRecord returns the content of a record ordered by
// position. A row that cannot be turned back into a Value fails the call.
func (s *Store) GetAllContentForRecord(recordID uint64) ([]*model.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Content
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(ContentBucket).ForEach(func(k, v []byte) error {
			var row contentRow
			if err := s.decodeJSON(ContentBucket, k, v, &row); err != nil {
				return err
			}
			if row.RecordID != recordID {
				return nil
			}
			c, err := row.toModel(btoi(k))
			if err != nil {
				return fmt.Errorf("%w: content %d: %w", ErrCorruptRow, btoi(k), err)
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		model.DestroyAll(out)
		return nil, err
	}
	model.SortContent(out)
	return out, nil
}

// GetContent returns one content row and the id of its record.
func (s *Store) GetContent(id uint64) (*model.Content, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row contentRow
	err := s.view(func(tx *bolt.Tx) error {
		found, err := s.getJSON(tx.Bucket(ContentBucket), ContentBucket, itob(id), &row)
		if err == nil && !found {
			err = fmt.Errorf("%w: %d", ErrContentNotFound, id)
		}
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	c, err := row.toModel(id)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: content %d: %w", ErrCorruptRow, id, err)
	}
	return c, row.RecordID, nil
}

// GetPasswordsForRecord returns only the Password content of a record.
func (s *Store) GetPasswordsForRecord(recordID uint64) ([]*model.Content, error) {
	all, err := s.GetAllContentForRecord(recordID)
	if err != nil {
		return nil, err
	}
	var out []*model.Content
	for _, c := range all {
		if c.Kind() == model.KindPassword {
			out = append(out, c)
		} else {
			c.Destroy()
		}
	}
	return out, nil
}

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrContentNotFound) ||
		errors.Is(err, ErrSettingNotFound)
}
