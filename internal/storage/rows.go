package storage

import (
	"encoding/binary"
	"time"

	"github.com/illarion/passvault/internal/model"
)

// recordRow is the decrypted form of a records bucket value.
type recordRow struct {
	Title        string         `json:"title"`
	Subtitle     string         `json:"subtitle"`
	Category     model.Category `json:"category"`
	Created      time.Time      `json:"created"`
	LastModified time.Time      `json:"last_modified"`
}

func (r recordRow) toModel(id uint64) *model.Record {
	return &model.Record{
		ID:           id,
		Title:        r.Title,
		Subtitle:     r.Subtitle,
		Category:     r.Category,
		Created:      r.Created,
		LastModified: r.LastModified,
	}
}

// contentRow is the decrypted form of a content bucket value.
type contentRow struct {
	RecordID uint64     `json:"id_record"`
	Label    string     `json:"label"`
	Position int        `json:"position"`
	Required bool       `json:"required"`
	Kind     model.Kind `json:"kind"`
	Value    string     `json:"value"`
}

// toModel fails closed: an unknown kind or a value that no longer passes
// validation is an error, never a skipped row.
func (r contentRow) toModel(id uint64) (*model.Content, error) {
	v, err := model.Parse(r.Kind, r.Value)
	if err != nil {
		return nil, err
	}
	return &model.Content{
		ID:       id,
		Label:    r.Label,
		Position: r.Position,
		Required: r.Required,
		Value:    v,
	}, nil
}

type breachRow struct {
	Hash    string    `json:"hash"`
	Exposed bool      `json:"exposed"`
	Checked time.Time `json:"checked"`
}

// Info is the unencrypted part of a vault, readable without the passphrase.
type Info struct {
	Path       string
	Version    string
	Created    time.Time
	Modified   time.Time
	Iterations uint32
	VaultID    string
	Size       int64
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
