package types

import (
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Record is the persisted entity staged through a tracked collection.
type Record struct {
	RecordID  string    `json:"record_id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	Checksum  uint64    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord returns an unsaved record. The ID is assigned on persistence.
func NewRecord(kind, name, body string) *Record {
	now := time.Now().UTC()
	r := &Record{
		Kind:      kind,
		Name:      name,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.Checksum = r.Sum()
	return r
}

// Validate returns ErrInvalidKind or ErrInvalidName when the kind or name is
// empty or only whitespace.
func (r *Record) Validate() error {
	if r == nil {
		return ErrInvalidData
	}
	if strings.TrimSpace(r.Kind) == "" {
		return ErrInvalidKind
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	return nil
}

// Sum returns the content checksum over kind, name and body. Fields are
// separated by a zero byte so that shifting text between them changes it.
func (r *Record) Sum() uint64 {
	return xxh3.HashString(r.Kind + "\x00" + r.Name + "\x00" + r.Body)
}

// Rename sets the name and refreshes UpdatedAt and Checksum.
func (r *Record) Rename(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	r.Name = name
	r.touch()
	return nil
}

// SetBody sets the body and refreshes UpdatedAt and Checksum.
func (r *Record) SetBody(body string) {
	r.Body = body
	r.touch()
}

func (r *Record) touch() {
	r.UpdatedAt = time.Now().UTC()
	r.Checksum = r.Sum()
}
