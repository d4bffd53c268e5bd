package model

import "time"

// Category groups records. Login, BankCard and Note carry a field template;
// any other value is a custom category with no template.
type Category string

const (
	CategoryLogin    Category = "Login"
	CategoryBankCard Category = "BankCard"
	CategoryNote     Category = "Note"
)

// Custom reports whether c is outside the built-in set.
func (c Category) Custom() bool {
	switch c {
	case CategoryLogin, CategoryBankCard, CategoryNote:
		return false
	}
	return true
}

// Record is a titled, categorized container of Content. ID, Created and
// LastModified are assigned by the store.
type Record struct {
	ID           uint64    `json:"id"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle"`
	Category     Category  `json:"category"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"last_modified"`
}

func NewRecord(title, subtitle string, category Category) *Record {
	return &Record{Title: title, Subtitle: subtitle, Category: category}
}

func (r *Record) Persisted() bool {
	return r.ID != 0
}
