package model

import (
	"cmp"
	"slices"
)

// Content is one labeled field of a Record. ID 0 means not yet persisted.
type Content struct {
	ID       uint64 `json:"id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
	Required bool   `json:"required"`
	Value    Value  `json:"value"`
}

func NewContent(label string, position int, required bool, value Value) *Content {
	return &Content{
		Label:    label,
		Position: position,
		Required: required,
		Value:    value,
	}
}

func (c *Content) Persisted() bool {
	return c.ID != 0
}

// Kind returns the kind of the held value.
func (c *Content) Kind() Kind {
	if c.Value == nil {
		return ""
	}
	return c.Value.Kind()
}

// Destroy wipes the held value.
func (c *Content) Destroy() {
	if c.Value != nil {
		c.Value.Destroy()
	}
}

// SortContent orders content by position, then id.
func SortContent(cs []*Content) {
	slices.SortFunc(cs, func(a, b *Content) int {
		return cmp.Or(cmp.Compare(a.Position, b.Position), cmp.Compare(a.ID, b.ID))
	})
}

// DestroyAll wipes every value in cs.
func DestroyAll(cs []*Content) {
	for _, c := range cs {
		c.Destroy()
	}
}
