package model

// Field describes one slot of a category template.
type Field struct {
	Label    string
	Kind     Kind
	Position int
	Required bool
}

var templates = map[Category][]Field{
	CategoryLogin: {
		{"Website", KindURL, 1, true},
		{"User", KindText, 2, true},
		{"Password", KindPassword, 3, true},
	},
	CategoryBankCard: {
		{"Card number", KindBankCardNumber, 1, true},
		{"CVV", KindNumber, 2, true},
		{"Expiration date", KindDate, 3, true},
		{"PIN", KindNumber, 4, true},
	},
	CategoryNote: {
		{"Note", KindLongText, 1, true},
	},
}

// Template returns the field layout for a new record of category c.
// Custom categories have none.
func Template(c Category) []Field {
	t := templates[c]
	out := make([]Field, len(t))
	copy(out, t)
	return out
}

// Content builds a Content for the field from raw input.
func (f Field) Content(raw string) (*Content, error) {
	v, err := Parse(f.Kind, raw)
	if err != nil {
		return nil, err
	}
	return NewContent(f.Label, f.Position, f.Required, v), nil
}
