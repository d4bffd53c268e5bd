package model

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/illarion/passvault/internal/crypto"
)

// Value is one validated, typed field. The set of implementations is closed:
// only the variants in this package satisfy it.
type Value interface {
	Kind() Kind
	// Exportable reports whether the value may appear in generic output.
	Exportable() bool
	// PlainString is the canonical on-disk representation.
	PlainString() string
	// Set re-validates raw and replaces the value. On error the previous
	// value is kept.
	Set(raw string) error
	// Destroy wipes the value from memory.
	Destroy()
	String() string

	secret() *crypto.Secret
}

type base struct {
	kind Kind
	s    *crypto.Secret
}

func (b *base) init(kind Kind, raw string) error {
	canonical, err := canonicalize(kind, raw)
	if err != nil {
		return err
	}
	b.kind = kind
	b.s = crypto.NewSecretString(canonical)
	return nil
}

func (b *base) Kind() Kind { return b.kind }

func (b *base) Exportable() bool { return b.kind.Exportable() }

func (b *base) PlainString() string { return b.s.Expose() }

func (b *base) Set(raw string) error {
	canonical, err := canonicalize(b.kind, raw)
	if err != nil {
		return err
	}
	old := b.s
	b.s = crypto.NewSecretString(canonical)
	old.Destroy()
	return nil
}

func (b *base) Destroy() { b.s.Destroy() }

func (b *base) secret() *crypto.Secret { return b.s }

// String masks non-exportable values.
func (b *base) String() string {
	if !b.Exportable() {
		return "********"
	}
	return b.s.Expose()
}

type jsonValue struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value,omitempty"`
}

// MarshalJSON omits the content of non-exportable values.
func (b *base) MarshalJSON() ([]byte, error) {
	v := jsonValue{Kind: b.kind}
	if b.Exportable() {
		v.Value = b.s.Expose()
	}
	return json.Marshal(v)
}

type (
	Number         struct{ base }
	Text           struct{ base }
	LongText       struct{ base }
	SensitiveText  struct{ base }
	Date           struct{ base }
	Password       struct{ base }
	TOTPSecret     struct{ base }
	URL            struct{ base }
	Email          struct{ base }
	PhoneNumber    struct{ base }
	BankCardNumber struct{ base }
)

func NewNumber(raw string) (*Number, error) {
	v := &Number{}
	if err := v.init(KindNumber, raw); err != nil {
		return nil, err
	}
	return v, nil
}

// Int returns the parsed number.
func (n *Number) Int() int64 {
	i, _ := strconv.ParseInt(n.PlainString(), 10, 64)
	return i
}

func NewText(raw string) *Text {
	v := &Text{}
	_ = v.init(KindText, raw)
	return v
}

func NewLongText(raw string) *LongText {
	v := &LongText{}
	_ = v.init(KindLongText, raw)
	return v
}

func NewSensitiveText(raw string) *SensitiveText {
	v := &SensitiveText{}
	_ = v.init(KindSensitiveText, raw)
	return v
}

func NewDate(raw string) (*Date, error) {
	v := &Date{}
	if err := v.init(KindDate, raw); err != nil {
		return nil, err
	}
	return v, nil
}

// Time returns the date at midnight UTC.
func (d *Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, d.PlainString())
	return t
}

func NewPassword(raw string) *Password {
	v := &Password{}
	_ = v.init(KindPassword, raw)
	return v
}

// NewPasswordSecret builds a Password from a generated secret without
// routing it through an intermediate string.
func NewPasswordSecret(s *crypto.Secret) *Password {
	return &Password{base{kind: KindPassword, s: s}}
}

func NewTOTPSecret(raw string) (*TOTPSecret, error) {
	v := &TOTPSecret{}
	if err := v.init(KindTOTPSecret, raw); err != nil {
		return nil, err
	}
	return v, nil
}

func NewURL(raw string) (*URL, error) {
	v := &URL{}
	if err := v.init(KindURL, raw); err != nil {
		return nil, err
	}
	return v, nil
}

func NewEmail(raw string) (*Email, error) {
	v := &Email{}
	if err := v.init(KindEmail, raw); err != nil {
		return nil, err
	}
	return v, nil
}

func NewPhoneNumber(raw string) (*PhoneNumber, error) {
	v := &PhoneNumber{}
	if err := v.init(KindPhoneNumber, raw); err != nil {
		return nil, err
	}
	return v, nil
}

func NewBankCardNumber(raw string) (*BankCardNumber, error) {
	v := &BankCardNumber{}
	if err := v.init(KindBankCardNumber, raw); err != nil {
		return nil, err
	}
	return v, nil
}

// Brand names the card network.
func (c *BankCardNumber) Brand() string {
	return CardBrand(c.PlainString())
}

// Parse rebuilds a Value from its stored kind and plain string.
func Parse(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindNumber:
		return checked(NewNumber(raw))
	case KindText:
		return NewText(raw), nil
	case KindLongText:
		return NewLongText(raw), nil
	case KindSensitiveText:
		return NewSensitiveText(raw), nil
	case KindDate:
		return checked(NewDate(raw))
	case KindPassword:
		return NewPassword(raw), nil
	case KindTOTPSecret:
		return checked(NewTOTPSecret(raw))
	case KindURL:
		return checked(NewURL(raw))
	case KindEmail:
		return checked(NewEmail(raw))
	case KindPhoneNumber:
		return checked(NewPhoneNumber(raw))
	case KindBankCardNumber:
		return checked(NewBankCardNumber(raw))
	}
	_, err := canonicalize(kind, raw)
	return nil, err
}

func checked[T Value](v T, err error) (Value, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Reveal is the only way to read a non-exportable value. The returned
// Secret is a copy owned by the caller.
func Reveal(v Value) *crypto.Secret {
	return v.secret().Clone()
}
