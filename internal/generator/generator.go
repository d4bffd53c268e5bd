// Package generator creates random passwords.
package generator

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/illarion/passvault/internal/crypto"
)

const (
	DefaultLength = 20
	MaxLength     = 256

	numbers   = "0123456789"
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	symbols   = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

var (
	ErrNoClasses     = errors.New("at least one character class must be selected")
	ErrInvalidLength = errors.New("length must be between the number of selected classes and 256")
)

type Options struct {
	Length    int
	Numbers   bool
	Lowercase bool
	Uppercase bool
	Symbols   bool
}

// Defaults selects every class at DefaultLength.
func Defaults() Options {
	return Options{Length: DefaultLength, Numbers: true, Lowercase: true, Uppercase: true, Symbols: true}
}

func (o Options) classes() []string {
	var cs []string
	if o.Numbers {
		cs = append(cs, numbers)
	}
	if o.Lowercase {
		cs = append(cs, lowercase)
	}
	if o.Uppercase {
		cs = append(cs, uppercase)
	}
	if o.Symbols {
		cs = append(cs, symbols)
	}
	return cs
}

// Generate returns a password in which every selected class appears at
// least once.
func Generate(o Options) (*crypto.Secret, error) {
	classes := o.classes()
	if len(classes) == 0 {
		return nil, ErrNoClasses
	}
	if o.Length < len(classes) || o.Length > MaxLength {
		return nil, ErrInvalidLength
	}

	var all string
	for _, c := range classes {
		all += c
	}

	buf := make([]byte, o.Length)
	for i, c := range classes {
		b, err := pick(c)
		if err != nil {
			crypto.ClearBytes(buf)
			return nil, err
		}
		buf[i] = b
	}
	for i := len(classes); i < len(buf); i++ {
		b, err := pick(all)
		if err != nil {
			crypto.ClearBytes(buf)
			return nil, err
		}
		buf[i] = b
	}
	if err := shuffle(buf); err != nil {
		crypto.ClearBytes(buf)
		return nil, err
	}
	return crypto.NewSecret(buf), nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func pick(set string) (byte, error) {
	i, err := randInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

// shuffle is a Fisher-Yates shuffle driven by crypto/rand.
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
