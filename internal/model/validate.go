package model

import (
	"encoding/base32"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrUnknownKind is returned for a kind tag that names no Value variant.
var ErrUnknownKind = errors.New("unknown value kind")

// ValidationError reports input rejected by a Value variant. Reason is meant
// to be shown to the user as is.
type ValidationError struct {
	Kind   Kind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

const (
	DateLayout = time.DateOnly

	minTOTPSecretBytes = 16
)

// rule canonicalizes raw input or returns a non-empty rejection reason.
type rule struct {
	exportable bool
	canon      func(raw string) (canonical, reason string)
}

var rules = map[Kind]rule{
	KindNumber:         {exportable: true, canon: canonNumber},
	KindText:           {exportable: true, canon: canonAny},
	KindLongText:       {exportable: true, canon: canonAny},
	KindSensitiveText:  {exportable: false, canon: canonAny},
	KindDate:           {exportable: true, canon: canonDate},
	KindPassword:       {exportable: false, canon: canonAny},
	KindTOTPSecret:     {exportable: false, canon: canonTOTPSecret},
	KindURL:            {exportable: true, canon: canonURL},
	KindEmail:          {exportable: true, canon: canonEmail},
	KindPhoneNumber:    {exportable: true, canon: canonPhone},
	KindBankCardNumber: {exportable: false, canon: canonCardNumber},
}

func canonAny(raw string) (string, string) {
	return raw, ""
}

func canonNumber(raw string) (string, string) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", "Invalid number"
	}
	return strconv.FormatInt(n, 10), ""
}

func canonDate(raw string) (string, string) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return "", "Invalid date"
	}
	return t.Format(DateLayout), ""
}

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// canonTOTPSecret accepts any case, embedded spaces and trailing padding and
// stores the upper-case unpadded form.
func canonTOTPSecret(raw string) (string, string) {
	const invalid = "Invalid OTP Secret"

	secret := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
	secret = strings.TrimRight(secret, "=")
	key, err := totpEncoding.DecodeString(secret)
	if err != nil || len(key) < minTOTPSecretBytes {
		return "", invalid
	}
	clear(key)

	_, err = totp.GenerateCodeCustom(secret, time.Unix(0, 0), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", invalid
	}
	return secret, ""
}

func canonURL(raw string) (string, string) {
	if govalidator.IsURL(raw) || govalidator.IsIPv4(raw) || govalidator.IsIPv6(raw) {
		return raw, ""
	}
	return "", "Invalid URL"
}

func canonEmail(raw string) (string, string) {
	if !govalidator.IsEmail(raw) {
		return "", "Invalid email"
	}
	return raw, ""
}

var (
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
	phonePattern    = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)
)

func canonPhone(raw string) (string, string) {
	phone := phoneSeparators.Replace(raw)
	if !phonePattern.MatchString(phone) {
		return "", "Invalid phone number"
	}
	return phone, ""
}

var cardSeparators = strings.NewReplacer(" ", "", "-", "")

func canonCardNumber(raw string) (string, string) {
	number := cardSeparators.Replace(raw)
	if number == "" || !govalidator.IsNumeric(number) {
		return "", "Invalid Format"
	}
	if len(number) < 12 || len(number) > 19 {
		return "", "Invalid Length"
	}
	if CardBrand(number) == BrandUnknown {
		return "", "Unknown Type"
	}
	if !govalidator.IsCreditCard(number) {
		return "", "Invalid Luhn"
	}
	return number, ""
}

// canonicalize runs the rule for kind against raw.
func canonicalize(kind Kind, raw string) (string, error) {
	r, ok := rules[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	canonical, reason := r.canon(raw)
	if reason != "" {
		return "", &ValidationError{Kind: kind, Reason: reason}
	}
	return canonical, nil
}

// Validate checks raw against kind without keeping a Value. Free-text kinds
// other than LongText must not be blank here, since an empty field is never
// what a form meant to save.
func Validate(kind Kind, raw string) error {
	switch kind {
	case KindText, KindSensitiveText, KindPassword:
		if strings.TrimSpace(raw) == "" {
			return &ValidationError{Kind: kind, Reason: "Value cannot be empty"}
		}
		return nil
	}
	_, err := canonicalize(kind, raw)
	return err
}
