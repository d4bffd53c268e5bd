package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByKind(t *testing.T) {
	tests := []struct {
		name      string
		kind      Kind
		raw       string
		want      string
		wantError bool
	}{
		{"number", KindNumber, "125", "125", false},
		{"negative number", KindNumber, "-42", "-42", false},
		{"decimal number", KindNumber, "12.5", "", true},
		{"thousands separator", KindNumber, "1,000", "", true},
		{"number with space", KindNumber, " 5", "", true},
		{"empty number", KindNumber, "", "", true},
		{"text", KindText, "anything at all", "anything at all", false},
		{"empty text", KindText, "", "", false},
		{"long text", KindLongText, "line one\nline two", "line one\nline two", false},
		{"sensitive text", KindSensitiveText, "secret", "secret", false},
		{"date", KindDate, "2024-02-29", "2024-02-29", false},
		{"impossible date", KindDate, "2023-02-29", "", true},
		{"date wrong layout", KindDate, "29.02.2024", "", true},
		{"password", KindPassword, "hunter2", "hunter2", false},
		{"totp lower case", KindTOTPSecret, "rfffmaz4jsjq3qurwhzna2wljastmywv", "RFFFMAZ4JSJQ3QURWHZNA2WLJASTMYWV", false},
		{"totp spaced", KindTOTPSecret, "RFFF MAZ4 JSJQ 3QUR WHZN A2WL JAST MYWV", "RFFFMAZ4JSJQ3QURWHZNA2WLJASTMYWV", false},
		{"totp too short", KindTOTPSecret, "JBSWY3DP", "", true},
		{"totp not base32", KindTOTPSecret, "not base32 at all 0189!!", "", true},
		{"url", KindURL, "https://example.com/login", "https://example.com/login", false},
		{"ipv4", KindURL, "1.1.1.1", "1.1.1.1", false},
		{"ipv6", KindURL, "2606:4700:4700::1111", "2606:4700:4700::1111", false},
		{"bad url", KindURL, "not a url", "", true},
		{"email", KindEmail, "user@example.com", "user@example.com", false},
		{"bad email", KindEmail, "user.example.com", "", true},
		{"phone", KindPhoneNumber, "+14152370800", "+14152370800", false},
		{"phone with separators", KindPhoneNumber, "+1 (415) 237-0800", "+14152370800", false},
		{"phone letters", KindPhoneNumber, "call me", "", true},
		{"card", KindBankCardNumber, "4111111111111111", "4111111111111111", false},
		{"card dashed", KindBankCardNumber, "4111-1111-1111-1111", "4111111111111111", false},
		{"card visa", KindBankCardNumber, "4702932172193242", "4702932172193242", false},
		{"card bad luhn", KindBankCardNumber, "4111111111111112", "", true},
		{"card letters", KindBankCardNumber, "4111abcd11111111", "", true},
		{"card short", KindBankCardNumber, "4111", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.kind, tt.raw)
			if tt.wantError {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.kind, verr.Kind)
				assert.Nil(t, v)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.want, v.PlainString())

			again, err := Parse(v.Kind(), v.PlainString())
			require.NoError(t, err)
			assert.Equal(t, v.PlainString(), again.PlainString())
		})
	}
}

func TestParseUnknownKind(t *testing.T) {
	v, err := Parse(Kind("Hologram"), "x")
	assert.Nil(t, v)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestCardReasons(t *testing.T) {
	reasons := map[string]string{
		"4111111111111112": "Invalid Luhn",
		"41x1111111111111": "Invalid Format",
		"411111":           "Invalid Length",
		"9111111111111111": "Unknown Type",
	}
	for raw, want := range reasons {
		_, err := NewBankCardNumber(raw)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, raw)
		assert.Equal(t, want, verr.Reason, raw)
	}
}

func TestSetKeepsPreviousOnError(t *testing.T) {
	n, err := NewNumber("7")
	require.NoError(t, err)

	require.Error(t, n.Set("seven"))
	assert.Equal(t, "7", n.PlainString())
	assert.Equal(t, int64(7), n.Int())

	require.NoError(t, n.Set("8"))
	assert.Equal(t, "8", n.PlainString())
}

func TestDestroyWipes(t *testing.T) {
	p := NewPassword("hunter2")
	s := p.secret()
	buf := s.Bytes()

	p.Destroy()

	assert.True(t, s.Destroyed())
	assert.Equal(t, make([]byte, len(buf)), buf)
	assert.Empty(t, p.PlainString())
}

func TestNonExportableNeverSerialized(t *testing.T) {
	card, err := NewBankCardNumber("4111111111111111")
	require.NoError(t, err)
	otp, err := NewTOTPSecret("rfffmaz4jsjq3qurwhzna2wljastmywv")
	require.NoError(t, err)

	cs := []*Content{
		NewContent("Password", 1, true, NewPassword("hunter2")),
		NewContent("Secret", 2, false, NewSensitiveText("the-cake")),
		NewContent("OTP", 3, false, otp),
		NewContent("Card", 4, false, card),
		NewContent("User", 5, false, NewText("alice")),
	}

	out, err := json.Marshal(cs)
	require.NoError(t, err)
	for _, leaked := range []string{"hunter2", "the-cake", "RFFFMAZ4", "4111111111111111"} {
		assert.NotContains(t, string(out), leaked)
	}
	assert.Contains(t, string(out), "alice")
	assert.Contains(t, string(out), `"kind":"Password"`)

	for _, c := range cs[:4] {
		assert.Equal(t, "********", c.Value.String())
	}

	revealed := Reveal(cs[0].Value)
	defer revealed.Destroy()
	assert.Equal(t, "hunter2", revealed.Expose())
}

func TestValidateRejectsBlankText(t *testing.T) {
	var verr *ValidationError
	require.ErrorAs(t, Validate(KindPassword, "   "), &verr)
	assert.Equal(t, "Value cannot be empty", verr.Reason)

	assert.NoError(t, Validate(KindLongText, ""))
	assert.NoError(t, Validate(KindEmail, "a@example.org"))
	assert.Error(t, Validate(KindDate, "tomorrow"))
}

func TestKindExportable(t *testing.T) {
	hidden := map[Kind]bool{
		KindPassword:       true,
		KindSensitiveText:  true,
		KindTOTPSecret:     true,
		KindBankCardNumber: true,
	}
	for _, k := range Kinds() {
		assert.True(t, k.Known())
		assert.Equal(t, !hidden[k], k.Exportable(), k)
	}
	assert.False(t, Kind("nope").Known())
}
