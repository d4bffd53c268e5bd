package model

// Kind is the stored discriminator of a Value variant.
type Kind string

const (
	KindNumber         Kind = "Number"
	KindText           Kind = "Text"
	KindLongText       Kind = "LongText"
	KindSensitiveText  Kind = "SensitiveText"
	KindDate           Kind = "Date"
	KindPassword       Kind = "Password"
	KindTOTPSecret     Kind = "TOTPSecret"
	KindURL            Kind = "Url"
	KindEmail          Kind = "Email"
	KindPhoneNumber    Kind = "PhoneNumber"
	KindBankCardNumber Kind = "BankCardNumber"
)

var kinds = []Kind{
	KindNumber, KindText, KindLongText, KindSensitiveText, KindDate, KindPassword,
	KindTOTPSecret, KindURL, KindEmail, KindPhoneNumber, KindBankCardNumber,
}

// Kinds lists every known kind in display order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Known reports whether k names a Value variant.
func (k Kind) Known() bool {
	_, ok := rules[k]
	return ok
}

// Exportable reports whether values of this kind may leave the core
// through generic serialization.
func (k Kind) Exportable() bool {
	r, ok := rules[k]
	return ok && r.exportable
}

func (k Kind) String() string {
	return string(k)
}
