// Package model defines the vault's domain types: typed Values, the
// Content fields they fill, and the Records that own them.
//
// Values are a closed set of variants. Each is validated once on
// construction and again on Set; an invalid Value cannot exist. Every
// variant keeps its text in a crypto.Secret and is wiped by Destroy.
// Password, SensitiveText, TOTPSecret and BankCardNumber are not
// exportable: generic serialization omits them and Reveal is the only
// accessor.
package model
