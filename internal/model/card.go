package model

import (
	"strconv"
	"strings"
)

// Card brands as shown to the user.
const (
	BrandVisa             = "Visa"
	BrandVisaElectron     = "Visa Electron"
	BrandMasterCard       = "MasterCard"
	BrandMaestro          = "Maestro"
	BrandAmex             = "American Express"
	BrandDinersClub       = "Diners Club"
	BrandDiscover         = "Discover"
	BrandJCB              = "JCB"
	BrandUnionPay         = "UnionPay"
	BrandMIR              = "MIR"
	BrandDankort          = "Dankort"
	BrandForbrugsforening = "Forbrugsforeningen"
	BrandUnknown          = "Unknown"
)

type brandRange struct {
	lo, hi int // inclusive prefix range
	digits int // prefix length
	brand  string
}

// Checked in order; more specific ranges come first.
var brandRanges = []brandRange{
	{4026, 4026, 4, BrandVisaElectron},
	{417500, 417500, 6, BrandVisaElectron},
	{4405, 4405, 4, BrandVisaElectron},
	{4508, 4508, 4, BrandVisaElectron},
	{4844, 4844, 4, BrandVisaElectron},
	{4913, 4913, 4, BrandVisaElectron},
	{4917, 4917, 4, BrandVisaElectron},
	{4, 4, 1, BrandVisa},
	{2200, 2204, 4, BrandMIR},
	{2221, 2720, 4, BrandMasterCard},
	{51, 55, 2, BrandMasterCard},
	{34, 34, 2, BrandAmex},
	{37, 37, 2, BrandAmex},
	{300, 305, 3, BrandDinersClub},
	{36, 36, 2, BrandDinersClub},
	{38, 39, 2, BrandDinersClub},
	{6011, 6011, 4, BrandDiscover},
	{644, 649, 3, BrandDiscover},
	{65, 65, 2, BrandDiscover},
	{3528, 3589, 4, BrandJCB},
	{62, 62, 2, BrandUnionPay},
	{5019, 5019, 4, BrandDankort},
	{600722, 600722, 6, BrandForbrugsforening},
	{50, 50, 2, BrandMaestro},
	{56, 58, 2, BrandMaestro},
	{6, 6, 1, BrandMaestro},
}

// CardBrand names the issuer network of a card number by its prefix.
// Spaces and dashes are ignored.
func CardBrand(number string) string {
	number = cardSeparators.Replace(number)
	for _, r := range brandRanges {
		if len(number) < r.digits {
			continue
		}
		p, err := strconv.Atoi(number[:r.digits])
		if err != nil {
			return BrandUnknown
		}
		if p >= r.lo && p <= r.hi {
			return r.brand
		}
	}
	return BrandUnknown
}

// MaskCard keeps the last four digits visible.
func MaskCard(number string) string {
	number = cardSeparators.Replace(number)
	if len(number) <= 4 {
		return strings.Repeat("•", len(number))
	}
	return strings.Repeat("•", len(number)-4) + number[len(number)-4:]
}
