package stripe

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trieb-work/saleor-apps/internal/domain/shared/valueobject"
)

// Stripe counts amounts in its own minor units, which differ from ISO 4217
// for some currencies (ISK, RSD and ALL are two-decimal on Stripe).
var (
	zeroDecimalCurrencies = map[string]struct{}{
		"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
		"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
	}
	threeDecimalCurrencies = map[string]struct{}{
		"BHD": {}, "JOD": {}, "KWD": {}, "OMR": {}, "TND": {},
	}
)

// Decimals returns the number of decimals Stripe uses for currency.
func Decimals(currency string) int32 {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[code]; ok {
		return 3
	}
	return 2
}

// ToMinorUnits converts a Saleor amount into the integer amount Stripe expects.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	money, err := valueobject.NewMoney(amount, currency)
	if err != nil {
		return 0, err
	}
	return money.MinorUnitsAt(Decimals(string(money.Currency()))), nil
}

// FromMinorUnits converts a Stripe integer amount back into a decimal amount.
func FromMinorUnits(minor int64, currency string) (valueobject.Money, error) {
	return valueobject.NewMoneyFromMinorUnitsAt(minor, currency, Decimals(currency))
}
