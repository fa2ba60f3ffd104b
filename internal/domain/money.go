package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultMinorUnitExponent — число знаков после запятой для INR и большинства валют.
const DefaultMinorUnitExponent int32 = 2

// ToMinorUnits переводит десятичную сумму в целое число минимальных единиц валюты.
// Округление до ближайшей единицы, половина округляется вверх (от нуля).
func ToMinorUnits(amount decimal.Decimal, exponent int32) (int64, error) {
	if exponent < 0 {
		return 0, fmt.Errorf("minor unit exponent must be non-negative, got %d", exponent)
	}

	minor := amount.Shift(exponent).Round(0)
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s overflows minor units", amount.String())
	}
	return minor.IntPart(), nil
}

// FromMinorUnits переводит минимальные единицы обратно в десятичную сумму.
func FromMinorUnits(minor int64, exponent int32) decimal.Decimal {
	return decimal.New(minor, -exponent)
}
