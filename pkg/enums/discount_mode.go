package enums

import "fmt"

// DiscountMode selects how an order's discount value is interpreted.
type DiscountMode string

const (
	// DiscountModeFlat subtracts a currency amount from the gross total.
	DiscountModeFlat DiscountMode = "flat"
	// DiscountModePercent applies a percentage, optionally per category.
	DiscountModePercent DiscountMode = "percent"
)

var validDiscountModes = []DiscountMode{DiscountModeFlat, DiscountModePercent}

func (m DiscountMode) String() string {
	return string(m)
}

func (m DiscountMode) IsValid() bool {
	for _, candidate := range validDiscountModes {
		if candidate == m {
			return true
		}
	}
	return false
}

func ParseDiscountMode(value string) (DiscountMode, error) {
	for _, candidate := range validDiscountModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount mode %q", value)
}
