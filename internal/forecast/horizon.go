// Package forecast fits an additive trend and seasonality model to a price
// history and extends it over a horizon of whole years.
package forecast

import (
	"errors"
	"fmt"
)

// DaysPerYear is the number of calendar days one horizon year adds
const DaysPerYear = 365

var (
	ErrInvalidHorizon   = errors.New("invalid forecast horizon")
	ErrInsufficientData = errors.New("insufficient data to fit a forecast")
	errNotFitted        = errors.New("model is not fitted")
)

// Bounds restricts the selectable horizon in years
type Bounds struct {
	MinYears int
	MaxYears int
}

// DefaultBounds allows 1 to 7 years
var DefaultBounds = Bounds{MinYears: 1, MaxYears: 7}

// Days converts a horizon in years to days
func (b Bounds) Days(years int) (int, error) {
	if years < b.MinYears || years > b.MaxYears {
		return 0, fmt.Errorf("%w: %d years is outside %d..%d", ErrInvalidHorizon, years, b.MinYears, b.MaxYears)
	}
	return years * DaysPerYear, nil
}

// Contains reports whether years is selectable
func (b Bounds) Contains(years int) bool {
	return years >= b.MinYears && years <= b.MaxYears
}

// HorizonDays converts years within DefaultBounds to days
func HorizonDays(years int) (int, error) {
	return DefaultBounds.Days(years)
}
