package models

import "github.com/shopspring/decimal"

const (
	quotePlaces = 2
	basePlaces  = 8
	pctPlaces   = 2
	ratePlaces  = 2
)

func Quote(d decimal.Decimal) string {
	return d.StringFixed(quotePlaces)
}

func Base(d decimal.Decimal) string {
	return d.StringFixed(basePlaces)
}

func Rate(d decimal.Decimal) string {
	return d.StringFixed(ratePlaces)
}

func QuotePtr(d *decimal.Decimal) *string {
	return fixedPtr(d, quotePlaces)
}

func PctPtr(d *decimal.Decimal) *string {
	return fixedPtr(d, pctPlaces)
}

func fixedPtr(d *decimal.Decimal, places int32) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(places)
	return &s
}
