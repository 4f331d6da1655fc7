package enrich

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Band is one amount category: a named inclusive interval [Min, Max].
// A nil Max marks the open-ended top band, which matches any amount >= Min.
type Band struct {
	Name string
	Min  decimal.Decimal
	Max  *decimal.Decimal
}

// Bands is an ordered set of bands partitioning [0, inf) at cent granularity:
// each band starts one cent above the previous band's end.
type Bands []Band

// cent is the granularity of cleaned amounts (two decimal places).
var cent = decimal.New(1, -2)

// DefaultBands returns the seeded three-band scheme.
func DefaultBands() Bands {
	return Bands{
		{Name: "low", Min: dec("0"), Max: decPtr("49.99")},
		{Name: "medium", Min: dec("50"), Max: decPtr("200")},
		{Name: "high", Min: dec("200.01"), Max: nil},
	}
}

// Categorize returns the unique band containing amount. Amounts are expected
// to be non-negative with at most two decimal places; anything else has been
// rejected by the cleaner already.
func (bs Bands) Categorize(amount decimal.Decimal) (Band, error) {
	for _, b := range bs {
		if amount.LessThan(b.Min) {
			continue
		}
		if b.Max == nil || amount.LessThanOrEqual(*b.Max) {
			return b, nil
		}
	}
	return Band{}, fmt.Errorf("Categorize: no band matches amount %s", amount.StringFixed(2))
}

// ByName looks up a band by its category name.
func (bs Bands) ByName(name string) (Band, bool) {
	for _, b := range bs {
		if b.Name == name {
			return b, true
		}
	}
	return Band{}, false
}

// Validate checks that the band set partitions [0, inf): the first band starts
// at zero, consecutive bands are one cent apart, and only the last band is
// open-ended.
func (bs Bands) Validate() error {
	if len(bs) == 0 {
		return errors.New("Validate: no bands defined")
	}
	if !bs[0].Min.IsZero() {
		return fmt.Errorf("Validate: first band %q starts at %s, want 0", bs[0].Name, bs[0].Min)
	}
	for i, b := range bs {
		last := i == len(bs)-1
		if last {
			if b.Max != nil {
				return fmt.Errorf("Validate: top band %q must be open-ended", b.Name)
			}
			continue
		}
		if b.Max == nil {
			return fmt.Errorf("Validate: band %q is open-ended but not last", b.Name)
		}
		if b.Max.LessThan(b.Min) {
			return fmt.Errorf("Validate: band %q has max %s below min %s", b.Name, b.Max, b.Min)
		}
		if !bs[i+1].Min.Sub(*b.Max).Equal(cent) {
			return fmt.Errorf("Validate: gap or overlap between %q (max %s) and %q (min %s)",
				b.Name, b.Max, bs[i+1].Name, bs[i+1].Min)
		}
	}
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
