package catalog

import (
	"errors"
	"fmt"
)

// Tier is one row of a tier table: the price increment and the bucket label
// submitted to the cart ("7-8").
type Tier struct {
	Label string  `yaml:"label" json:"label"`
	Price float64 `yaml:"price" json:"price"`
}

// TierTable is indexed by character count. Row 0 is the empty engraving.
type TierTable []Tier

// Lookup returns the tier for count. Counts outside the table are an error,
// never a clamp.
func (t TierTable) Lookup(count int) (Tier, error) {
	if count < 0 || count >= len(t) {
		return Tier{}, fmt.Errorf("%w: %d not in [0,%d]", ErrTierOutOfRange, count, len(t)-1)
	}
	return t[count], nil
}

// Validate checks the table is non-empty and non-decreasing in price.
func (t TierTable) Validate() error {
	if len(t) == 0 {
		return errors.New("empty tier table")
	}
	for i := 1; i < len(t); i++ {
		if t[i].Price < t[i-1].Price {
			return fmt.Errorf("tier %d price %.2f below tier %d price %.2f",
				i, t[i].Price, i-1, t[i-1].Price)
		}
	}
	return nil
}

// EngravingTiers is the storefront engraving table: 0..40 characters, first
// six characters at a flat 22, then +1.75 for every two characters. The
// labels must match the cart option values configured in the store.
func EngravingTiers() TierTable {
	t := make(TierTable, DefaultMaxChars+1)
	t[0] = Tier{Label: "0", Price: 0}
	for n := 1; n <= DefaultMaxChars; n++ {
		if n <= 6 {
			t[n] = Tier{Label: "1-6", Price: 22}
			continue
		}
		// 7-8 -> step 0, 9-10 -> step 1, ...
		step := (n - 7) / 2
		lo := 7 + 2*step
		t[n] = Tier{
			Label: fmt.Sprintf("%d-%d", lo, lo+1),
			Price: 23.75 + 1.75*float64(step),
		}
	}
	return t
}
