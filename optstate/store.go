// Package optstate holds the option values of one product-page session and
// derives the price from them.
//
// Contributions are never written directly: every SetOption recomputes the
// affected contribution from raw values under the catalog rule, so the total
// is always a pure function of the current values.
package optstate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hazyhaar/optsync/catalog"
)

var (
	// ErrBudgetExceeded is returned when a free-text edit would push a tier
	// group past its character budget. The edit is not committed.
	ErrBudgetExceeded = errors.New("optstate: character budget exceeded")
	// ErrUnknownOption is returned for names the product does not define.
	ErrUnknownOption = errors.New("optstate: unknown option")
)

// Store is the option state of one product. Not safe for concurrent use;
// it lives on the loop.
type Store struct {
	product *catalog.Product
	values  map[string]*string
	contrib map[string]float64
	derived map[string]string
}

// New returns a reset store for p.
func New(p *catalog.Product) *Store {
	s := &Store{product: p}
	s.Reset()
	return s
}

// Product returns the catalog entry the store prices.
func (s *Store) Product() *catalog.Product { return s.product }

// Reset clears every value to unset and every contribution to zero.
func (s *Store) Reset() {
	s.values = make(map[string]*string, len(s.product.Options))
	s.contrib = make(map[string]float64)
	s.derived = make(map[string]string)
}

// SetOption records raw for name, recomputes the contributions it touches
// and returns the new total. A budget violation leaves the store unchanged.
func (s *Store) SetOption(name, raw string) (float64, error) {
	o, ok := s.product.Option(name)
	if !ok {
		return s.TotalPrice(), fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}

	if o.Price.Type == catalog.RuleTier {
		g, _ := s.product.Group(o.Price.Group)
		count := s.groupCount(g, name, raw)
		if count > g.MaxChars {
			return s.TotalPrice(), fmt.Errorf("%w: %s has %d of %d", ErrBudgetExceeded, g.Name, count, g.MaxChars)
		}
		s.set(name, raw)
		if err := s.repriceGroup(g); err != nil {
			return s.TotalPrice(), err
		}
	} else {
		s.set(name, raw)
		s.contrib[name] = o.Price.Contribution(raw)
	}

	// A suppression trigger clears its target; lifting one changes which
	// members a tier group counts. Either way the target is repriced.
	for _, sup := range o.Suppresses {
		target, ok := s.product.Option(sup.Option)
		if !ok {
			continue
		}
		if raw == sup.When {
			s.set(target.Name, "")
		}
		if g, ok := s.product.GroupOf(target.Name); ok {
			if err := s.repriceGroup(g); err != nil {
				return s.TotalPrice(), err
			}
		} else if v, ok := s.Value(target.Name); ok {
			s.contrib[target.Name] = target.Price.Contribution(v)
		}
	}
	return s.TotalPrice(), nil
}

func (s *Store) set(name, raw string) {
	v := raw
	s.values[name] = &v
}

// groupCount is the combined count of g's members with name taking raw.
// Suppressed members count as empty.
func (s *Store) groupCount(g *catalog.TierGroup, name, raw string) int {
	vals := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		switch {
		case s.Suppressed(m):
			continue
		case m == name:
			vals = append(vals, raw)
		default:
			if v := s.values[m]; v != nil {
				vals = append(vals, *v)
			}
		}
	}
	return g.Count(vals...)
}

func (s *Store) repriceGroup(g *catalog.TierGroup) error {
	count := s.groupCount(g, "", "")
	tier, err := g.Lookup(count)
	if err != nil {
		return fmt.Errorf("optstate: %s: %w", g.Name, err)
	}
	s.contrib[g.Name] = tier.Price
	s.derived[g.Name] = tier.Label
	return nil
}

// TotalPrice is the base price plus every current contribution.
func (s *Store) TotalPrice() float64 {
	total := s.product.BasePrice
	// Sorted so float summation order is stable across calls.
	keys := make([]string, 0, len(s.contrib))
	for k := range s.contrib {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		total += s.contrib[k]
	}
	return total
}

// Value returns the raw value of name and whether it was ever set.
func (s *Store) Value(name string) (string, bool) {
	v := s.values[name]
	if v == nil {
		return "", false
	}
	return *v, true
}

// Contribution returns the price contribution under key: an option name, or
// a tier group name for tier-priced options.
func (s *Store) Contribution(key string) float64 { return s.contrib[key] }

// Derived returns the tier label of a group ("7-8"), or its default when
// nothing has been priced yet.
func (s *Store) Derived(group string) string {
	if l, ok := s.derived[group]; ok {
		return l
	}
	if g, ok := s.product.Group(group); ok {
		return g.Default
	}
	return ""
}

// Suppressed reports whether another option's current value suppresses name.
func (s *Store) Suppressed(name string) bool {
	for _, o := range s.product.Options {
		v := s.values[o.Name]
		if v == nil {
			continue
		}
		for _, sup := range o.Suppresses {
			if sup.Option == name && *v == sup.When {
				return true
			}
		}
	}
	return false
}

// Snapshot is a copy of the store for reporting.
type Snapshot struct {
	ProductID     int64              `json:"product_id"`
	Values        map[string]string  `json:"values"`
	Contributions map[string]float64 `json:"contributions"`
	Derived       map[string]string  `json:"derived"`
	Total         float64            `json:"total"`
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		ProductID:     s.product.ID,
		Values:        make(map[string]string, len(s.values)),
		Contributions: make(map[string]float64, len(s.contrib)),
		Derived:       make(map[string]string, len(s.product.TierGroups)),
		Total:         s.TotalPrice(),
	}
	for k, v := range s.values {
		if v != nil {
			snap.Values[k] = *v
		}
	}
	for k, v := range s.contrib {
		snap.Contributions[k] = v
	}
	for _, g := range s.product.TierGroups {
		snap.Derived[g.Name] = s.Derived(g.Name)
	}
	return snap
}

// Quote prices a set of option values on a fresh store, applied in catalog
// order.
func Quote(p *catalog.Product, values map[string]string) (Snapshot, error) {
	s := New(p)
	for _, o := range p.Options {
		v, ok := values[o.Name]
		if !ok {
			continue
		}
		if _, err := s.SetOption(o.Name, v); err != nil {
			return Snapshot{}, err
		}
	}
	for name := range values {
		if _, ok := p.Option(name); !ok {
			return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownOption, name)
		}
	}
	return s.Snapshot(), nil
}
