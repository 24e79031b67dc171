// Package catalog holds the static, configuration-loaded description of the
// configurable products: which options exist, where they live in the page,
// and how each one contributes to the price.
//
// A catalog is pure data. Nothing here touches the DOM or mutates state; the
// price functions are deterministic for a given value.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Kind is the value domain of an option widget.
type Kind string

const (
	KindSelect Kind = "select" // <select>, value read from the element
	KindRadio  Kind = "radio"  // radio group, value read from the checked input
	KindText   Kind = "text"   // free text input
)

// RuleType selects how an option contributes to the price.
type RuleType string

const (
	RuleNone  RuleType = "none"  // no contribution
	RuleTable RuleType = "table" // flat lookup keyed by value
	RuleTier  RuleType = "tier"  // tier table keyed by the group's combined count
	RuleDelta RuleType = "delta" // fixed delta when the value equals Trigger
)

// DefaultMaxChars is the shared engraving budget.
const DefaultMaxChars = 40

// PriceRule maps an option's raw value to its price contribution.
type PriceRule struct {
	Type     RuleType           `yaml:"type" json:"type"`
	Table    map[string]float64 `yaml:"table,omitempty" json:"table,omitempty"`
	Fallback float64            `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Group    string             `yaml:"group,omitempty" json:"group,omitempty"`
	Trigger  string             `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	Delta    float64            `yaml:"delta,omitempty" json:"delta,omitempty"`
}

// Contribution returns the price delta for value under a table or delta
// rule. Tier rules are priced per group, see TierGroup.Price.
func (r PriceRule) Contribution(value string) float64 {
	switch r.Type {
	case RuleTable:
		if p, ok := r.Table[value]; ok {
			return p
		}
		return r.Fallback
	case RuleDelta:
		if value == r.Trigger {
			return r.Delta
		}
		return 0
	default:
		return 0
	}
}

// Suppression blanks another option while this option holds the When value.
// Container, if set, is hidden in the page for the same duration.
type Suppression struct {
	When      string `yaml:"when" json:"when"`
	Option    string `yaml:"option" json:"option"`
	Container string `yaml:"container,omitempty" json:"container,omitempty"`
}

// Option is one user-configurable product attribute.
type Option struct {
	Name    string `yaml:"name" json:"name"`
	Locator string `yaml:"locator" json:"locator"`
	// Container is the widget wrapper. Radio groups listen on it, and its
	// appearance in a structural mutation triggers a re-bind.
	Container string    `yaml:"container,omitempty" json:"container,omitempty"`
	Kind      Kind      `yaml:"kind" json:"kind"`
	Event     string    `yaml:"event,omitempty" json:"event,omitempty"`
	Price     PriceRule `yaml:"price" json:"price"`

	Placeholder        string `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	PlaceholderOverlay string `yaml:"placeholder_overlay,omitempty" json:"placeholder_overlay,omitempty"`

	Required        bool   `yaml:"required,omitempty" json:"required,omitempty"`
	RequiredMessage string `yaml:"required_message,omitempty" json:"required_message,omitempty"`

	// Default is the line item value when the option is blank.
	Default    string        `yaml:"default,omitempty" json:"default,omitempty"`
	Suppresses []Suppression `yaml:"suppresses,omitempty" json:"suppresses,omitempty"`

	// Wait marks options whose appearance ends the element wait.
	Wait bool `yaml:"wait,omitempty" json:"wait,omitempty"`
}

// TierGroup is a set of free-text options sharing one tier table. The
// combined character count of every member selects the tier.
type TierGroup struct {
	// Name is the derived option submitted with the tier label.
	Name    string   `yaml:"name" json:"name"`
	Members []string `yaml:"members" json:"members"`
	// MaxChars is the combined budget. Default: 40.
	MaxChars int `yaml:"max_chars,omitempty" json:"max_chars,omitempty"`
	// CountWhitespace counts raw length instead of stripping whitespace.
	CountWhitespace bool      `yaml:"count_whitespace,omitempty" json:"count_whitespace,omitempty"`
	Default         string    `yaml:"default,omitempty" json:"default,omitempty"`
	Tiers           TierTable `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// Count returns the combined count of the given member values.
func (g TierGroup) Count(values ...string) int {
	n := 0
	for _, v := range values {
		n += CountChars(v, g.CountWhitespace)
	}
	return n
}

// Lookup returns the tier for a combined count.
func (g TierGroup) Lookup(count int) (Tier, error) {
	if count > g.MaxChars {
		return Tier{}, fmt.Errorf("%w: %d > %d", ErrTierOutOfRange, count, g.MaxChars)
	}
	return g.Tiers.Lookup(count)
}

// Has reports whether option name belongs to the group.
func (g TierGroup) Has(name string) bool {
	for _, m := range g.Members {
		if m == name {
			return true
		}
	}
	return false
}

// Selectors are the page-level locators of a product page.
type Selectors struct {
	PriceDisplay     string `yaml:"price_display" json:"price_display"`
	CartControls     string `yaml:"cart_controls" json:"cart_controls"`
	AddToBag         string `yaml:"add_to_bag" json:"add_to_bag"`
	AddMore          string `yaml:"add_more" json:"add_more"`
	CartButton       string `yaml:"cart_button" json:"cart_button"`
	Quantity         string `yaml:"quantity" json:"quantity"`
	OptionsContainer string `yaml:"options_container" json:"options_container"`
}

// Product is the configuration of one allow-listed product.
type Product struct {
	ID         int64       `yaml:"id" json:"id"`
	Name       string      `yaml:"name" json:"name"`
	BasePrice  float64     `yaml:"base_price" json:"base_price"`
	Options    []Option    `yaml:"options" json:"options"`
	TierGroups []TierGroup `yaml:"tier_groups,omitempty" json:"tier_groups,omitempty"`
	Selectors  Selectors   `yaml:"selectors,omitempty" json:"selectors,omitempty"`
	// Removal enables the decrement/remove cart flow for this product.
	Removal bool `yaml:"removal,omitempty" json:"removal,omitempty"`
}

// Option returns the named option.
func (p *Product) Option(name string) (*Option, bool) {
	for i := range p.Options {
		if p.Options[i].Name == name {
			return &p.Options[i], true
		}
	}
	return nil, false
}

// GroupOf returns the tier group an option belongs to.
func (p *Product) GroupOf(name string) (*TierGroup, bool) {
	for i := range p.TierGroups {
		if p.TierGroups[i].Has(name) {
			return &p.TierGroups[i], true
		}
	}
	return nil, false
}

// Group returns the tier group by its derived name.
func (p *Product) Group(name string) (*TierGroup, bool) {
	for i := range p.TierGroups {
		if p.TierGroups[i].Name == name {
			return &p.TierGroups[i], true
		}
	}
	return nil, false
}

// Catalog is the set of products the engine activates on.
type Catalog struct {
	// Currency prefixes formatted prices. Default: "$".
	Currency string    `yaml:"currency" json:"currency"`
	Products []Product `yaml:"products" json:"products"`
	// Templates holds YAML anchors shared between products. It is never read.
	Templates map[string]yaml.Node `yaml:"templates,omitempty" json:"-"`
}

var (
	// ErrUnknownProduct is returned for product ids outside the allow-list.
	ErrUnknownProduct = errors.New("catalog: unknown product")
	// ErrTierOutOfRange is returned when a count falls outside a tier table.
	ErrTierOutOfRange = errors.New("catalog: tier out of range")
)

// Product returns the configuration of id.
func (c *Catalog) Product(id int64) (*Product, error) {
	for i := range c.Products {
		if c.Products[i].ID == id {
			return &c.Products[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownProduct, id)
}

// Allowed reports whether id is in the allow-list.
func (c *Catalog) Allowed(id int64) bool {
	_, err := c.Product(id)
	return err == nil
}

// FormatPrice renders a total the way the storefront does ("$211.75").
func (c *Catalog) FormatPrice(total float64) string {
	return fmt.Sprintf("%s%.2f", c.Currency, total)
}

// CountChars counts characters the way the tier table expects. Whitespace is
// stripped unless countWhitespace is set.
func CountChars(s string, countWhitespace bool) int {
	n := 0
	for _, r := range s {
		if !countWhitespace && unicode.IsSpace(r) {
			continue
		}
		n++
	}
	return n
}

// ApplyDefaults fills unset fields. Load calls it; callers building a
// Catalog by hand should too.
func (c *Catalog) ApplyDefaults() {
	if c.Currency == "" {
		c.Currency = "$"
	}
	for i := range c.Products {
		p := &c.Products[i]
		p.Selectors.applyDefaults()
		for j := range p.Options {
			o := &p.Options[j]
			if o.Price.Type == "" {
				o.Price.Type = RuleNone
			}
			if o.Event == "" {
				if o.Kind == KindText {
					o.Event = "input"
				} else {
					o.Event = "change"
				}
			}
		}
		for j := range p.TierGroups {
			g := &p.TierGroups[j]
			if g.MaxChars <= 0 {
				g.MaxChars = DefaultMaxChars
			}
			if g.Default == "" {
				g.Default = "0"
			}
			if len(g.Tiers) == 0 {
				g.Tiers = EngravingTiers()
			}
		}
	}
}

func (s *Selectors) applyDefaults() {
	if s.PriceDisplay == "" {
		s.PriceDisplay = ".details-product-price__value.ec-price-item.notranslate"
	}
	if s.CartControls == "" {
		s.CartControls = ".details-product-purchase__controls"
	}
	if s.AddToBag == "" {
		s.AddToBag = ".details-product-purchase__add-to-bag"
	}
	if s.AddMore == "" {
		s.AddMore = ".details-product-purchase__add-more"
	}
	if s.CartButton == "" {
		s.CartButton = ".form-control__button"
	}
	if s.Quantity == "" {
		s.Quantity = "input[name='ec-qty']"
	}
	if s.OptionsContainer == "" {
		s.OptionsContainer = ".details-product-options"
	}
}

// Validate checks the structural invariants: unique names, every option a
// rule or suppression names exists, tier tables monotonic and wide enough.
func (c *Catalog) Validate() error {
	var errs []string
	seen := make(map[int64]bool)
	for i := range c.Products {
		p := &c.Products[i]
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("product %d: duplicate id", p.ID))
		}
		seen[p.ID] = true
		if p.BasePrice <= 0 {
			errs = append(errs, fmt.Sprintf("product %d: base_price must be positive", p.ID))
		}
		errs = append(errs, p.validate()...)
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (p *Product) validate() []string {
	var errs []string
	names := make(map[string]bool)
	for _, o := range p.Options {
		if o.Name == "" {
			errs = append(errs, fmt.Sprintf("product %d: option without name", p.ID))
			continue
		}
		if names[o.Name] {
			errs = append(errs, fmt.Sprintf("product %d: duplicate option %q", p.ID, o.Name))
		}
		names[o.Name] = true
		if o.Locator == "" {
			errs = append(errs, fmt.Sprintf("product %d: option %q has no locator", p.ID, o.Name))
		}
		if o.Kind == KindRadio && o.Container == "" {
			errs = append(errs, fmt.Sprintf("product %d: radio option %q needs a container", p.ID, o.Name))
		}
		switch o.Kind {
		case KindSelect, KindRadio, KindText:
		default:
			errs = append(errs, fmt.Sprintf("product %d: option %q: unknown kind %q", p.ID, o.Name, o.Kind))
		}
	}
	for _, o := range p.Options {
		if o.Price.Type == RuleTier {
			g, ok := p.Group(o.Price.Group)
			if !ok || !g.Has(o.Name) {
				errs = append(errs, fmt.Sprintf("product %d: option %q: tier group %q does not list it", p.ID, o.Name, o.Price.Group))
			}
		}
		for _, s := range o.Suppresses {
			if !names[s.Option] {
				errs = append(errs, fmt.Sprintf("product %d: option %q suppresses unknown %q", p.ID, o.Name, s.Option))
			}
		}
	}
	for _, g := range p.TierGroups {
		if names[g.Name] {
			errs = append(errs, fmt.Sprintf("product %d: tier group %q collides with an option", p.ID, g.Name))
		}
		for _, m := range g.Members {
			o, ok := p.Option(m)
			if !ok {
				errs = append(errs, fmt.Sprintf("product %d: tier group %q: unknown member %q", p.ID, g.Name, m))
				continue
			}
			if o.Kind != KindText {
				errs = append(errs, fmt.Sprintf("product %d: tier group %q: member %q is not free text", p.ID, g.Name, m))
			}
		}
		if err := g.Tiers.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("product %d: tier group %q: %v", p.ID, g.Name, err))
		} else if len(g.Tiers) <= g.MaxChars {
			errs = append(errs, fmt.Sprintf("product %d: tier group %q: %d tiers cannot cover %d chars", p.ID, g.Name, len(g.Tiers), g.MaxChars))
		}
	}
	return errs
}
