package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/optsync/dbopen"
)

func TestBuiltin_Products(t *testing.T) {
	c := Builtin()

	want := map[int64]float64{
		793363376: 169, 793363171: 185, 793364072: 192,
		793363373: 99, 800709674: 169, 793364070: 169, 800767786: 49.95,
	}
	if len(c.Products) != len(want) {
		t.Fatalf("products: got %d, want %d", len(c.Products), len(want))
	}
	for id, base := range want {
		p, err := c.Product(id)
		if err != nil {
			t.Fatalf("Product(%d): %v", id, err)
		}
		if p.BasePrice != base {
			t.Errorf("product %d base: got %v, want %v", id, p.BasePrice, base)
		}
	}
	if c.Allowed(793363386) {
		t.Error("plunger 793363386 has no base price and must not be allowed")
	}
}

func TestBuiltin_SharedTemplatesAreCopies(t *testing.T) {
	c := Builtin()
	a, _ := c.Product(793363376)
	b, _ := c.Product(793363171)
	a.Options[0].Locator = "changed"
	if b.Options[0].Locator == "changed" {
		t.Fatal("products share option storage")
	}
}

func TestBuiltin_Defaults(t *testing.T) {
	c := Builtin()
	p, _ := c.Product(793363376)

	if p.Selectors.Quantity != "input[name='ec-qty']" {
		t.Errorf("quantity selector: got %q", p.Selectors.Quantity)
	}
	o, ok := p.Option("Engraving")
	if !ok {
		t.Fatal("Engraving option missing")
	}
	if o.Event != "input" {
		t.Errorf("Engraving event: got %q, want input", o.Event)
	}
	o, _ = p.Option("Length (cm or inches)")
	if o.Event != "change" {
		t.Errorf("Length event: got %q, want change", o.Event)
	}
	g, ok := p.Group("Engraving Count")
	if !ok {
		t.Fatal("tier group missing")
	}
	if g.MaxChars != 40 || len(g.Tiers) != 41 || g.Default != "0" {
		t.Errorf("group defaults: max=%d tiers=%d default=%q", g.MaxChars, len(g.Tiers), g.Default)
	}
}

func TestPriceRule_Contribution(t *testing.T) {
	strap := PriceRule{Type: RuleTable, Table: map[string]float64{"None": -4.2, "Adjustable": 14, "Fixed": 0, "mtnStrap": 28}}
	cases := []struct {
		rule  PriceRule
		value string
		want  float64
	}{
		{strap, "Adjustable", 14},
		{strap, "None", -4.2},
		{strap, "unknown", 0},
		{strap, "", 0},
		{PriceRule{Type: RuleTable, Table: map[string]float64{"Cork": 19}, Fallback: 2}, "Blue", 2},
		{PriceRule{Type: RuleDelta, Trigger: "Single Hiking Stick", Delta: -45}, "Single Hiking Stick", -45},
		{PriceRule{Type: RuleDelta, Trigger: "Single Hiking Stick", Delta: -45}, "Trekking Pole Pair", 0},
		{PriceRule{Type: RuleNone}, "anything", 0},
	}
	for _, tc := range cases {
		if got := tc.rule.Contribution(tc.value); got != tc.want {
			t.Errorf("%s(%q): got %v, want %v", tc.rule.Type, tc.value, got, tc.want)
		}
	}
}

func TestEngravingTiers_Table(t *testing.T) {
	tiers := EngravingTiers()
	if err := tiers.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cases := []struct {
		count int
		label string
		price float64
	}{
		{0, "0", 0},
		{1, "1-6", 22},
		{6, "1-6", 22},
		{7, "7-8", 23.75},
		{8, "7-8", 23.75},
		{9, "9-10", 25.5},
		{20, "19-20", 34.25},
		{39, "39-40", 51.75},
		{40, "39-40", 51.75},
	}
	for _, tc := range cases {
		got, err := tiers.Lookup(tc.count)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", tc.count, err)
		}
		if got.Label != tc.label || got.Price != tc.price {
			t.Errorf("Lookup(%d): got %+v, want {%s %v}", tc.count, got, tc.label, tc.price)
		}
	}
}

func TestTierTable_Monotonic(t *testing.T) {
	tiers := EngravingTiers()
	for n := 1; n < len(tiers); n++ {
		if tiers[n].Price < tiers[n-1].Price {
			t.Fatalf("tier %d below tier %d", n, n-1)
		}
	}

	bad := TierTable{{Label: "0", Price: 0}, {Label: "1", Price: 5}, {Label: "2", Price: 3}}
	if err := bad.Validate(); err == nil {
		t.Fatal("decreasing table validated")
	}
}

func TestTierTable_OutOfRange(t *testing.T) {
	tiers := EngravingTiers()
	for _, n := range []int{-1, 41, 100} {
		if _, err := tiers.Lookup(n); !errors.Is(err, ErrTierOutOfRange) {
			t.Errorf("Lookup(%d): got %v, want ErrTierOutOfRange", n, err)
		}
	}

	g := TierGroup{Name: "g", MaxChars: 10, Tiers: tiers}
	if _, err := g.Lookup(11); !errors.Is(err, ErrTierOutOfRange) {
		t.Errorf("group Lookup over budget: got %v", err)
	}
}

func TestCountChars(t *testing.T) {
	if got := CountChars(" a b\tc ", false); got != 3 {
		t.Errorf("stripped: got %d, want 3", got)
	}
	if got := CountChars(" a b ", true); got != 5 {
		t.Errorf("raw: got %d, want 5", got)
	}
	if got := CountChars("éé", false); got != 2 {
		t.Errorf("runes: got %d, want 2", got)
	}
	g := TierGroup{}
	if got := g.Count("ab cd", "efgh"); got != 8 {
		t.Errorf("combined: got %d, want 8", got)
	}
}

func TestFormatPrice(t *testing.T) {
	c := &Catalog{}
	c.ApplyDefaults()
	if got := c.FormatPrice(211.75); got != "$211.75" {
		t.Errorf("got %q", got)
	}
	if got := c.FormatPrice(164.8); got != "$164.80" {
		t.Errorf("got %q", got)
	}
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("products:\n  - id: 1\n    base_price: 1\n    prize: 3\n"))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]string{
		"missing base": `
products:
  - id: 1
    options: [{name: A, kind: select, locator: "#a"}]`,
		"suppress unknown": `
products:
  - id: 1
    base_price: 10
    options:
      - {name: A, kind: radio, locator: "#a:checked", container: "#c", suppresses: [{when: x, option: Nope}]}`,
		"tier member not listed": `
products:
  - id: 1
    base_price: 10
    options:
      - {name: A, kind: text, locator: "#a", price: {type: tier, group: G}}
    tier_groups:
      - {name: G, members: []}`,
		"radio without container": `
products:
  - id: 1
    base_price: 10
    options: [{name: A, kind: radio, locator: "#a:checked"}]`,
		"duplicate option": `
products:
  - id: 1
    base_price: 10
    options:
      - {name: A, kind: select, locator: "#a"}
      - {name: A, kind: select, locator: "#b"}`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: validated", name)
		} else if !strings.Contains(err.Error(), "catalog:") {
			t.Errorf("%s: error not prefixed: %v", name, err)
		}
	}
}

func TestDB_RoundTrip(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()
	want := Builtin()

	if err := SaveDB(ctx, db, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadDB(ctx, db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Products) != len(want.Products) {
		t.Fatalf("products: got %d, want %d", len(got.Products), len(want.Products))
	}

	wp, _ := want.Product(793364070)
	gp, err := got.Product(793364070)
	if err != nil {
		t.Fatalf("trek: %v", err)
	}
	if diff := cmp.Diff(wp, gp); diff != "" {
		t.Errorf("trek product mismatch (-want +got):\n%s", diff)
	}
}

func TestDB_Disable(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()
	if err := SaveDB(ctx, db, Builtin()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := Disable(ctx, db, 800767786); err != nil {
		t.Fatalf("disable: %v", err)
	}
	c, err := LoadDB(ctx, db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Allowed(800767786) {
		t.Error("disabled product still allowed")
	}
	if err := Disable(ctx, db, 42); !errors.Is(err, ErrUnknownProduct) {
		t.Errorf("disable unknown: got %v", err)
	}
}

func TestDB_BasePriceColumnWins(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()
	if err := SaveDB(ctx, db, Builtin()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := db.Exec(`UPDATE catalog_products SET base_price = 175 WHERE id = 793363376`); err != nil {
		t.Fatal(err)
	}
	c, err := LoadDB(ctx, db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p, _ := c.Product(793363376)
	if p.BasePrice != 175 {
		t.Errorf("base price: got %v, want 175", p.BasePrice)
	}
}
