// Package fixture renders storefront product pages shaped like the live
// Ecwid markup, for tests that drive the engine against memdom.
package fixture

import (
	"fmt"
	"strings"
)

// Ski is the product page of the ski pole products.
func Ski(price string) string { return page(price, skiOptions("")) }

// Trek is the hiking pole page, with the Quantity radio group.
func Trek(price string) string { return page(price, skiOptions(Quantity("Trekking Pole Pair"))) }

// Plunger is the plunger page: radio grip colour and a single engraving.
func Plunger(price string) string {
	return page(price, `
<div class="details-product-option details-product-option--Grip-Color">
  <input type="radio" name="Grip Color" value="Black" checked>
  <input type="radio" name="Grip Color" value="Cork">
</div>
`+textField("Engraving", "Engraving"))
}

// SkiOptions is the ski pole options block, for inserting into Bare.
func SkiOptions() string { return skiOptions("") }

// Bare is a product page shell whose options have not rendered yet.
func Bare(price string) string { return page(price, "") }

// Strap renders the strap widget with checked selected.
func Strap(checked string) string {
	var b strings.Builder
	b.WriteString(`<div class="details-product-option details-product-option--Strap">`)
	for _, v := range []string{"None", "Adjustable", "Fixed", "mtnStrap"} {
		c := ""
		if v == checked {
			c = " checked"
		}
		fmt.Fprintf(&b, `<input type="radio" name="Strap" value="%s"%s>`, v, c)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// Quantity renders the hiking quantity widget with checked selected.
func Quantity(checked string) string {
	var b strings.Builder
	b.WriteString(`<div class="details-product-option details-product-option--Quantity">`)
	for _, v := range []string{"Trekking Pole Pair", "Single Hiking Stick"} {
		c := ""
		if v == checked {
			c = " checked"
		}
		fmt.Fprintf(&b, `<input type="radio" name="Quantity" value="%s"%s>`, v, c)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// Controls renders the purchase controls with one add-to-bag button.
func Controls(qty string) string {
	return fmt.Sprintf(`<div class="details-product-purchase__controls">
  <input name="ec-qty" value="%s">
  <div class="details-product-purchase__add-to-bag"><button class="form-control__button">Add to Bag</button></div>
</div>`, qty)
}

// Price renders the price element.
func Price(text string) string {
	return fmt.Sprintf(`<span class="details-product-price__value ec-price-item notranslate">%s</span>`, text)
}

func selectField(class string, values ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="details-product-option details-product-option--%s"><select>`, class)
	for _, v := range values {
		fmt.Fprintf(&b, `<option value="%s">%s</option>`, v, v)
	}
	b.WriteString(`</select></div>`)
	return b.String()
}

func textField(class, label string) string {
	return fmt.Sprintf(`
<div class="details-product-option details-product-option--%s">
  <div class="form-control">
    <input type="text" aria-label="%s" value="">
    <div class="form-control__placeholder">%s</div>
  </div>
</div>`, class, label, label)
}

func skiOptions(extra string) string {
	return strings.Join([]string{
		selectField("Basket-Size", "Small", "Large"),
		selectField("Grip-Color", "Black", "Cork"),
		selectField("Basket-Color", "Black", "Red"),
		Strap("Fixed"),
		textField("Length", "Length (cm or inches)"),
		textField("Engraving", "Engraving"),
		textField("Engraving---Ski-Pole-2", "Engraving - Ski Pole 2"),
		extra,
	}, "\n")
}

func page(price, options string) string {
	return `<!doctype html><html><body>
<div class="ec-store">
  <div class="details-product-price">` + Price(price) + `</div>
  <div class="details-product-options">` + options + `</div>
  <div class="details-product-purchase">` + Controls("1") + `</div>
</div>
</body></html>`
}
