package rodpage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/optsync/cart"
)

// Cart is the storefront cart of a tab, reached through Ecwid.Cart. Calls
// block until the storefront's callback fires and may run off the loop.
type Cart struct {
	page *rod.Page
}

var _ cart.Service = (*Cart)(nil)

// NewCart returns the cart service of p.
func NewCart(p *Page) *Cart { return &Cart{page: p.page} }

func (c *Cart) eval(ctx context.Context, fn string, out any, args ...any) error {
	res, err := c.page.Context(ctx).Evaluate(
		rod.Eval(`(...a) => window.__optsync.cart.`+fn+`(...a)`, args...).ByPromise())
	if err != nil {
		return fmt.Errorf("rodpage: cart %s: %w", fn, err)
	}
	if out == nil {
		return nil
	}
	if err := res.Value.Unmarshal(out); err != nil {
		return fmt.Errorf("rodpage: cart %s: decode: %w", fn, err)
	}
	return nil
}

// addResult is what the storefront's add callback reported.
type addResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (r addResult) outcome() (bool, error) {
	if r.Error != "" {
		return false, errors.New(r.Error)
	}
	return r.OK, nil
}

func (c *Cart) AddLineItem(ctx context.Context, item cart.LineItem) (bool, error) {
	var res addResult
	if err := c.eval(ctx, "add", &res, item); err != nil {
		return false, err
	}
	return res.outcome()
}

func (c *Cart) GetCart(ctx context.Context) (cart.Cart, error) {
	var out cart.Cart
	err := c.eval(ctx, "get", &out)
	return out, err
}

func (c *Cart) RemoveLineItem(ctx context.Context, index int) error {
	return c.eval(ctx, "remove", nil, index)
}
