package cart

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRemoveDelay separates the remove and the re-add of a decrement.
// The storefront loses the re-add when both land in the same tick.
const DefaultRemoveDelay = 100 * time.Millisecond

// Remover takes a quantity back out of the cart.
type Remover struct {
	svc   Service
	delay time.Duration
	log   *slog.Logger
}

// NewRemover returns a Remover. A zero delay uses DefaultRemoveDelay.
func NewRemover(svc Service, delay time.Duration, logger *slog.Logger) *Remover {
	if delay <= 0 {
		delay = DefaultRemoveDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remover{svc: svc, delay: delay, log: logger}
}

// Remove takes item.Quantity off the first cart line that matches item.
// A line holding more is removed and re-added with the remainder after the
// delay; otherwise the line is removed. Blocks; run it off the loop.
func (r *Remover) Remove(ctx context.Context, item LineItem) (LineItem, error) {
	c, err := r.svc.GetCart(ctx)
	if err != nil {
		return LineItem{}, fmt.Errorf("cart: remove: get cart: %w", err)
	}
	for i, line := range c.Items {
		if !line.Matches(item) {
			continue
		}
		if err := r.svc.RemoveLineItem(ctx, i); err != nil {
			return LineItem{}, fmt.Errorf("cart: remove line %d: %w", i, err)
		}
		if line.Quantity <= item.Quantity {
			r.log.Info("cart: line removed", "product", item.ID, "index", i)
			return LineItem{ID: line.ID, Quantity: 0, Options: line.Options}, nil
		}

		line.Quantity -= item.Quantity
		t := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return LineItem{}, fmt.Errorf("cart: remove: re-add of line %d: %w", i, ctx.Err())
		case <-t.C:
		}
		ok, err := r.svc.AddLineItem(ctx, line)
		if !ok && err == nil {
			err = ErrAddFailed
		}
		if ok {
			err = nil
		}
		if err != nil {
			return LineItem{}, fmt.Errorf("cart: remove: re-add of line %d: %w", i, err)
		}
		r.log.Info("cart: line decremented", "product", item.ID, "index", i, "quantity", line.Quantity)
		return line, nil
	}
	return LineItem{}, fmt.Errorf("%w: product %d", ErrNotInCart, item.ID)
}
