// Package cart assembles line items from option state and submits them to
// the storefront's cart service.
package cart

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

var (
	// ErrAddFailed is returned when the service reports failure without an
	// error of its own.
	ErrAddFailed = errors.New("cart: failed to add product to cart")
	// ErrNotInCart is returned by Remove when no line matches the item.
	ErrNotInCart = errors.New("cart: no matching line in cart")
)

// Options maps option name to the chosen value.
type Options map[string]string

// Equal reports whether o and other have the same key set and the same
// value for every key.
func (o Options) Equal(other Options) bool {
	return maps.Equal(o, other)
}

// Clone returns an independent copy.
func (o Options) Clone() Options { return maps.Clone(o) }

// LineItem is one product purchase: the payload {id, quantity, options}.
type LineItem struct {
	ID       int64   `json:"id"`
	Quantity int     `json:"quantity"`
	Options  Options `json:"options"`
}

// Matches reports whether l is the same product with the same options as
// other, ignoring quantity.
func (l LineItem) Matches(other LineItem) bool {
	return l.ID == other.ID && l.Options.Equal(other.Options)
}

// Cart is the service's view of the cart.
type Cart struct {
	Items []LineItem `json:"items"`
}

// Service is the storefront cart. AddLineItem reports the service's
// success flag and, on failure, the error it supplied if any.
type Service interface {
	AddLineItem(ctx context.Context, item LineItem) (bool, error)
	GetCart(ctx context.Context) (Cart, error)
	RemoveLineItem(ctx context.Context, index int) error
}

// ValidationError is a required option left blank at submit time.
type ValidationError struct {
	Option  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cart: %s is required: %s", e.Option, e.Message)
}
