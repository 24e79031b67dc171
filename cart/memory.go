package cart

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Service. Adding an item that matches an existing
// line raises that line's quantity, as the storefront does.
type Memory struct {
	mu    sync.Mutex
	items []LineItem
	adds  int

	// Reject, if set, decides the outcome of every add before it is applied.
	Reject func(LineItem) (bool, error)
}

var _ Service = (*Memory)(nil)

// NewMemory returns a cart holding items.
func NewMemory(items ...LineItem) *Memory {
	m := &Memory{}
	for _, it := range items {
		m.items = append(m.items, clone(it))
	}
	return m
}

func clone(it LineItem) LineItem {
	it.Options = it.Options.Clone()
	return it
}

func (m *Memory) AddLineItem(ctx context.Context, item LineItem) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds++

	if m.Reject != nil {
		if ok, err := m.Reject(item); !ok || err != nil {
			return ok, err
		}
	}
	for i := range m.items {
		if m.items[i].Matches(item) {
			m.items[i].Quantity += item.Quantity
			return true, nil
		}
	}
	m.items = append(m.items, clone(item))
	return true, nil
}

func (m *Memory) GetCart(ctx context.Context) (Cart, error) {
	if err := ctx.Err(); err != nil {
		return Cart{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := Cart{Items: make([]LineItem, len(m.items))}
	for i, it := range m.items {
		c.Items[i] = clone(it)
	}
	return c, nil
}

func (m *Memory) RemoveLineItem(ctx context.Context, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.items) {
		return fmt.Errorf("cart: remove: index %d out of range", index)
	}
	m.items = append(m.items[:index], m.items[index+1:]...)
	return nil
}

// Adds reports how many times AddLineItem was called.
func (m *Memory) Adds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds
}
