// Package idgen generates the identifiers of engine sessions and journal
// events. Constructors take a Generator so tests can swap in Sequence.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings. Time-sortable, so
// journal lines order by id.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID of gen ("ses_", "evt_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a Generator of "1", "2", ... Safe for concurrent use.
func Sequence() Generator {
	var n atomic.Uint64
	return func() string {
		return strconv.FormatUint(n.Add(1), 10)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}
