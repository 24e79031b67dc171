package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("UUIDv7: bad format %q", id)
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble %q, want 7", id[14])
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("UUIDv7: %q not after %q", id, prev)
		}
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("ses_", UUIDv7())()
	if !strings.HasPrefix(id, "ses_") {
		t.Fatalf("Prefixed: got %q, want prefix ses_", id)
	}
	if _, err := Parse(strings.TrimPrefix(id, "ses_")); err != nil {
		t.Fatalf("Prefixed: inner id: %v", err)
	}
}

func TestSequence_Concurrent(t *testing.T) {
	gen := Sequence()
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen()
				mu.Lock()
				if seen[id] {
					t.Errorf("Sequence: duplicate %q", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 800 {
		t.Fatalf("Sequence: got %d ids, want 800", len(seen))
	}
	if !seen["1"] || !seen["800"] {
		t.Fatal("Sequence: range not 1..800")
	}
}

func TestParse(t *testing.T) {
	id := New()
	got, err := Parse(id)
	if err != nil || got != id {
		t.Fatalf("Parse(%q): got %q, %v", id, got, err)
	}
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("Parse: expected error for invalid UUID")
	}
}
