package util

import "testing"

func TestNewIDSortsInCreationOrder(t *testing.T) {
	prev := NewID()
	for i := 0; i < 1000; i++ {
		next := NewID()
		if next <= prev {
			t.Fatalf("id %d not increasing: %q then %q", i, prev, next)
		}
		prev = next
	}
}
