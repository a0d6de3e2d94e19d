package clock

import "testing"

func TestNextIsMonotone(t *testing.T) {
	c := New("client-a")
	prev := c.Next()
	for i := 0; i < 1000; i++ {
		next := c.Next()
		if !next.After(prev) {
			t.Fatalf("timestamp %v did not sort after %v", next, prev)
		}
		prev = next
	}
}

func TestCompareOrdersByClientIDOnTie(t *testing.T) {
	a := Timestamp{Tick: 5, ClientID: "a"}
	b := Timestamp{Tick: 5, ClientID: "b"}
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a < b, got %d", a.Compare(b))
	}
	if b.Compare(a) <= 0 {
		t.Fatalf("expected b > a, got %d", b.Compare(a))
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected a == a")
	}
}

func TestObserveAdvancesClock(t *testing.T) {
	c := New("client-a")
	future := Timestamp{Tick: c.Next().Tick + 1_000_000_000, ClientID: "other"}
	c.Observe(future)
	next := c.Next()
	if !next.After(future) {
		t.Fatalf("expected next timestamp %v to sort after observed %v", next, future)
	}
}
