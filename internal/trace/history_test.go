package trace

import (
	"testing"

	"github.com/multios/introspect/internal/testutil"
)

func TestHistoryAppend(t *testing.T) {
	h := NewHistory(0)
	h.Append(1, []Event{{Name: "open"}, {Name: "read"}})
	h.Append(1, []Event{{Name: "close"}})
	h.Append(2, []Event{{Name: "write"}})

	if diff := testutil.Diff(eventNames(h.Events(1)), []string{"open", "read", "close"}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(eventNames(h.Events(2)), []string{"write"}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if got := h.Events(3); len(got) != 0 {
		t.Fatalf("expected an empty history for an unknown process, got %d events", len(got))
	}
}

func TestHistoryEviction(t *testing.T) {
	h := NewHistory(4)
	h.Append(1, []Event{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}})
	// Overflowing evicts the oldest half of the window.
	h.Append(1, []Event{{Name: "e"}})
	if diff := testutil.Diff(eventNames(h.Events(1)), []string{"c", "d", "e"}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	// A batch larger than the window keeps only its tail.
	h.Append(1, []Event{{Name: "f"}, {Name: "g"}, {Name: "h"}, {Name: "i"}, {Name: "j"}, {Name: "k"}})
	events := h.Events(1)
	if len(events) > 4 {
		t.Fatalf("expected at most 4 retained events, got %d", len(events))
	}
	if events[len(events)-1].Name != "k" {
		t.Fatalf("expected the newest event to survive, got %q", events[len(events)-1].Name)
	}
}

func TestHistoryCopyOnRead(t *testing.T) {
	h := NewHistory(0)
	h.Append(1, []Event{{Name: "open"}})
	events := h.Events(1)
	events[0].Name = "mutated"
	if got := h.Events(1)[0].Name; got != "open" {
		t.Fatalf("expected the stored history to be immutable, got %q", got)
	}
}
