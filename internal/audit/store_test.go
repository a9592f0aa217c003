package audit

import (
	"context"
	"testing"
)

func TestFilter_Matches(t *testing.T) {
	e := Entry{
		Index:     5,
		Timestamp: "2026-08-22T10:00:00.000000000Z",
		UserID:    "u1",
		Username:  "alice",
		Action:    "update",
		Resource:  "orders",
		Status:    StatusSuccess,
		IPAddress: "10.0.0.9",
	}

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty filter", Filter{}, true},
		{"actor by user id", Filter{Actor: "u1"}, true},
		{"actor by username", Filter{Actor: "alice"}, true},
		{"actor mismatch", Filter{Actor: "bob"}, false},
		{"action match", Filter{Action: "update"}, true},
		{"action mismatch", Filter{Action: "delete"}, false},
		{"resource match", Filter{Resource: "orders"}, true},
		{"resource mismatch", Filter{Resource: "users"}, false},
		{"status match", Filter{Status: StatusSuccess}, true},
		{"status mismatch", Filter{Status: StatusFailure}, false},
		{"ip match", Filter{IP: "10.0.0.9"}, true},
		{"ip mismatch", Filter{IP: "10.0.0.1"}, false},
		{"from equal is inclusive", Filter{From: "2026-08-22T10:00:00.000000000Z"}, true},
		{"from after entry", Filter{From: "2026-08-22T10:00:00.000000001Z"}, false},
		{"to equal is inclusive", Filter{To: "2026-08-22T10:00:00.000000000Z"}, true},
		{"to before entry", Filter{To: "2026-08-22T09:59:59.999999999Z"}, false},
		{"min index at entry", Filter{MinIndex: 5}, true},
		{"min index beyond entry", Filter{MinIndex: 6}, false},
		{"all fields agree", Filter{Actor: "alice", Action: "update", Status: StatusSuccess}, true},
		{"one field disagrees", Filter{Actor: "alice", Action: "delete"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Matches(&e); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyFilter_OrderAndWindow(t *testing.T) {
	// Handed in out of order; results must come back sorted by index.
	entries := []Entry{
		{Index: 3, Action: "read"},
		{Index: 0, Action: "create"},
		{Index: 4, Action: "read"},
		{Index: 1, Action: "read"},
		{Index: 2, Action: "delete"},
	}

	got := ApplyFilter(entries, Filter{})
	for i := range got {
		if got[i].Index != int64(i) {
			t.Fatalf("position %d holds index %d", i, got[i].Index)
		}
	}

	windowed := ApplyFilter(entries, Filter{Offset: 1, Limit: 2})
	if len(windowed) != 2 || windowed[0].Index != 1 || windowed[1].Index != 2 {
		t.Errorf("offset 1 limit 2 should yield indexes [1 2], got %+v", windowed)
	}

	desc := ApplyFilter(entries, Filter{Descending: true, Limit: 2})
	if len(desc) != 2 || desc[0].Index != 4 || desc[1].Index != 3 {
		t.Errorf("descending limit 2 should yield indexes [4 3], got %+v", desc)
	}

	if out := ApplyFilter(entries, Filter{Offset: 10}); len(out) != 0 {
		t.Errorf("offset past the end should yield nothing, got %+v", out)
	}

	matched := ApplyFilter(entries, Filter{Action: "read", Descending: true})
	if len(matched) != 3 || matched[0].Index != 4 {
		t.Errorf("match then order: want 3 reads newest first, got %+v", matched)
	}
}

func TestMemStore_CopiesInAndOut(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	e := Entry{
		ID:        "a",
		Index:     0,
		Timestamp: "2026-08-22T10:00:00.000000000Z",
		Body:      map[string]any{"state": "original"},
	}
	if err := store.Write(ctx, &e); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Mutating the caller's entry after the write must not reach the store.
	e.Body.(map[string]any)["state"] = "mutated by writer"

	first, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got := first[0].Body.(map[string]any)["state"]; got != "original" {
		t.Fatalf("writer mutation leaked into the store: %v", got)
	}

	// Mutating a read result must not reach the store either.
	first[0].Body.(map[string]any)["state"] = "mutated by reader"

	second, _ := store.ReadAll(ctx)
	if got := second[0].Body.(map[string]any)["state"]; got != "original" {
		t.Errorf("reader mutation leaked into the store: %v", got)
	}
}

func TestMemStore_Last(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	last, err := store.Last(ctx)
	if err != nil {
		t.Fatalf("Last on empty store: %v", err)
	}
	if last != nil {
		t.Fatalf("empty store should have no last entry, got %+v", last)
	}

	plantEntry(t, store, 0, 0)
	plantEntry(t, store, 1, 0)

	last, err = store.Last(ctx)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if last.Index != 1 {
		t.Errorf("want index 1, got %d", last.Index)
	}
}

func TestMemStore_CountIgnoresWindow(t *testing.T) {
	store := NewMemStore()
	for i := int64(0); i < 4; i++ {
		plantEntry(t, store, i, 0)
	}

	n, err := store.Count(context.Background(), Filter{Limit: 1, Offset: 3})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Errorf("count should ignore limit and offset, got %d", n)
	}
}
