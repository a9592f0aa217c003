package audit

import (
	"context"
	"testing"
)

// tamperedEntries builds a valid chain of n entries, then applies modify to
// the persisted slice before verification.
func tamperedEntries(t *testing.T, n int, modify func([]Entry)) ([]Entry, digest) {
	t.Helper()
	l, store := newTestLog(t, Options{})
	appendN(t, l, n)
	entries, err := store.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if modify != nil {
		modify(entries)
	}
	return entries, l.chain.dg
}

func TestVerify_EmptyChain(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	res, err := l.Verify(context.Background(), VerifyFast)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.OK || res.Checked != 0 || res.FirstFailure != -1 {
		t.Errorf("empty chain should verify clean, got %+v", res)
	}
}

func TestVerify_IntactChain(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	appendN(t, l, 10)

	res, err := l.Verify(context.Background(), VerifyFull)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.OK {
		t.Errorf("untampered chain should verify, failures: %+v", res.Failures)
	}
	if res.Checked != 10 {
		t.Errorf("want 10 entries checked, got %d", res.Checked)
	}
	if res.FirstFailure != -1 {
		t.Errorf("intact chain should report FirstFailure -1, got %d", res.FirstFailure)
	}
}

func TestVerify_DetectsTamperedField(t *testing.T) {
	// Each case mutates one persisted field of entry 1; verification must
	// pinpoint exactly that entry.
	tests := []struct {
		name   string
		modify func([]Entry)
	}{
		{"action", func(es []Entry) { es[1].Action = "delete" }},
		{"user_id", func(es []Entry) { es[1].UserID = "mallory" }},
		{"timestamp", func(es []Entry) { es[1].Timestamp = "2020-01-01T00:00:00.000000000Z" }},
		{"status", func(es []Entry) { es[1].Status = StatusFailure }},
		{"body", func(es []Entry) { es[1].Body = map[string]any{"injected": true} }},
		{"metadata", func(es []Entry) { es[1].Metadata = map[string]any{"x": "y"} }},
		{"path", func(es []Entry) { es[1].Path = "/api/other" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, dg := tamperedEntries(t, 3, tt.modify)
			res := verifyEntries(entries, dg, VerifyFast)
			if res.OK {
				t.Fatal("tampered chain should not verify")
			}
			if res.FirstFailure != 1 {
				t.Errorf("want first failure at index 1, got %d", res.FirstFailure)
			}
			if len(res.Failures) != 1 {
				t.Errorf("fast mode should stop at the first failure, got %d", len(res.Failures))
			}
		})
	}
}

func TestVerify_FullModeReportsAllFailures(t *testing.T) {
	entries, dg := tamperedEntries(t, 5, func(es []Entry) {
		es[1].Action = "tampered"
		es[3].UserID = "mallory"
	})

	res := verifyEntries(entries, dg, VerifyFull)
	if res.OK {
		t.Fatal("tampered chain should not verify")
	}
	if res.FirstFailure != 1 {
		t.Errorf("want first failure at 1, got %d", res.FirstFailure)
	}
	var indexes []int64
	for _, f := range res.Failures {
		indexes = append(indexes, f.Index)
	}
	if len(indexes) != 2 || indexes[0] != 1 || indexes[1] != 3 {
		t.Errorf("want failures at [1 3], got %v", indexes)
	}
	if res.Checked != 5 {
		t.Errorf("full mode should scan the whole chain, checked %d", res.Checked)
	}
}

func TestVerify_DetectsBrokenLink(t *testing.T) {
	entries, dg := tamperedEntries(t, 3, func(es []Entry) {
		es[2].PrevHash = "sha256:0000"
	})

	res := verifyEntries(entries, dg, VerifyFull)
	if res.OK {
		t.Fatal("broken link should not verify")
	}
	if res.FirstFailure != 2 {
		t.Errorf("want first failure at 2, got %d", res.FirstFailure)
	}
}

func TestVerify_DetectsIndexGap(t *testing.T) {
	entries, dg := tamperedEntries(t, 3, nil)
	// Remove the middle entry, as if a row vanished from the store.
	entries = append(entries[:1], entries[2:]...)

	res := verifyEntries(entries, dg, VerifyFast)
	if res.OK {
		t.Fatal("a chain with a removed entry should not verify")
	}
	if res.FirstFailure != 1 {
		t.Errorf("want first failure at position 1, got %d", res.FirstFailure)
	}
}

func TestVerify_DetectsTamperedGenesisLink(t *testing.T) {
	entries, dg := tamperedEntries(t, 2, func(es []Entry) {
		es[0].PrevHash = "sha256:not-genesis"
	})

	res := verifyEntries(entries, dg, VerifyFast)
	if res.OK {
		t.Fatal("first entry must link to the genesis hash")
	}
	if res.FirstFailure != 0 {
		t.Errorf("want first failure at 0, got %d", res.FirstFailure)
	}
}

func TestVerify_TamperedHashBreaksFollowingLink(t *testing.T) {
	entries, dg := tamperedEntries(t, 3, func(es []Entry) {
		es[1].Hash = "sha256:deadbeef"
	})

	res := verifyEntries(entries, dg, VerifyFull)
	if res.OK {
		t.Fatal("tampered hash should not verify")
	}
	// Entry 1 fails its own recomputation; entry 2's stored PrevHash no
	// longer matches the (tampered) stored hash of entry 1.
	if len(res.Failures) != 2 {
		t.Fatalf("want 2 failures, got %+v", res.Failures)
	}
	if res.Failures[0].Index != 1 || res.Failures[1].Index != 2 {
		t.Errorf("want failures at [1 2], got %+v", res.Failures)
	}
}

func TestFailure_Violation(t *testing.T) {
	f := Failure{Index: 4, Reason: "stored hash does not match entry contents", Expected: "a", Actual: "b"}
	v := f.Violation()
	if v.Index != 4 || v.Expected != "a" || v.Actual != "b" {
		t.Errorf("violation should carry the failure details, got %+v", v)
	}
	if v.Error() == "" {
		t.Error("violation should render an error message")
	}
}
