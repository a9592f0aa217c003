package audit

import (
	"context"
	"fmt"
	"log/slog"
)

// VerifyMode selects how much of a broken chain to report.
type VerifyMode string

const (
	// VerifyFast stops at the first failure.
	VerifyFast VerifyMode = "fast"
	// VerifyFull scans the whole chain and reports every failing index,
	// for forensic analysis once tampering is already known.
	VerifyFull VerifyMode = "full"
)

// Failure pinpoints one broken entry.
type Failure struct {
	Index    int64  `json:"index"`
	Reason   string `json:"reason"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// Violation converts a failure into its typed error form for callers that
// propagate verification results as errors.
func (f Failure) Violation() *IntegrityViolation {
	return &IntegrityViolation{Index: f.Index, Reason: f.Reason, Expected: f.Expected, Actual: f.Actual}
}

// VerifyResult is the outcome of an integrity scan. FirstFailure is -1 when
// the chain is intact.
type VerifyResult struct {
	OK           bool      `json:"ok"`
	Checked      int       `json:"entries_checked"`
	FirstFailure int64     `json:"first_failure"`
	Failures     []Failure `json:"failures,omitempty"`
}

// Verify replays the persisted chain and recomputes every hash. It reads
// exclusively from the store: the point is to catch divergence between
// memory and durable truth, so the in-memory head is never consulted.
// A broken chain is reported in the result, not as an error; the error path
// is for infrastructure failures only.
func (l *Log) Verify(ctx context.Context, mode VerifyMode) (VerifyResult, error) {
	entries, err := l.store.ReadAll(ctx)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("reading entries for verification: %w", err)
	}
	res := verifyEntries(entries, l.chain.dg, mode)
	for _, f := range res.Failures {
		slog.Error("audit chain integrity violation",
			"index", f.Index, "reason", f.Reason, "expected", f.Expected, "actual", f.Actual)
	}
	return res, nil
}

// verifyEntries checks index continuity, linkage, and recomputed hashes
// against the genesis anchor.
func verifyEntries(entries []Entry, dg digest, mode VerifyMode) VerifyResult {
	res := VerifyResult{OK: true, FirstFailure: -1}

	// fail records a failure and reports whether scanning should stop.
	fail := func(f Failure) bool {
		res.OK = false
		if res.FirstFailure == -1 {
			res.FirstFailure = f.Index
		}
		res.Failures = append(res.Failures, f)
		return mode != VerifyFull
	}

	running := dg.genesis()
	for i := range entries {
		e := &entries[i]
		res.Checked++

		if e.Index != int64(i) {
			if fail(Failure{
				Index:  int64(i),
				Reason: fmt.Sprintf("index gap: position %d holds index %d", i, e.Index),
			}) {
				return res
			}
		}
		if e.PrevHash != running {
			if fail(Failure{
				Index:    e.Index,
				Reason:   "broken link to previous entry",
				Expected: running,
				Actual:   e.PrevHash,
			}) {
				return res
			}
		}
		expected, err := computeEntryHash(e, dg)
		switch {
		case err != nil:
			if fail(Failure{
				Index:  e.Index,
				Reason: fmt.Sprintf("entry cannot be rehashed: %v", err),
			}) {
				return res
			}
		case expected != e.Hash:
			if fail(Failure{
				Index:    e.Index,
				Reason:   "stored hash does not match entry contents",
				Expected: expected,
				Actual:   e.Hash,
			}) {
				return res
			}
		}

		// Advance over the stored hash so one tampered entry yields one
		// failure instead of cascading into every later link check.
		running = e.Hash
	}
	return res
}
