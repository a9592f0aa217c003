package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults for Options zero values.
const (
	DefaultMaxEntryBytes   = 256 * 1024
	DefaultRetryAttempts   = 3
	DefaultRetryBaseDelay  = 100 * time.Millisecond
	DefaultRetentionWindow = 90 * 24 * time.Hour
)

// Options configures a Log. Zero values select the documented defaults.
type Options struct {
	Digest          string        // hash algorithm: "sha256" (default) or "sha512"
	RedactFields    []string      // sensitive field patterns
	RedactMarker    string        // replacement for matched values
	RedactMaxDepth  int           // sanitization recursion ceiling
	MaxEntryBytes   int           // candidates above this size are rejected
	RetryAttempts   int           // durable write attempts per append
	RetryBaseDelay  time.Duration // first backoff, doubles per attempt
	RetentionWindow time.Duration // archive-eligibility age
}

// Log is the audit trail facade: it normalizes raw events, commits them
// through the hash chain, and answers query, verification, proof, export,
// and retention requests against the same store.
//
// Thread-safe. Appends serialize through the chain; reads run concurrently
// against the store.
type Log struct {
	store Store
	chain *Chain

	mu        sync.RWMutex // guards the hot-reloadable settings below
	san       *Sanitizer
	retention time.Duration

	maxEntryBytes int
}

// New wires a Log over the given store. Configuration problems (unknown
// digest, invalid redaction pattern, unreachable store) fail here, at
// startup, never on the first append.
func New(ctx context.Context, store Store, opts Options) (*Log, error) {
	dg, err := resolveDigest(opts.Digest)
	if err != nil {
		return nil, err
	}
	san, err := NewSanitizer(opts.RedactFields, opts.RedactMarker, opts.RedactMaxDepth)
	if err != nil {
		return nil, &ConfigurationError{Field: "redact.fields", Reason: err.Error()}
	}

	retry := retryPolicy{attempts: opts.RetryAttempts, baseDelay: opts.RetryBaseDelay}
	if retry.attempts <= 0 {
		retry.attempts = DefaultRetryAttempts
	}
	if retry.baseDelay <= 0 {
		retry.baseDelay = DefaultRetryBaseDelay
	}

	chain, err := newChain(ctx, store, dg, retry)
	if err != nil {
		return nil, &ConfigurationError{Field: "storage", Reason: err.Error()}
	}

	l := &Log{
		store:         store,
		chain:         chain,
		san:           san,
		retention:     opts.RetentionWindow,
		maxEntryBytes: opts.MaxEntryBytes,
	}
	if l.retention <= 0 {
		l.retention = DefaultRetentionWindow
	}
	if l.maxEntryBytes <= 0 {
		l.maxEntryBytes = DefaultMaxEntryBytes
	}

	idx, head := chain.Head()
	slog.Info("audit log ready", "head_index", idx, "head_hash", head)
	return l, nil
}

// Receipt identifies a committed entry.
type Receipt struct {
	ID    string `json:"id"`
	Index int64  `json:"index"`
	Hash  string `json:"hash"`
}

// Append normalizes, validates, and commits one event. It is the only way
// entries enter the chain.
func (l *Log) Append(ctx context.Context, raw RawEvent) (Receipt, error) {
	e := normalizeEvent(raw, l.sanitizer())
	if err := validateCandidate(&e, l.maxEntryBytes); err != nil {
		return Receipt{}, err
	}
	committed, err := l.chain.Append(ctx, e)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ID: committed.ID, Index: committed.Index, Hash: committed.Hash}, nil
}

// validateCandidate rejects entries that cannot be hashed or exceed the size
// limit, before any chain state is touched.
func validateCandidate(e *Entry, maxBytes int) error {
	b, err := canonicalBytes(e)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("unserializable payload: %v", err)}
	}
	if maxBytes > 0 && len(b) > maxBytes {
		return &ValidationError{Reason: fmt.Sprintf("entry is %d bytes, limit is %d", len(b), maxBytes)}
	}
	return nil
}

// Query returns entries matching the filter, ordered by index.
func (l *Log) Query(ctx context.Context, f Filter) ([]Entry, error) {
	return l.store.Read(ctx, f)
}

// Count returns how many entries match the filter.
func (l *Log) Count(ctx context.Context, f Filter) (int64, error) {
	return l.store.Count(ctx, f)
}

// Tail returns the most recent n entries in chain order.
func (l *Log) Tail(ctx context.Context, n int) ([]Entry, error) {
	entries, err := l.store.Read(ctx, Filter{Descending: true, Limit: n})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Follow polls for entries committed after index `after`, invoking fn for
// each in chain order. Blocks until the context is cancelled. Pass -1 to
// start from the beginning.
func (l *Log) Follow(ctx context.Context, after int64, fn func(Entry)) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			entries, err := l.store.Read(ctx, Filter{MinIndex: after + 1})
			if err != nil {
				slog.Error("follow: reading entries", "error", err)
				continue
			}
			for _, e := range entries {
				fn(e)
				if e.Index > after {
					after = e.Index
				}
			}
		}
	}
}

// Head returns the last committed index (-1 when empty) and its hash.
func (l *Log) Head() (int64, string) {
	return l.chain.Head()
}

// Genesis returns the chain's anchor hash.
func (l *Log) Genesis() string {
	return l.chain.Genesis()
}

// RetentionWindow returns the configured archive-eligibility age.
func (l *Log) RetentionWindow() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.retention
}

// SetRetentionWindow replaces the retention window at runtime.
func (l *Log) SetRetentionWindow(window time.Duration) {
	if window < 0 {
		return
	}
	l.mu.Lock()
	l.retention = window
	l.mu.Unlock()
	slog.Info("retention window updated", "window", window)
}

// SetRedaction swaps the sanitization policy at runtime. Entries already
// committed are untouched; rewriting history is exactly what the chain
// forbids.
func (l *Log) SetRedaction(fields []string, marker string, maxDepth int) error {
	san, err := NewSanitizer(fields, marker, maxDepth)
	if err != nil {
		return fmt.Errorf("updating redaction policy: %w", err)
	}
	l.mu.Lock()
	l.san = san
	l.mu.Unlock()
	slog.Info("redaction policy updated", "patterns", len(fields))
	return nil
}

func (l *Log) sanitizer() *Sanitizer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.san
}

// Close releases the underlying store.
func (l *Log) Close() error {
	return l.store.Close()
}
