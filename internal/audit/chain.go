// Package audit implements a tamper-evident, hash-chained audit trail.
//
// Every reportable event is normalized, sanitized, and committed as an Entry
// whose hash covers all of its fields plus the previous entry's hash. The
// result is an append-only chain where modifying, inserting, or removing any
// persisted entry breaks every hash from that point forward. Entries persist
// through a pluggable append-only Store; the chain logic itself lives only
// here, never in a backend.
package audit

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// digest is a resolved hash algorithm. Hashes render as "<name>:<hex>" so a
// persisted chain records which algorithm produced it.
type digest struct {
	name string
	new  func() hash.Hash
}

// resolveDigest maps a configured algorithm name to a digest. An unknown
// name is a ConfigurationError: the chain refuses to start rather than
// hashing with something other than what the operator asked for.
func resolveDigest(name string) (digest, error) {
	switch strings.ToLower(name) {
	case "", "sha256":
		return digest{name: "sha256", new: sha256.New}, nil
	case "sha512":
		return digest{name: "sha512", new: sha512.New}, nil
	default:
		return digest{}, &ConfigurationError{
			Field:  "digest",
			Reason: fmt.Sprintf("unsupported algorithm %q", name),
		}
	}
}

// sum digests data and renders the prefixed hash string.
func (d digest) sum(data []byte) string {
	h := d.new()
	h.Write(data)
	return d.name + ":" + hex.EncodeToString(h.Sum(nil))
}

// genesisSentinel seeds the well-known hash that anchors every chain.
const genesisSentinel = "chainlog/genesis/v1"

// genesis returns the fixed PrevHash for the first entry of a chain.
func (d digest) genesis() string {
	return d.sum([]byte(genesisSentinel))
}

// computeEntryHash digests the canonical serialization of every entry field
// except Hash itself.
func computeEntryHash(e *Entry, d digest) (string, error) {
	b, err := canonicalBytes(e)
	if err != nil {
		return "", fmt.Errorf("canonical serialization: %w", err)
	}
	return d.sum(b), nil
}

// retryPolicy bounds how hard the chain tries to persist one entry before
// surfacing a PersistenceError.
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
}

// Chain owns the single authoritative head of one audit chain and serializes
// every append to it. PrevHash must always equal the most recently committed
// hash; uncoordinated concurrent writers would fork the chain, so all
// appends run under one mutex.
//
// The in-memory head is only a cache of durable state: it advances after a
// write succeeds and is reloaded from the store's last entry on startup,
// never trusted across restarts. A crash between hash computation and the
// durable write therefore cannot desynchronize the chain.
type Chain struct {
	mu    sync.Mutex
	store Store
	dg    digest
	retry retryPolicy

	headHash  string
	headIndex int64 // -1 until the first entry commits
	headTS    string
}

// newChain recovers the chain head from the last stored entry, or anchors a
// fresh chain at the genesis hash when the store is empty.
func newChain(ctx context.Context, store Store, dg digest, retry retryPolicy) (*Chain, error) {
	c := &Chain{
		store:     store,
		dg:        dg,
		retry:     retry,
		headHash:  dg.genesis(),
		headIndex: -1,
	}
	last, err := store.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("recovering chain head: %w", err)
	}
	if last != nil {
		c.headHash = last.Hash
		c.headIndex = last.Index
		c.headTS = last.Timestamp
	}
	return c, nil
}

// Append assigns the candidate its chain position, links and hashes it,
// persists it durably, and only then advances the head. A failed write
// leaves the head untouched so the same position is reused by the next
// attempt; no gap is ever created.
func (c *Chain) Append(ctx context.Context, e Entry) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.Index = c.headIndex + 1
	e.PrevHash = c.headHash
	e.Timestamp = nextTimestamp(c.headTS)

	h, err := computeEntryHash(&e, c.dg)
	if err != nil {
		return Entry{}, &ValidationError{Reason: err.Error()}
	}
	e.Hash = h

	if err := c.persist(ctx, &e); err != nil {
		return Entry{}, err
	}

	c.headHash = e.Hash
	c.headIndex = e.Index
	c.headTS = e.Timestamp
	return e, nil
}

// persist writes one entry, retrying with bounded exponential backoff so a
// briefly unavailable backend doesn't lose evidence, while a dead one fails
// fast instead of wedging the writer.
func (c *Chain) persist(ctx context.Context, e *Entry) error {
	var lastErr error
	for attempt := 1; attempt <= c.retry.attempts; attempt++ {
		lastErr = c.store.Write(ctx, e)
		if lastErr == nil {
			return nil
		}
		if attempt == c.retry.attempts {
			break
		}
		backoff := c.retry.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
		slog.Warn("audit write failed, retrying",
			"index", e.Index, "attempt", attempt, "backoff", backoff, "error", lastErr)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return &PersistenceError{Op: "write", Attempts: attempt, Err: ctx.Err()}
		}
	}
	return &PersistenceError{Op: "write", Attempts: c.retry.attempts, Err: lastErr}
}

// Head returns the committed chain position: the last index (-1 when the
// chain is empty) and its hash (the genesis hash when empty).
func (c *Chain) Head() (int64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headIndex, c.headHash
}

// Genesis returns the well-known anchor hash for this chain's digest.
func (c *Chain) Genesis() string {
	return c.dg.genesis()
}

// nextTimestamp formats the current instant, clamped so timestamps never
// decrease across the chain even if the wall clock steps backward.
func nextTimestamp(last string) string {
	ts := FormatTime(time.Now())
	if last != "" && ts < last {
		return last
	}
	return ts
}
