package audit

import (
	"encoding/json"
	"time"
)

// TimeLayout is the canonical timestamp encoding for all entries. The width
// is fixed (nanoseconds zero-padded, literal Z) so the same instant always
// renders the same bytes and lexicographic order equals chronological order.
// Stores and filters rely on both properties.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry status values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is a single committed audit record.
//
// The hash chain links entries: Hash covers every other field including
// PrevHash, so modifying any persisted field breaks the chain from that
// entry forward.
type Entry struct {
	ID           string         `json:"id"`
	Index        int64          `json:"index"`
	Timestamp    string         `json:"ts"`
	UserID       string         `json:"user_id,omitempty"`
	Username     string         `json:"username,omitempty"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Method       string         `json:"method,omitempty"`
	Path         string         `json:"path,omitempty"`
	Query        string         `json:"query,omitempty"`
	Body         any            `json:"body,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Status       string         `json:"status"`
	StatusCode   int            `json:"status_code,omitempty"`
	DurationMs   int64          `json:"duration_ms,omitempty"`
	ErrorMessage string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	PrevHash     string         `json:"prev_hash"`
	Hash         string         `json:"hash"`
}

// preimage mirrors Entry without the Hash field. Hashing marshals this
// struct, which pins the canonical byte encoding: struct fields are emitted
// in declaration order and encoding/json sorts map keys, so the same logical
// entry produces identical bytes on any platform or process. Body and
// Metadata are JSON round-tripped during normalization, which keeps their
// in-memory form identical to what a store reload yields.
type preimage struct {
	ID           string         `json:"id"`
	Index        int64          `json:"index"`
	Timestamp    string         `json:"ts"`
	UserID       string         `json:"user_id,omitempty"`
	Username     string         `json:"username,omitempty"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Method       string         `json:"method,omitempty"`
	Path         string         `json:"path,omitempty"`
	Query        string         `json:"query,omitempty"`
	Body         any            `json:"body,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Status       string         `json:"status"`
	StatusCode   int            `json:"status_code,omitempty"`
	DurationMs   int64          `json:"duration_ms,omitempty"`
	ErrorMessage string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	PrevHash     string         `json:"prev_hash"`
}

// canonicalBytes serializes every hashed field of an entry.
func canonicalBytes(e *Entry) ([]byte, error) {
	return json.Marshal(preimage{
		ID:           e.ID,
		Index:        e.Index,
		Timestamp:    e.Timestamp,
		UserID:       e.UserID,
		Username:     e.Username,
		Action:       e.Action,
		Resource:     e.Resource,
		ResourceID:   e.ResourceID,
		Method:       e.Method,
		Path:         e.Path,
		Query:        e.Query,
		Body:         e.Body,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Status:       e.Status,
		StatusCode:   e.StatusCode,
		DurationMs:   e.DurationMs,
		ErrorMessage: e.ErrorMessage,
		Metadata:     e.Metadata,
		PrevHash:     e.PrevHash,
	})
}

// FormatTime renders t in the canonical layout. Always UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a canonical timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}
