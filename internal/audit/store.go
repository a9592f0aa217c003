package audit

import (
	"context"
	"encoding/json"
	"sort"
)

// Store is the append-only persistence contract for one chain.
//
// Implementations must enforce immutability at the storage layer itself
// (strict append-only file modes, UPDATE/DELETE rejection in the schema)
// rather than trusting callers, and each Write must be atomic so a
// concurrent reader never observes a partial entry. Reads return entries
// ordered by Index ascending unless the filter asks for descending.
type Store interface {
	// Write durably persists one committed entry.
	Write(ctx context.Context, e *Entry) error

	// Read returns the entries matching the filter.
	Read(ctx context.Context, f Filter) ([]Entry, error)

	// ReadAll returns the full chain in index order.
	ReadAll(ctx context.Context) ([]Entry, error)

	// Count returns how many entries match the filter's match fields.
	// Limit, Offset, and Descending are ignored.
	Count(ctx context.Context, f Filter) (int64, error)

	// Last returns the highest-index entry, or nil for an empty store.
	Last(ctx context.Context) (*Entry, error)

	// Close releases backend resources.
	Close() error
}

// Filter selects entries. Zero values mean "no constraint". From and To are
// canonical timestamps (TimeLayout), inclusive on both ends; the fixed-width
// encoding makes string comparison equivalent to time comparison.
type Filter struct {
	Actor    string // matches UserID or Username
	Action   string
	Resource string
	Status   string
	IP       string
	From     string
	To       string
	MinIndex int64 // entries with Index >= MinIndex; 0 selects all

	Limit      int
	Offset     int
	Descending bool
}

// Matches reports whether an entry satisfies the filter's match fields.
func (f Filter) Matches(e *Entry) bool {
	if f.Actor != "" && e.UserID != f.Actor && e.Username != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.IP != "" && e.IPAddress != f.IP {
		return false
	}
	if f.From != "" && e.Timestamp < f.From {
		return false
	}
	if f.To != "" && e.Timestamp > f.To {
		return false
	}
	return e.Index >= f.MinIndex
}

// ApplyFilter evaluates a filter in memory: match, order, then offset and
// limit. Backends without a query engine of their own share this.
func ApplyFilter(entries []Entry, f Filter) []Entry {
	matched := make([]Entry, 0, len(entries))
	for i := range entries {
		if f.Matches(&entries[i]) {
			matched = append(matched, entries[i])
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Index < matched[j].Index })
	if f.Descending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched
}

// cloneEntry deep-copies an entry through its JSON form so callers never
// alias a store's internal Body or Metadata values.
func cloneEntry(e *Entry) (*Entry, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var out Entry
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
