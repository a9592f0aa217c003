package audit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Default sanitization policy.
var DefaultRedactFields = []string{"password", "token", "secret", "apiKey", "creditCard"}

const (
	DefaultRedactMarker = "[REDACTED]"
	DefaultRedactDepth  = 16
)

// Sanitizer recursively redacts sensitive fields from payloads and metadata
// before they are hashed or stored.
//
// Field patterns are glob expressions matched case-insensitively against map
// keys and compiled once at construction, so appends pay only a map walk.
// A matched value is replaced with the marker wherever it appears, including
// inside nested objects and arrays. Recursion is depth bounded: a subtree at
// the ceiling is replaced wholesale by the marker, so a pathological payload
// degrades to an opaque redaction instead of stalling the append.
type Sanitizer struct {
	globs    []glob.Glob
	marker   string
	maxDepth int
}

// NewSanitizer compiles the field patterns. An invalid pattern fails
// construction so bad configuration surfaces at startup, not on the first
// matching append. Zero values select the defaults.
func NewSanitizer(fields []string, marker string, maxDepth int) (*Sanitizer, error) {
	if len(fields) == 0 {
		fields = DefaultRedactFields
	}
	if marker == "" {
		marker = DefaultRedactMarker
	}
	if maxDepth <= 0 {
		maxDepth = DefaultRedactDepth
	}
	s := &Sanitizer{marker: marker, maxDepth: maxDepth}
	for _, f := range fields {
		g, err := glob.Compile(strings.ToLower(f))
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", f, err)
		}
		s.globs = append(s.globs, g)
	}
	return s, nil
}

// Sanitize returns a redacted deep copy of v. The value is first round
// tripped through JSON so what the hash sees is exactly what a store reload
// produces (numbers decode as float64 both times). A value that cannot be
// serialized is returned unchanged for validation to reject.
func (s *Sanitizer) Sanitize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return v
	}
	return s.walk(decoded, 0)
}

// SanitizeMap is Sanitize for metadata bags, preserving the map type.
func (s *Sanitizer) SanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	if mm, ok := s.Sanitize(m).(map[string]any); ok {
		return mm
	}
	return m
}

func (s *Sanitizer) walk(v any, depth int) any {
	if depth >= s.maxDepth {
		return s.marker
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if s.matches(k) {
				out[k] = s.marker
				continue
			}
			out[k] = s.walk(child, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = s.walk(child, depth+1)
		}
		return out
	default:
		return v
	}
}

func (s *Sanitizer) matches(key string) bool {
	lk := strings.ToLower(key)
	for _, g := range s.globs {
		if g.Match(lk) {
			return true
		}
	}
	return false
}
