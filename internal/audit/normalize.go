package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawEvent is a reportable event before normalization: whatever the calling
// framework knows about an action, in whatever shape it has it. Every field
// is optional; the normalizer fills gaps instead of rejecting, because an
// imperfect record beats dropped evidence.
type RawEvent struct {
	UserID   string
	Username string

	// Action is an explicit semantic verb. When empty, the action is
	// derived from Method and Path.
	Action     string
	Resource   string
	ResourceID string

	Method    string
	Path      string
	Query     string
	Body      any
	IPAddress string
	UserAgent string

	Status     string
	StatusCode int
	Duration   time.Duration
	Error      string

	Metadata map[string]any
}

// verbByMethod maps HTTP methods to semantic actions.
var verbByMethod = map[string]string{
	"GET":    "read",
	"POST":   "create",
	"PUT":    "update",
	"PATCH":  "update",
	"DELETE": "delete",
}

// normalizeEvent builds an entry candidate: identity, derived action and
// resource, sanitized payloads, and outcome. Index, PrevHash, Timestamp, and
// Hash stay empty; the chain assigns them at commit. Never fails.
func normalizeEvent(raw RawEvent, san *Sanitizer) Entry {
	e := Entry{
		ID:           uuid.NewString(),
		UserID:       raw.UserID,
		Username:     raw.Username,
		Action:       deriveAction(raw),
		Resource:     raw.Resource,
		ResourceID:   raw.ResourceID,
		Method:       strings.ToUpper(raw.Method),
		Path:         raw.Path,
		Query:        raw.Query,
		IPAddress:    raw.IPAddress,
		UserAgent:    raw.UserAgent,
		Status:       deriveStatus(raw),
		StatusCode:   raw.StatusCode,
		DurationMs:   raw.Duration.Milliseconds(),
		ErrorMessage: raw.Error,
	}

	if e.Resource == "" {
		res, rid := deriveResource(raw.Path)
		e.Resource = res
		if e.ResourceID == "" {
			e.ResourceID = rid
		}
	}

	e.Body = san.Sanitize(raw.Body)
	e.Metadata = san.SanitizeMap(raw.Metadata)
	return e
}

// deriveAction prefers the explicit verb, then well-known path substrings,
// then the HTTP method mapping.
func deriveAction(raw RawEvent) string {
	if raw.Action != "" {
		return raw.Action
	}
	lower := strings.ToLower(raw.Path)
	if strings.Contains(lower, "/login") {
		return "login"
	}
	if strings.Contains(lower, "/logout") {
		return "logout"
	}
	if v, ok := verbByMethod[strings.ToUpper(raw.Method)]; ok {
		return v
	}
	return "unknown"
}

// deriveStatus normalizes the outcome to success or failure.
func deriveStatus(raw RawEvent) string {
	switch raw.Status {
	case StatusSuccess, StatusFailure:
		return raw.Status
	}
	if raw.StatusCode >= 400 || raw.Error != "" {
		return StatusFailure
	}
	return StatusSuccess
}

// deriveResource extracts the resource and, when recognizable, its id from a
// path like /api/users/42: the second segment names the resource and the
// third is taken as the id only when it looks like one, so nested routes
// such as /api/users/search don't sprout bogus ids.
func deriveResource(path string) (resource, resourceID string) {
	segs := splitPath(path)
	if len(segs) < 2 {
		return "unknown", ""
	}
	resource = segs[1]
	if len(segs) >= 3 && isResourceID(segs[2]) {
		resourceID = segs[2]
	}
	return resource, resourceID
}

func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// isResourceID reports whether a path segment is a numeric or UUID
// identifier.
func isResourceID(seg string) bool {
	if seg == "" {
		return false
	}
	numeric := true
	for _, r := range seg {
		if r < '0' || r > '9' {
			numeric = false
			break
		}
	}
	if numeric {
		return true
	}
	_, err := uuid.Parse(seg)
	return err == nil
}
