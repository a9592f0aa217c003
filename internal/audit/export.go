package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Export writes the full chain to w for archival or external audits.
// Supported formats: "json" (indented array, entry field order preserved),
// "jsonl" (one entry per line, the storage encoding), and "csv" (header row,
// fields quoted as needed, payloads embedded as JSON).
func (l *Log) Export(ctx context.Context, w io.Writer, format string) error {
	entries, err := l.store.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("reading entries for export: %w", err)
	}
	if entries == nil {
		// An empty chain exports as an empty array, whatever the backend.
		entries = []Entry{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)

	case "jsonl", "":
		enc := json.NewEncoder(w)
		for i := range entries {
			if err := enc.Encode(&entries[i]); err != nil {
				return err
			}
		}
		return nil

	case "csv":
		cw := csv.NewWriter(w)
		defer cw.Flush()
		header := []string{
			"id", "index", "ts", "user_id", "username", "action",
			"resource", "resource_id", "method", "path", "query", "body",
			"ip_address", "user_agent", "status", "status_code",
			"duration_ms", "error", "metadata", "prev_hash", "hash",
		}
		if err := cw.Write(header); err != nil {
			return err
		}
		for i := range entries {
			if err := cw.Write(csvRow(&entries[i])); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported export format: %s (use json, jsonl, or csv)", format)
	}
}

func csvRow(e *Entry) []string {
	return []string{
		e.ID,
		strconv.FormatInt(e.Index, 10),
		e.Timestamp,
		e.UserID,
		e.Username,
		e.Action,
		e.Resource,
		e.ResourceID,
		e.Method,
		e.Path,
		e.Query,
		jsonField(e.Body),
		e.IPAddress,
		e.UserAgent,
		e.Status,
		strconv.Itoa(e.StatusCode),
		strconv.FormatInt(e.DurationMs, 10),
		e.ErrorMessage,
		jsonField(e.Metadata),
		e.PrevHash,
		e.Hash,
	}
}

// jsonField renders a payload for a CSV cell; nil becomes an empty cell.
func jsonField(v any) string {
	if v == nil {
		return ""
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
