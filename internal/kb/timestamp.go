package kb

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timestampLayouts lists the accepted corpus timestamp formats. Zone-less
// ISO-8601 values (as written by older scrapers) are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON accepts RFC 3339 and zone-less ISO-8601 timestamps.
func (p *PageRecord) UnmarshalJSON(data []byte) error {
	type wire struct {
		URL       string   `json:"url"`
		Title     string   `json:"title"`
		Blocks    []string `json:"content"`
		Timestamp string   `json:"timestamp"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode page record: %w", err)
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return fmt.Errorf("page %s: %w", w.URL, err)
	}
	*p = PageRecord{
		URL:       w.URL,
		Title:     w.Title,
		Blocks:    w.Blocks,
		FetchedAt: ts,
	}
	return nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
