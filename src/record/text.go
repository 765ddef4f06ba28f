package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TextCodec stores a record as a JSON object tree.
type TextCodec struct{}

type textMeta struct {
	Version  float32 `json:"version"`
	Created  string  `json:"created"`
	Modified string  `json:"modified"`
	PlayTime string  `json:"play_time"`
}

type textRecord struct {
	Meta    *textMeta `json:"metadata"`
	Entries []Entry   `json:"entries"`
}

func (TextCodec) Encode(r *Record) ([]byte, error) {
	doc := textRecord{
		Meta: &textMeta{
			Version:  r.Meta.Version,
			Created:  formatTime(r.Meta.Created),
			Modified: formatTime(r.Meta.Modified),
			PlayTime: r.Meta.PlayTime.String(),
		},
		Entries: r.Entries(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

func (TextCodec) Decode(data []byte) (*Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var doc textRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if doc.Meta == nil {
		return nil, fmt.Errorf("record has no metadata block")
	}

	meta := Meta{Version: doc.Meta.Version}
	var err error
	if meta.Created, err = parseTime(doc.Meta.Created); err != nil {
		return nil, fmt.Errorf("invalid creation time: %w", err)
	}
	if meta.Modified, err = parseTime(doc.Meta.Modified); err != nil {
		return nil, fmt.Errorf("invalid modification time: %w", err)
	}
	if doc.Meta.PlayTime != "" {
		if meta.PlayTime, err = time.ParseDuration(doc.Meta.PlayTime); err != nil {
			return nil, fmt.Errorf("invalid play time: %w", err)
		}
	}

	return FromEntries(meta, doc.Entries), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
