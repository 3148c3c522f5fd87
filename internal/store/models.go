package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies an activity log entry.
type Kind string

const (
	KindSent   Kind = "sent"
	KindSkip   Kind = "skip"
	KindError  Kind = "error"
	KindConfig Kind = "config"
)

// LogEntry is a single activity record. Extra carries free-form fields that are
// flattened into the entry object on disk.
type LogEntry struct {
	Time  time.Time
	Type  Kind
	Msg   string
	Extra map[string]any
}

// reserved keys cannot be overridden by Extra
var reservedLogKeys = map[string]bool{"time": true, "type": true, "msg": true}

// MarshalJSON writes the entry as {time, type, msg, ...extra}.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+3)
	for k, v := range e.Extra {
		if reservedLogKeys[k] {
			continue
		}
		out[k] = v
	}
	out["time"] = e.Time.UTC().Format(time.RFC3339Nano)
	out["type"] = e.Type
	out["msg"] = e.Msg
	return json.Marshal(out)
}

// UnmarshalJSON collects every key other than time/type/msg into Extra.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var entry LogEntry
	for key, value := range raw {
		switch key {
		case "time":
			var ts string
			if err := json.Unmarshal(value, &ts); err != nil {
				return fmt.Errorf("invalid log time: %w", err)
			}
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return fmt.Errorf("invalid log time %q: %w", ts, err)
			}
			entry.Time = parsed
		case "type":
			var kind string
			if err := json.Unmarshal(value, &kind); err != nil {
				return fmt.Errorf("invalid log type: %w", err)
			}
			entry.Type = Kind(kind)
		case "msg":
			if err := json.Unmarshal(value, &entry.Msg); err != nil {
				return fmt.Errorf("invalid log msg: %w", err)
			}
		default:
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return fmt.Errorf("invalid log field %q: %w", key, err)
			}
			if entry.Extra == nil {
				entry.Extra = make(map[string]any)
			}
			entry.Extra[key] = v
		}
	}

	*e = entry
	return nil
}

// State is the persisted document.
type State struct {
	DMText   string           `json:"dm_text"`
	SentKeys map[string]int64 `json:"sent_keys"`
	Logs     []LogEntry       `json:"logs"`
}

// Stats summarizes the store for health and dashboard output.
type Stats struct {
	SentCount int `json:"sent_count"`
	LogCount  int `json:"log_count"`
}
