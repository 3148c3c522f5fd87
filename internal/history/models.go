package history

import "time"

// ActivityRecord is a single archived activity log entry.
type ActivityRecord struct {
	ID    int64          `json:"id"`
	Time  time.Time      `json:"time"`
	Type  string         `json:"type"`
	Msg   string         `json:"msg"`
	Extra map[string]any `json:"extra,omitempty"`
}

// TypeCount is the number of archived entries of one type.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}
