package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"commentdm/internal/security"
	"commentdm/pkg/fileutil"
)

const (
	// MaxLogEntries is the number of activity entries retained in the state file.
	MaxLogEntries = 200

	// DefaultReplyText is used when the state file has no reply text.
	DefaultReplyText = "Thanks for your comment! Check your DMs 💬"
)

// Archive receives a copy of every appended log entry.
type Archive interface {
	RecordActivity(ctx context.Context, entry LogEntry) error
}

// Store owns the persisted state. Every mutation is flushed to disk before
// the method returns.
type Store struct {
	mu      sync.Mutex
	path    string
	state   State
	archive Archive
	logger  *slog.Logger
	now     func() time.Time
}

// DedupeKey builds the composite key for a (post, commenter) pair.
func DedupeKey(postID, commenterID string) string {
	return postID + ":" + commenterID
}

// Open loads the state file at path, or starts from the default document if
// the file does not exist. archive may be nil.
func Open(path string, archive Archive, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:    path,
		archive: archive,
		logger:  logger,
		now:     time.Now,
	}

	state, err := loadState(path)
	if err != nil {
		return nil, err
	}
	s.state = state

	return s, nil
}

func defaultState() State {
	return State{
		DMText:   DefaultReplyText,
		SentKeys: make(map[string]int64),
		Logs:     []LogEntry{},
	}
}

func loadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultState(), nil
		}
		return State{}, fmt.Errorf("failed to read state file: %w", err)
	}

	state := defaultState()
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}

	if state.DMText == "" {
		state.DMText = DefaultReplyText
	}
	if state.SentKeys == nil {
		state.SentKeys = make(map[string]int64)
	}
	if state.Logs == nil {
		state.Logs = []LogEntry{}
	}
	if len(state.Logs) > MaxLogEntries {
		state.Logs = state.Logs[:MaxLogEntries]
	}

	return state, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// ReplyText returns the message sent to new commenters.
func (s *Store) ReplyText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DMText
}

// HasSent reports whether a reply was already sent for key.
func (s *Store) HasSent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.SentKeys[key]
	return ok
}

// MarkSent records key as notified and appends a "sent" entry.
func (s *Store) MarkSent(key, commentID string) error {
	s.mu.Lock()
	now := s.now()
	s.state.SentKeys[key] = now.UnixMilli()
	entry := s.appendLocked(now, KindSent, "DM sent", map[string]any{
		"key":        key,
		"comment_id": commentID,
	})
	err := s.saveLocked()
	s.archiveLocked(entry)
	s.mu.Unlock()
	return err
}

// RecordSkip appends a "skip" entry for an already-notified key.
func (s *Store) RecordSkip(key string) error {
	return s.AppendLog(KindSkip, "Already sent for this post and user", map[string]any{"key": key})
}

// RecordError appends an "error" entry carrying the failure text.
func (s *Store) RecordError(cause error) error {
	return s.AppendLog(KindError, cause.Error(), nil)
}

// AppendLog appends an entry to the head of the activity log and persists.
func (s *Store) AppendLog(kind Kind, msg string, extra map[string]any) error {
	s.mu.Lock()
	entry := s.appendLocked(s.now(), kind, msg, extra)
	err := s.saveLocked()
	s.archiveLocked(entry)
	s.mu.Unlock()
	return err
}

// UpdateReplyText replaces the reply text with the trimmed value. Empty
// submissions leave the previous text in place; a "config" entry is
// appended either way. Reports whether the text changed.
func (s *Store) UpdateReplyText(text string) (bool, error) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	updated := text != ""
	msg := "Empty reply text ignored"
	if updated {
		s.state.DMText = text
		msg = "Reply text updated"
	}
	entry := s.appendLocked(s.now(), KindConfig, msg, nil)
	err := s.saveLocked()
	s.archiveLocked(entry)
	s.mu.Unlock()
	return updated, err
}

// ResetSent clears every dedupe key and returns how many were removed.
func (s *Store) ResetSent() (int, error) {
	s.mu.Lock()
	cleared := len(s.state.SentKeys)
	s.state.SentKeys = make(map[string]int64)
	entry := s.appendLocked(s.now(), KindConfig, "Dedupe keys cleared", map[string]any{"cleared": cleared})
	err := s.saveLocked()
	s.archiveLocked(entry)
	s.mu.Unlock()
	return cleared, err
}

// Logs returns a copy of the retained activity log, newest first.
func (s *Store) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.state.Logs))
	copy(out, s.state.Logs)
	return out
}

// Stats returns counts of dedupe keys and retained log entries.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		SentCount: len(s.state.SentKeys),
		LogCount:  len(s.state.Logs),
	}
}

func (s *Store) appendLocked(now time.Time, kind Kind, msg string, extra map[string]any) LogEntry {
	entry := LogEntry{Time: now, Type: kind, Msg: msg, Extra: extra}

	logs := make([]LogEntry, 0, min(len(s.state.Logs)+1, MaxLogEntries))
	logs = append(logs, entry)
	logs = append(logs, s.state.Logs...)
	if len(logs) > MaxLogEntries {
		logs = logs[:MaxLogEntries]
	}
	s.state.Logs = logs

	return entry
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := security.CreateSecureDir(filepath.Dir(s.path), security.PermDirectory); err != nil {
		return fmt.Errorf("failed to prepare state directory: %w", err)
	}

	if err := fileutil.WriteFileAtomic(s.path, data, security.PermStateFile); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// archiveLocked runs with mu held so archive ids follow the log order.
func (s *Store) archiveLocked(entry LogEntry) {
	if s.archive == nil {
		return
	}
	if err := s.archive.RecordActivity(context.Background(), entry); err != nil {
		s.logger.Error("Failed to archive activity", "error", err, "type", entry.Type)
	}
}
