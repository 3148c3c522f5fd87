package replier

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"commentdm/internal/store"
)

type fakeSender struct {
	mu      sync.Mutex
	calls   []sentReply
	failFor map[string]error
}

type sentReply struct {
	CommentID string
	Message   string
}

func (f *fakeSender) PrivateReply(_ context.Context, commentID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[commentID]; ok {
		return err
	}
	f.calls = append(f.calls, sentReply{CommentID: commentID, Message: message})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setupProcessor(t *testing.T) (*Processor, *store.Store, *fakeSender) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "data.json"), nil, logger)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	sender := &fakeSender{failFor: map[string]error{}}
	return NewProcessor(st, sender, "", logger), st, sender
}

func commentChange(commentID, postID, userID string) Change {
	return Change{
		Field: "comments",
		Value: ChangeValue{
			ID:    commentID,
			Text:  "nice!",
			From:  &Author{ID: userID, Username: "someone"},
			Media: &Media{ID: postID},
		},
	}
}

func notification(changes ...Change) Notification {
	return Notification{
		Object: "instagram",
		Entry:  []Entry{{ID: "page", Changes: changes}},
	}
}

func TestHandleBatch_SendsOnce(t *testing.T) {
	p, st, sender := setupProcessor(t)
	ctx := context.Background()

	batch := notification(commentChange("100", "200", "300"))

	p.HandleBatch(ctx, batch)
	p.HandleBatch(ctx, batch)

	if sender.count() != 1 {
		t.Fatalf("Expected exactly one outbound reply, got %d", sender.count())
	}
	if sender.calls[0].CommentID != "100" || sender.calls[0].Message != store.DefaultReplyText {
		t.Errorf("Unexpected reply %+v", sender.calls[0])
	}

	logs := st.Logs()
	if len(logs) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(logs))
	}
	if logs[0].Type != store.KindSkip || logs[0].Extra["key"] != "200:300" {
		t.Errorf("Expected skip entry for 200:300 at head, got %+v", logs[0])
	}
	if logs[1].Type != store.KindSent || logs[1].Extra["comment_id"] != "100" {
		t.Errorf("Expected sent entry, got %+v", logs[1])
	}
}

func TestHandleBatch_SameUserDifferentComments(t *testing.T) {
	p, _, sender := setupProcessor(t)

	// Second comment by the same user on the same post is deduplicated
	p.HandleBatch(context.Background(), notification(
		commentChange("1", "10", "20"),
		commentChange("2", "10", "20"),
		commentChange("3", "11", "20"),
	))

	if sender.count() != 2 {
		t.Fatalf("Expected 2 replies, got %d", sender.count())
	}
}

func TestHandleBatch_OpaqueIDs(t *testing.T) {
	p, st, sender := setupProcessor(t)
	ctx := context.Background()

	batch := notification(
		commentChange("c1", "post1", "user1"),
		commentChange("AbC-123", "17841400000000000", "17841411111111111"),
	)

	p.HandleBatch(ctx, batch)

	if sender.count() != 2 {
		t.Fatalf("Expected 2 replies for non-numeric IDs, got %d", sender.count())
	}
	for _, key := range []string{"post1:user1", "17841400000000000:17841411111111111"} {
		if !st.HasSent(key) {
			t.Errorf("Expected %s to be recorded", key)
		}
	}

	// Redelivery is deduplicated
	p.HandleBatch(ctx, batch)
	if sender.count() != 2 {
		t.Errorf("Expected no further replies on redelivery, got %d", sender.count())
	}

	logs := st.Logs()
	if len(logs) != 4 || logs[0].Type != store.KindSkip || logs[1].Type != store.KindSkip {
		t.Errorf("Expected two sent then two skip entries, got %+v", logs)
	}

	// Reset makes the pairs eligible again
	if _, err := st.ResetSent(); err != nil {
		t.Fatalf("ResetSent() error = %v", err)
	}
	p.HandleBatch(ctx, batch)
	if sender.count() != 4 {
		t.Errorf("Expected replies after reset, got %d", sender.count())
	}
}

func TestHandleBatch_DistinctPairs(t *testing.T) {
	p, st, sender := setupProcessor(t)

	p.HandleBatch(context.Background(), notification(
		commentChange("1", "10", "20"),
		commentChange("2", "10", "21"),
		commentChange("3", "11", "20"),
	))

	if sender.count() != 3 {
		t.Fatalf("Expected 3 replies, got %d", sender.count())
	}
	for _, key := range []string{"10:20", "10:21", "11:20"} {
		if !st.HasSent(key) {
			t.Errorf("Expected %s to be recorded", key)
		}
	}
}

func TestHandleBatch_UsesCurrentReplyText(t *testing.T) {
	p, st, sender := setupProcessor(t)

	if _, err := st.UpdateReplyText("Custom DM"); err != nil {
		t.Fatalf("UpdateReplyText() error = %v", err)
	}

	p.HandleBatch(context.Background(), notification(commentChange("1", "2", "3")))

	if sender.count() != 1 || sender.calls[0].Message != "Custom DM" {
		t.Errorf("Expected custom reply text, got %+v", sender.calls)
	}
}

func TestHandleBatch_WrongObjectIgnored(t *testing.T) {
	p, st, sender := setupProcessor(t)

	batch := notification(commentChange("1", "2", "3"))
	batch.Object = "page"

	p.HandleBatch(context.Background(), batch)

	if sender.count() != 0 {
		t.Errorf("Expected no replies, got %d", sender.count())
	}
	if len(st.Logs()) != 0 {
		t.Errorf("Expected no log entries, got %d", len(st.Logs()))
	}
}

func TestHandleBatch_MalformedChangesSkipped(t *testing.T) {
	p, st, sender := setupProcessor(t)

	missingFrom := commentChange("1", "2", "3")
	missingFrom.Value.From = nil

	missingMedia := commentChange("4", "5", "6")
	missingMedia.Value.Media = nil

	missingID := commentChange("", "8", "9")
	emptyMediaID := commentChange("10", "", "12")

	p.HandleBatch(context.Background(), notification(
		missingFrom,
		missingMedia,
		missingID,
		emptyMediaID,
		Change{Field: "mentions"},
		commentChange("13", "14", "15"),
	))

	if sender.count() != 1 || sender.calls[0].CommentID != "13" {
		t.Fatalf("Expected only the complete change to be replied to, got %+v", sender.calls)
	}

	// Malformed changes leave no trace in the activity log
	if len(st.Logs()) != 1 {
		t.Errorf("Expected 1 log entry, got %d", len(st.Logs()))
	}
}

func TestHandleBatch_AbortsOnFailure(t *testing.T) {
	p, st, sender := setupProcessor(t)
	sender.failFor["1"] = errors.New("graph api returned status 400: bad comment")

	batch := notification(
		commentChange("1", "10", "20"),
		commentChange("2", "10", "21"),
	)

	p.HandleBatch(context.Background(), batch)

	if sender.count() != 0 {
		t.Fatalf("Expected no successful replies, got %d", sender.count())
	}
	if st.HasSent("10:20") || st.HasSent("10:21") {
		t.Error("No dedupe keys should be recorded after the failure")
	}

	logs := st.Logs()
	if len(logs) != 1 {
		t.Fatalf("Expected a single error entry, got %+v", logs)
	}
	if logs[0].Type != store.KindError || !strings.Contains(logs[0].Msg, "bad comment") {
		t.Errorf("Unexpected error entry %+v", logs[0])
	}

	// Redelivery after the upstream recovers processes both changes
	delete(sender.failFor, "1")
	p.HandleBatch(context.Background(), batch)

	if sender.count() != 2 {
		t.Errorf("Expected both changes to be replied to on redelivery, got %d", sender.count())
	}
	if !st.HasSent("10:20") || !st.HasSent("10:21") {
		t.Error("Expected both keys after redelivery")
	}
}

func TestHandleBatch_FailureAfterPartialSuccess(t *testing.T) {
	p, st, sender := setupProcessor(t)
	sender.failFor["2"] = errors.New("boom")

	batch := notification(
		commentChange("1", "10", "20"),
		commentChange("2", "10", "21"),
		commentChange("3", "10", "22"),
	)
	p.HandleBatch(context.Background(), batch)

	if !st.HasSent("10:20") {
		t.Error("First change should have been recorded")
	}
	if st.HasSent("10:22") {
		t.Error("Third change should have been abandoned")
	}

	// Redelivery skips the already-sent pair and completes the rest
	delete(sender.failFor, "2")
	p.HandleBatch(context.Background(), batch)

	if sender.count() != 3 {
		t.Errorf("Expected 3 total replies, got %d", sender.count())
	}
	if st.Logs()[2].Type != store.KindSkip {
		t.Errorf("Expected skip entry for the already-sent pair, got %+v", st.Logs()[2])
	}
}

func TestHandleBatch_ConcurrentDeliveries(t *testing.T) {
	p, _, sender := setupProcessor(t)

	batch := notification(commentChange("1", "2", "3"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.HandleBatch(context.Background(), batch)
		}()
	}
	wg.Wait()

	if sender.count() != 1 {
		t.Errorf("Expected exactly one reply under concurrent delivery, got %d", sender.count())
	}
}

func TestChange_CommentEvent(t *testing.T) {
	tests := []struct {
		name   string
		change Change
		wantOK bool
		want   CommentEvent
	}{
		{"numeric", commentChange("1", "2", "3"), true, CommentEvent{"1", "2", "3"}},
		{"opaque", commentChange("c1", "post1", "user1"), true, CommentEvent{"c1", "post1", "user1"}},
		{"empty comment id", commentChange("", "2", "3"), false, CommentEvent{}},
		{"empty post id", commentChange("1", "", "3"), false, CommentEvent{}},
		{"empty commenter id", commentChange("1", "2", ""), false, CommentEvent{}},
		{"oversized id", commentChange(strings.Repeat("9", 300), "2", "3"), false, CommentEvent{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.change.CommentEvent()
			if ok != tt.wantOK {
				t.Fatalf("CommentEvent() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("CommentEvent() = %+v, want %+v", got, tt.want)
			}
		})
	}

	event, _ := commentChange("1", "2", "3").CommentEvent()
	if event.DedupeKey() != "2:3" {
		t.Errorf("Unexpected dedupe key %q", event.DedupeKey())
	}
}
