package replier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"commentdm/internal/store"
)

// Sender delivers a private reply to the author of a comment.
type Sender interface {
	PrivateReply(ctx context.Context, commentID, message string) error
}

// Processor turns webhook notifications into at most one private reply per
// (post, commenter) pair.
type Processor struct {
	Store  *store.Store
	Sender Sender
	Object string
	Logger *slog.Logger

	// mu serializes batches so the dedupe check and the send are atomic
	// with respect to concurrent deliveries.
	mu sync.Mutex
}

// NewProcessor creates a processor for the given webhook object type
func NewProcessor(st *store.Store, sender Sender, object string, logger *slog.Logger) *Processor {
	if object == "" {
		object = DefaultObject
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		Store:  st,
		Sender: sender,
		Object: object,
		Logger: logger,
	}
}

// HandleBatch processes a notification and records a single "error" entry if
// processing stops early. Changes after the failing one are abandoned; a
// redelivery reprocesses the whole batch and relies on the dedupe keys.
func (p *Processor) HandleBatch(ctx context.Context, n Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.process(ctx, n); err != nil {
		p.Logger.Error("batch_failed", "error", err)
		if logErr := p.Store.RecordError(err); logErr != nil {
			p.Logger.Error("Failed to persist error entry", "error", logErr)
		}
	}
}

func (p *Processor) process(ctx context.Context, n Notification) error {
	if n.Object != p.Object {
		p.Logger.Debug("Ignoring notification for other object", "object", n.Object)
		return nil
	}

	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			event, ok := change.CommentEvent()
			if !ok {
				continue
			}

			if err := p.handleEvent(ctx, event); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Processor) handleEvent(ctx context.Context, event CommentEvent) error {
	key := event.DedupeKey()

	if p.Store.HasSent(key) {
		p.Logger.Info("comment_skipped", "key", key, "comment_id", event.CommentID)
		return p.Store.RecordSkip(key)
	}

	if err := p.Sender.PrivateReply(ctx, event.CommentID, p.Store.ReplyText()); err != nil {
		return err
	}

	p.Logger.Info("comment_replied", "key", key, "comment_id", event.CommentID)

	if err := p.Store.MarkSent(key, event.CommentID); err != nil {
		return fmt.Errorf("reply sent but not recorded for %s: %w", key, err)
	}

	return nil
}
