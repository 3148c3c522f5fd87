package replier

import (
	"commentdm/internal/security"
	"commentdm/internal/store"
)

// DefaultObject is the webhook object type this service answers.
const DefaultObject = "instagram"

// Notification is the webhook envelope: {object, entry: [{changes: [...]}]}.
type Notification struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue is the comment payload. Only the identifiers are needed.
type ChangeValue struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	From  *Author `json:"from"`
	Media *Media  `json:"media"`
}

type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Media struct {
	ID               string `json:"id"`
	MediaProductType string `json:"media_product_type"`
}

// CommentEvent identifies one new comment.
type CommentEvent struct {
	CommentID   string
	PostID      string
	CommenterID string
}

// DedupeKey is the (post, commenter) key guarding at-most-once replies.
func (e CommentEvent) DedupeKey() string {
	return store.DedupeKey(e.PostID, e.CommenterID)
}

// CommentEvent extracts the comment identifiers. ok is false when any of
// them is missing.
func (c Change) CommentEvent() (CommentEvent, bool) {
	v := c.Value
	if v.From == nil || v.Media == nil {
		return CommentEvent{}, false
	}

	event := CommentEvent{
		CommentID:   v.ID,
		PostID:      v.Media.ID,
		CommenterID: v.From.ID,
	}

	for _, id := range []string{event.CommentID, event.PostID, event.CommenterID} {
		if err := security.ValidatePayloadID(id); err != nil {
			return CommentEvent{}, false
		}
	}

	return event, true
}
