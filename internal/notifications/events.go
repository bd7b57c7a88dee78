package notifications

import (
	"github.com/google/uuid"
)

// Event types published after successful post writes.
const (
	EventPostCreated     = "post_created"
	EventPostUpdated     = "post_updated"
	EventPostDeleted     = "post_deleted"
	EventPostReplied     = "post_replied"
	EventPostLikeToggled = "post_like_toggled"
	EventMessagesDropped = "messages_dropped"
)

// Event is the JSON envelope relayed to feed subscribers.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NewEvent stamps payload with a fresh event id.
func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: payload,
	}
}
