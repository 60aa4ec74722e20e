package domain

import (
	"cmp"
	"slices"
	"time"
)

type MessageType string

const (
	MessageTypeText               MessageType = "text"
	MessageTypeHTML               MessageType = "html"
	MessageTypeTopicUpdated       MessageType = "topicUpdated"
	MessageTypeParticipantAdded   MessageType = "participantAdded"
	MessageTypeParticipantRemoved MessageType = "participantRemoved"
)

type MessageContent struct {
	Message string `json:"message,omitempty"`
	Topic   string `json:"topic,omitempty"`
}

type Message struct {
	ID                string         `json:"id"`
	ThreadID          string         `json:"thread_id"`
	Type              MessageType    `json:"type"`
	SequenceID        int64          `json:"sequence_id"`
	Version           string         `json:"version,omitempty"`
	Content           MessageContent `json:"content"`
	SenderDisplayName string         `json:"sender_display_name,omitempty"`
	SenderID          string         `json:"sender_id,omitempty"`
	CreatedOn         *time.Time     `json:"created_on,omitempty"`
	EditedOn          *time.Time     `json:"edited_on,omitempty"`
	DeletedOn         *time.Time     `json:"deleted_on,omitempty"`
}

type SendMessageRequest struct {
	Content           string      `json:"content"`
	SenderDisplayName string      `json:"sender_display_name,omitempty"`
	Type              MessageType `json:"type,omitempty"`
}

// CompareMessages orders messages by creation time. A message without a
// timestamp sorts before any timestamped one; two untimed messages are equal
// on that key. Ties fall back to sequence id, then message id.
func CompareMessages(a, b Message) int {
	switch {
	case a.CreatedOn == nil && b.CreatedOn != nil:
		return -1
	case a.CreatedOn != nil && b.CreatedOn == nil:
		return 1
	case a.CreatedOn != nil && b.CreatedOn != nil:
		if c := a.CreatedOn.Compare(*b.CreatedOn); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.SequenceID, b.SequenceID); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortMessages sorts msgs in place, oldest first.
func SortMessages(msgs []Message) {
	slices.SortStableFunc(msgs, CompareMessages)
}
