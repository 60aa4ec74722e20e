package azure

import (
	"strconv"
	"time"

	"azure-communication/internal/domain"
)

// Wire shapes of the ACS Chat REST API.

type chatThreadItem struct {
	ID                    string     `json:"id"`
	Topic                 string     `json:"topic"`
	DeletedOn             *time.Time `json:"deletedOn,omitempty"`
	LastMessageReceivedOn *time.Time `json:"lastMessageReceivedOn,omitempty"`
}

type chatThreadsCollection struct {
	Value    []chatThreadItem `json:"value"`
	NextLink string           `json:"nextLink,omitempty"`
}

type chatThreadProperties struct {
	ID        string     `json:"id"`
	Topic     string     `json:"topic"`
	CreatedOn *time.Time `json:"createdOn,omitempty"`
	DeletedOn *time.Time `json:"deletedOn,omitempty"`
}

type communicationUser struct {
	ID string `json:"id"`
}

type communicationIdentifier struct {
	RawID             string             `json:"rawId,omitempty"`
	CommunicationUser *communicationUser `json:"communicationUser,omitempty"`
}

type chatMessageContent struct {
	Message string `json:"message,omitempty"`
	Topic   string `json:"topic,omitempty"`
}

type chatMessage struct {
	ID                            string                   `json:"id"`
	Type                          string                   `json:"type"`
	SequenceID                    string                   `json:"sequenceId"`
	Version                       string                   `json:"version"`
	Content                       *chatMessageContent      `json:"content,omitempty"`
	SenderDisplayName             string                   `json:"senderDisplayName,omitempty"`
	CreatedOn                     *time.Time               `json:"createdOn,omitempty"`
	SenderCommunicationIdentifier *communicationIdentifier `json:"senderCommunicationIdentifier,omitempty"`
	DeletedOn                     *time.Time               `json:"deletedOn,omitempty"`
	EditedOn                      *time.Time               `json:"editedOn,omitempty"`
}

type chatMessagesCollection struct {
	Value    []chatMessage `json:"value"`
	NextLink string        `json:"nextLink,omitempty"`
}

type sendChatMessageRequest struct {
	Content           string `json:"content"`
	SenderDisplayName string `json:"senderDisplayName,omitempty"`
	Type              string `json:"type,omitempty"`
}

type sendChatMessageResult struct {
	ID string `json:"id"`
}

type communicationErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t chatThreadItem) toDomain() domain.Thread {
	return domain.Thread{
		ID:                    t.ID,
		Topic:                 t.Topic,
		LastMessageReceivedOn: t.LastMessageReceivedOn,
		DeletedOn:             t.DeletedOn,
	}
}

func (m chatMessage) toDomain(threadID string) domain.Message {
	msg := domain.Message{
		ID:                m.ID,
		ThreadID:          threadID,
		Type:              domain.MessageType(m.Type),
		Version:           m.Version,
		SenderDisplayName: m.SenderDisplayName,
		CreatedOn:         m.CreatedOn,
		EditedOn:          m.EditedOn,
		DeletedOn:         m.DeletedOn,
	}
	if seq, err := strconv.ParseInt(m.SequenceID, 10, 64); err == nil {
		msg.SequenceID = seq
	}
	if m.Content != nil {
		msg.Content = domain.MessageContent{Message: m.Content.Message, Topic: m.Content.Topic}
	}
	if id := m.SenderCommunicationIdentifier; id != nil {
		msg.SenderID = id.RawID
		if msg.SenderID == "" && id.CommunicationUser != nil {
			msg.SenderID = id.CommunicationUser.ID
		}
	}
	return msg
}
