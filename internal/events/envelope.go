package events

import (
	"encoding/json"
	"time"

	"azure-communication/internal/domain"
)

// Envelope is one event in the Event Grid schema.
type Envelope struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic,omitempty"`
	Subject     string          `json:"subject"`
	EventType   string          `json:"eventType"`
	EventTime   time.Time       `json:"eventTime"`
	DataVersion string          `json:"dataVersion,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// ChatMessageEventData is the data of the chat message events. Only the
// fields used for logging are decoded.
type ChatMessageEventData struct {
	MessageID         string    `json:"messageId"`
	ChatThreadID      string    `json:"threadId"`
	SenderDisplayName string    `json:"senderDisplayName,omitempty"`
	ComposeTime       time.Time `json:"composeTime"`
	Type              string    `json:"type,omitempty"`
}

type SubscriptionValidationData struct {
	ValidationCode string `json:"validationCode"`
	ValidationURL  string `json:"validationUrl,omitempty"`
}

type SubscriptionValidationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}

// ValidationCode returns the handshake code when e is a subscription
// validation event.
func (e Envelope) ValidationCode() (string, bool) {
	if e.EventType != EventTypeSubscriptionValidation {
		return "", false
	}
	var data SubscriptionValidationData
	if err := json.Unmarshal(e.Data, &data); err != nil || data.ValidationCode == "" {
		return "", false
	}
	return data.ValidationCode, true
}

// ChangeNotification converts e into the sync trigger. The boolean is false
// for events that do not touch chat state.
func (e Envelope) ChangeNotification() (domain.MessageReceivedEvent, bool) {
	if !IsChatActivity(e.EventType) {
		return domain.MessageReceivedEvent{}, false
	}
	event := domain.MessageReceivedEvent{
		Source:   SourceEventGrid,
		Received: e.EventTime,
	}
	var data ChatMessageEventData
	if err := json.Unmarshal(e.Data, &data); err == nil {
		event.ThreadID = data.ChatThreadID
		event.MessageID = data.MessageID
	}
	if event.Received.IsZero() {
		event.Received = time.Now().UTC()
	}
	return event, true
}
