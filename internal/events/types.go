package events

// Event Grid event types published by Azure Communication Services.
// These follow the format: Microsoft.Communication.<Resource><Action>

// Chat message events
const (
	EventTypeChatMessageReceived         = "Microsoft.Communication.ChatMessageReceived"
	EventTypeChatMessageReceivedInThread = "Microsoft.Communication.ChatMessageReceivedInThread"
	EventTypeChatMessageEdited           = "Microsoft.Communication.ChatMessageEdited"
	EventTypeChatMessageEditedInThread   = "Microsoft.Communication.ChatMessageEditedInThread"
	EventTypeChatMessageDeleted          = "Microsoft.Communication.ChatMessageDeleted"
	EventTypeChatMessageDeletedInThread  = "Microsoft.Communication.ChatMessageDeletedInThread"
)

// Chat thread events
const (
	EventTypeChatThreadCreated           = "Microsoft.Communication.ChatThreadCreated"
	EventTypeChatThreadCreatedWithUser   = "Microsoft.Communication.ChatThreadCreatedWithUser"
	EventTypeChatThreadPropertiesUpdated = "Microsoft.Communication.ChatThreadPropertiesUpdated"
	EventTypeChatThreadDeleted           = "Microsoft.Communication.ChatThreadDeleted"
)

// Event Grid handshake
const (
	EventTypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
)

// Sources recorded on domain.MessageReceivedEvent
const (
	SourceEventGrid = "eventgrid"
	SourceRedis     = "redis"
	SourcePoller    = "poller"
	SourceAPI       = "api"
)

// DefaultChannel is the Redis channel change notifications are relayed on.
const DefaultChannel = "channel:acs:chat"

// IsChatActivity reports whether eventType changes a thread list or a
// message snapshot and should trigger a refresh.
func IsChatActivity(eventType string) bool {
	switch eventType {
	case EventTypeChatMessageReceived, EventTypeChatMessageReceivedInThread,
		EventTypeChatMessageEdited, EventTypeChatMessageEditedInThread,
		EventTypeChatMessageDeleted, EventTypeChatMessageDeletedInThread,
		EventTypeChatThreadCreated, EventTypeChatThreadCreatedWithUser,
		EventTypeChatThreadPropertiesUpdated, EventTypeChatThreadDeleted:
		return true
	}
	return false
}
