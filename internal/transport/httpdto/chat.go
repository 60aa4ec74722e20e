package httpdto

import "azure-communication/internal/domain"

type SendMessageRequest struct {
	Content           string `json:"content" binding:"required"`
	SenderDisplayName string `json:"sender_display_name"`
	Type              string `json:"type"`
}

type SendMessageResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

type ThreadListResponse struct {
	Threads []domain.Thread `json:"threads"`
	Count   int             `json:"count"`
}

type MessagesResponse struct {
	ThreadID string           `json:"thread_id"`
	Messages []domain.Message `json:"messages"`
	Count    int              `json:"count"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	ThreadsLoaded bool   `json:"threads_loaded"`
	Streams       int    `json:"streams"`
	Clients       int    `json:"clients"`
	Redis         string `json:"redis,omitempty"`
}
