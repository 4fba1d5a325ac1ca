package domain

import "time"

// Message types
const (
	MessageTypeUser          = "user"
	MessageTypeAI            = "ai"
	MessageTypeAIRequestDocs = "ai_request_documents"
	MessageTypeAgent         = "agent"
	MessageTypeSystem        = "system"
)

// Attachment references a document uploaded alongside a message
type Attachment struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	StorageRef string `json:"storage_ref"`
}

// ChatMessage represents a message in a claim conversation
type ChatMessage struct {
	ID         string            `json:"id"`
	ClaimID    string            `json:"claim_id"`
	AuthorID   string            `json:"author_id,omitempty"`
	Type       string            `json:"message_type"`
	Text       string            `json:"message_text"`
	Attachment *Attachment       `json:"attachment,omitempty"`
	Validation *ValidationStatus `json:"validation_status,omitempty"`
	Sources    []Source          `json:"sources,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// IsAssistant reports whether the message was authored by the assistant
func (m *ChatMessage) IsAssistant() bool {
	return m.Type == MessageTypeAI || m.Type == MessageTypeAIRequestDocs
}

// Source represents a citation source
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// SendMessageRequest is the JSON body of a chat submission
type SendMessageRequest struct {
	MessageText  string `json:"message_text" form:"message_text"`
	DocumentType string `json:"document_type,omitempty" form:"document_type"`
}

// SubmitResult is returned synchronously from a chat submission. The
// assistant's reply arrives later over the realtime channel.
type SubmitResult struct {
	Message  *ChatMessage `json:"message"`
	NextStep string       `json:"next_step,omitempty"`
}

// HistoryResponse is the response for chat history
type HistoryResponse struct {
	History []*ChatMessage `json:"history"`
}
