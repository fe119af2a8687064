package chathistory

import "context"

// MessageType identifies who produced a chat message.
type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeAI     MessageType = "ai"
	MessageTypeSystem MessageType = "system"
	MessageTypeError  MessageType = "error"
)

// Source is a citation attached to an answer.
type Source struct {
	FileID   string         `json:"fileId"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Message is one entry of a user's chat history. (TenantID, ID) identifies it.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	TenantID  string      `json:"tenantId"`
	UserID    string      `json:"userId"`
	ProjectID string      `json:"projectId"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"`
	Sources   []Source    `json:"sources,omitempty"`
}

// Cursor marks the last message of a history page.
type Cursor struct {
	Timestamp int64
	ID        string
}

// Repository defines persistence operations for chat messages.
type Repository interface {
	Put(ctx context.Context, msg *Message) error
	// PutBatch upserts messages by (tenant, id).
	PutBatch(ctx context.Context, msgs []*Message) error
	// Page returns up to limit messages of a user ordered by timestamp, starting after
	// the cursor. A nil next cursor means the history is exhausted.
	Page(ctx context.Context, tenantID, userID string, after *Cursor, limit int) ([]*Message, *Cursor, error)
	DeleteBatch(ctx context.Context, tenantID string, ids []string) error
}
