package chat

import (
	"time"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAI    Sender = "ai"
	SenderAdmin Sender = "admin"
)

// Message is one message in a support chat session. MessageID is
// server-assigned and monotonic within a session; it doubles as the
// high-water mark for incremental history requests.
type Message struct {
	MessageID    int64     `json:"message_id"`
	SessionID    int64     `json:"session_id"`
	Sender       Sender    `json:"sender"`
	SenderUserID *int64    `json:"user_id,omitempty"`
	Text         string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}
