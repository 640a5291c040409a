package chat

// Conn is the slice of the live connection the chat side needs. Implemented
// by realtime.Manager; tests substitute a recording fake.
type Conn interface {
	JoinSession(sessionID int64) error
	LeaveSession(sessionID int64) error
	RequestHistory(sessionID int64, sinceMessageID *int64) error
	SendChatMessage(sessionID int64, text string) error
	EndSession(sessionID int64) error
	TypingStart(sessionID int64) error
	TypingStop(sessionID int64) error
}
