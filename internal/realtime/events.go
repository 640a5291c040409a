package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"motorent/internal/chat"
	"motorent/internal/notification"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMalformedEvent = errors.New("malformed event payload")
)

// Server -> client event names.
const (
	EventNewNotification = "new_notification"
	EventCountUpdate     = "notification_count_update"
	EventMarkedRead      = "notification_marked_read"
	EventDeleted         = "notification_deleted"
	EventNewMessage      = "new_message"
	EventAdminMessage    = "admin_message"
	EventMessageHistory  = "message_history"
	EventJoinedSession   = "admin_joined_session"
	EventUserTyping      = "user_typing"
	EventSessionEnded    = "session_ended"
)

// Client -> server event names.
const (
	EventJoinSession    = "admin_join_session"
	EventLeaveSession   = "admin_leave_session"
	EventRequestHistory = "admin_request_history"
	EventSendMessage    = "admin_send_message"
	EventEndSession     = "admin_end_session"
	EventTypingStart    = "typing_start"
	EventTypingStop     = "typing_stop"
)

// Kind classifies canonical events for subscription filtering.
type Kind string

const (
	KindAny             Kind = "*"
	KindNewNotification Kind = "notification.new"
	KindCountUpdate     Kind = "notification.count"
	KindMarkedRead      Kind = "notification.read"
	KindDeleted         Kind = "notification.deleted"
	KindNewChatMessage  Kind = "chat.message"
	KindChatHistory     Kind = "chat.history"
	KindTyping          Kind = "chat.typing"
	KindSessionJoined   Kind = "chat.joined"
	KindSessionEnded    Kind = "chat.ended"
)

// Event is a normalized inbound push event.
type Event interface {
	Kind() Kind
}

type NewNotification struct {
	Notification notification.Notification
}

type CountUpdate struct {
	UnreadCount int64
}

type MarkedRead struct {
	ID int64
}

type Deleted struct {
	ID int64
}

type NewChatMessage struct {
	Message chat.Message
}

type ChatHistoryPage struct {
	SessionID int64
	Messages  []chat.Message
}

type TypingSignal struct {
	SessionID int64
	IsTyping  bool
}

type SessionJoined struct {
	SessionID int64
}

type SessionEnded struct {
	SessionID int64
}

func (NewNotification) Kind() Kind { return KindNewNotification }
func (CountUpdate) Kind() Kind     { return KindCountUpdate }
func (MarkedRead) Kind() Kind      { return KindMarkedRead }
func (Deleted) Kind() Kind         { return KindDeleted }
func (NewChatMessage) Kind() Kind  { return KindNewChatMessage }
func (ChatHistoryPage) Kind() Kind { return KindChatHistory }
func (TypingSignal) Kind() Kind    { return KindTyping }
func (SessionJoined) Kind() Kind   { return KindSessionJoined }
func (SessionEnded) Kind() Kind    { return KindSessionEnded }

// envelope is the wire framing shared by both directions:
// an event name plus an event-specific JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type countPayload struct {
	UnreadCount int64 `json:"unread_count"`
}

type idPayload struct {
	ID int64 `json:"id"`
}

// The chat session events carry camelCase keys (sessionId, isTyping) while
// the message events use snake_case; older backend builds sent snake_case
// everywhere, so both spellings are accepted here.
type sessionPayload struct {
	SessionID       int64 `json:"sessionId"`
	LegacySessionID int64 `json:"session_id"`
}

func (p sessionPayload) id() int64 {
	if p.SessionID != 0 {
		return p.SessionID
	}
	return p.LegacySessionID
}

type typingPayload struct {
	sessionPayload
	IsTyping       bool `json:"isTyping"`
	LegacyIsTyping bool `json:"is_typing"`
}

func (p typingPayload) typing() bool {
	return p.IsTyping || p.LegacyIsTyping
}

type historyPayload struct {
	SessionID int64          `json:"session_id"`
	Messages  []chat.Message `json:"messages"`
}

// Normalize converts a raw inbound frame into a canonical event.
// Unknown event names return ErrUnknownEvent; payloads that do not decode
// return ErrMalformedEvent. Neither must ever crash the consumer.
func Normalize(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Event {
	case EventNewNotification:
		var n notification.Notification
		if err := decode(env.Data, &n); err != nil {
			return nil, err
		}
		if n.ID == 0 {
			return nil, fmt.Errorf("%w: notification without id", ErrMalformedEvent)
		}
		return NewNotification{Notification: n}, nil

	case EventCountUpdate:
		var p countPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		if p.UnreadCount < 0 {
			return nil, fmt.Errorf("%w: negative unread count", ErrMalformedEvent)
		}
		return CountUpdate{UnreadCount: p.UnreadCount}, nil

	case EventMarkedRead:
		var p idPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return MarkedRead{ID: p.ID}, nil

	case EventDeleted:
		var p idPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return Deleted{ID: p.ID}, nil

	case EventNewMessage, EventAdminMessage:
		var m chat.Message
		if err := decode(env.Data, &m); err != nil {
			return nil, err
		}
		if m.MessageID == 0 || m.SessionID == 0 {
			return nil, fmt.Errorf("%w: chat message without ids", ErrMalformedEvent)
		}
		return NewChatMessage{Message: m}, nil

	case EventMessageHistory:
		var p historyPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return ChatHistoryPage{SessionID: p.SessionID, Messages: p.Messages}, nil

	case EventJoinedSession:
		var p sessionPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return SessionJoined{SessionID: p.id()}, nil

	case EventUserTyping:
		var p typingPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return TypingSignal{SessionID: p.id(), IsTyping: p.typing()}, nil

	case EventSessionEnded:
		var p sessionPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return SessionEnded{SessionID: p.id()}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// Outbound builds a client->server frame.
func Outbound(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: event, Data: data})
}

type joinPayload struct {
	SessionID int64 `json:"sessionId"`
}

type requestHistoryPayload struct {
	SessionID      int64  `json:"sessionId"`
	SinceMessageID *int64 `json:"sinceMessageId,omitempty"`
}

type sendMessagePayload struct {
	SessionID int64  `json:"sessionId"`
	Message   string `json:"message"`
}

func NewJoinSession(sessionID int64) ([]byte, error) {
	return Outbound(EventJoinSession, joinPayload{SessionID: sessionID})
}

func NewLeaveSession(sessionID int64) ([]byte, error) {
	return Outbound(EventLeaveSession, joinPayload{SessionID: sessionID})
}

func NewRequestHistory(sessionID int64, sinceMessageID *int64) ([]byte, error) {
	return Outbound(EventRequestHistory, requestHistoryPayload{SessionID: sessionID, SinceMessageID: sinceMessageID})
}

func NewSendMessage(sessionID int64, text string) ([]byte, error) {
	return Outbound(EventSendMessage, sendMessagePayload{SessionID: sessionID, Message: text})
}

func NewEndSession(sessionID int64) ([]byte, error) {
	return Outbound(EventEndSession, joinPayload{SessionID: sessionID})
}

func NewTypingStart(sessionID int64) ([]byte, error) {
	return Outbound(EventTypingStart, joinPayload{SessionID: sessionID})
}

func NewTypingStop(sessionID int64) ([]byte, error) {
	return Outbound(EventTypingStop, joinPayload{SessionID: sessionID})
}
