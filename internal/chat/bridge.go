package chat

import (
	"log"
	"strings"
	"sync"
)

// SessionState is the lifecycle of the currently selected chat session.
type SessionState string

const (
	SessionIdle    SessionState = "idle"
	SessionJoining SessionState = "joining"
	SessionActive  SessionState = "active"
	SessionEnded   SessionState = "ended"
)

// Bridge buffers messages for the admin hand-off chat: a human agent joining
// an AI conversation mid-session. It keeps one per-session message buffer,
// tracks the join/leave state machine and the other party's typing state.
//
// The buffer is append-only once established: the server returns history in
// order and live messages append after it, so no re-sorting is needed.
// Messages are never locally echoed; the canonical message enters the buffer
// only via the server's broadcast, so it always carries the server-assigned
// message id.
type Bridge struct {
	conn   Conn
	typing *TypingNotifier

	// localSender is filtered out of the typing auto-clear: only a message
	// from the other party cancels a stale "still typing" bubble.
	localSender Sender

	mu          sync.Mutex
	sessionID   int64
	state       SessionState
	messages    []Message
	seen        map[int64]struct{}
	highWater   int64
	otherTyping bool
}

func NewBridge(conn Conn, typing *TypingNotifier) *Bridge {
	return &Bridge{
		conn:        conn,
		typing:      typing,
		localSender: SenderAdmin,
		state:       SessionIdle,
		seen:        make(map[int64]struct{}),
	}
}

// Join selects a session. An already-joined session is fully left first
// (leave is emitted so server-side presence and typing state are cleaned
// up); the prior buffer is dropped, buffers are never merged across
// sessions.
func (b *Bridge) Join(sessionID int64) error {
	b.mu.Lock()
	if b.sessionID == sessionID && (b.state == SessionJoining || b.state == SessionActive) {
		b.mu.Unlock()
		return nil
	}
	prev := int64(0)
	if b.state == SessionJoining || b.state == SessionActive {
		prev = b.sessionID
	}
	b.sessionID = sessionID
	b.state = SessionJoining
	b.messages = nil
	b.seen = make(map[int64]struct{})
	b.highWater = 0
	b.otherTyping = false
	b.mu.Unlock()

	b.typing.Cancel()
	if prev != 0 {
		if err := b.conn.LeaveSession(prev); err != nil {
			log.Printf("chat leave failed session_id=%d err=%v", prev, err)
		}
	}
	if err := b.conn.JoinSession(sessionID); err != nil {
		// The server never saw the join request. Roll back to idle so a
		// retry with the same session id is not swallowed by the no-op
		// guard above.
		b.mu.Lock()
		if b.sessionID == sessionID && b.state == SessionJoining {
			b.state = SessionIdle
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

// Leave exits the current session without joining another (widget closed or
// a different view selected).
func (b *Bridge) Leave() error {
	b.mu.Lock()
	if b.state != SessionJoining && b.state != SessionActive {
		b.mu.Unlock()
		return nil
	}
	sessionID := b.sessionID
	b.state = SessionIdle
	b.otherTyping = false
	b.mu.Unlock()

	b.typing.Cancel()
	return b.conn.LeaveSession(sessionID)
}

// SendMessage emits a chat message for the session. The message is not
// echoed into the local buffer; it arrives back through the server
// broadcast with its assigned message id.
func (b *Bridge) SendMessage(sessionID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	b.mu.Lock()
	if b.state == SessionIdle {
		b.mu.Unlock()
		return ErrNoSession
	}
	if b.state == SessionEnded {
		b.mu.Unlock()
		return ErrSessionEnded
	}
	if b.sessionID != sessionID {
		b.mu.Unlock()
		return ErrWrongSession
	}
	b.mu.Unlock()

	if err := b.conn.SendChatMessage(sessionID, text); err != nil {
		return err
	}
	b.typing.MessageSent(sessionID)
	return nil
}

// End asks the server to end the session for both parties.
func (b *Bridge) End(sessionID int64) error {
	b.mu.Lock()
	if b.sessionID != sessionID || (b.state != SessionJoining && b.state != SessionActive) {
		b.mu.Unlock()
		return ErrWrongSession
	}
	b.mu.Unlock()
	return b.conn.EndSession(sessionID)
}

// Keystroke reports local typing activity for the active session.
func (b *Bridge) Keystroke() {
	b.mu.Lock()
	if b.state != SessionActive && b.state != SessionJoining {
		b.mu.Unlock()
		return
	}
	sessionID := b.sessionID
	b.mu.Unlock()
	b.typing.Keystroke(sessionID)
}

// HandleHistory merges a history page into the buffer, deduplicating by
// message id. A history page for the joining session activates it; a late
// replay of already-seen messages changes nothing.
func (b *Bridge) HandleHistory(sessionID int64, msgs []Message) {
	b.mu.Lock()
	if sessionID != b.sessionID || (b.state != SessionJoining && b.state != SessionActive) {
		b.mu.Unlock()
		return
	}
	for _, m := range msgs {
		b.appendLocked(m)
	}
	activated := b.state == SessionJoining
	if activated {
		b.state = SessionActive
	}
	since := b.sinceLocked()
	b.mu.Unlock()

	if activated {
		// Close the race between "joined" and "history requested": anything
		// sent in the join window is re-fetched above the high-water mark.
		b.requestHistory(sessionID, since)
	}
}

// HandleJoined processes the join confirmation. Whichever of the
// confirmation and the first history page arrives first activates the
// session.
func (b *Bridge) HandleJoined(sessionID int64) {
	b.mu.Lock()
	if sessionID != b.sessionID || b.state != SessionJoining {
		b.mu.Unlock()
		return
	}
	b.state = SessionActive
	since := b.sinceLocked()
	b.mu.Unlock()

	b.requestHistory(sessionID, since)
}

// HandleMessage appends a live message. A message from the other party
// clears the typing indicator in the same tick; no separate stop signal
// is needed for the bubble to go away.
func (b *Bridge) HandleMessage(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m.SessionID != b.sessionID || (b.state != SessionJoining && b.state != SessionActive) {
		return
	}
	b.appendLocked(m)
	if m.Sender != b.localSender {
		b.otherTyping = false
	}
}

// HandleTyping updates the other party's typing state for the active
// session. Signals for other sessions are ignored.
func (b *Bridge) HandleTyping(sessionID int64, isTyping bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sessionID != b.sessionID || b.state != SessionActive {
		return
	}
	b.otherTyping = isTyping
}

// HandleSessionEnded moves the current session to its terminal state, e.g.
// after an admin "/end" command from either side.
func (b *Bridge) HandleSessionEnded(sessionID int64) {
	b.mu.Lock()
	if sessionID != b.sessionID || (b.state != SessionJoining && b.state != SessionActive) {
		b.mu.Unlock()
		return
	}
	b.state = SessionEnded
	b.otherTyping = false
	b.mu.Unlock()

	b.typing.Cancel()
}

// State returns the state of the currently selected session.
func (b *Bridge) State() SessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SessionID returns the currently selected session id, 0 when idle.
func (b *Bridge) SessionID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// Messages returns a copy of the session buffer in arrival order.
func (b *Bridge) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// IsOtherPartyTyping reports the time-boxed typing state of the other party.
func (b *Bridge) IsOtherPartyTyping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.otherTyping
}

// HighWater returns the largest message id seen in the current session.
func (b *Bridge) HighWater() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highWater
}

// Reset drops all session state. Called on sign-out.
func (b *Bridge) Reset() {
	b.mu.Lock()
	b.sessionID = 0
	b.state = SessionIdle
	b.messages = nil
	b.seen = make(map[int64]struct{})
	b.highWater = 0
	b.otherTyping = false
	b.mu.Unlock()
	b.typing.Cancel()
}

func (b *Bridge) appendLocked(m Message) {
	if _, ok := b.seen[m.MessageID]; ok {
		return
	}
	b.messages = append(b.messages, m)
	b.seen[m.MessageID] = struct{}{}
	if m.MessageID > b.highWater {
		b.highWater = m.MessageID
	}
}

func (b *Bridge) sinceLocked() *int64 {
	if b.highWater == 0 {
		return nil
	}
	hw := b.highWater
	return &hw
}

func (b *Bridge) requestHistory(sessionID int64, since *int64) {
	if err := b.conn.RequestHistory(sessionID, since); err != nil {
		log.Printf("chat history request failed session_id=%d err=%v", sessionID, err)
	}
}
