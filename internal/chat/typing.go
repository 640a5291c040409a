package chat

import (
	"sync"
	"time"
)

// TypingNotifier throttles the local user's outbound typing signals.
// A start signal fires on the first keystroke after idle; a stop signal
// fires after the idle window with no keystrokes, or immediately on send,
// whichever comes first. One owned timer, cancelled on session leave.
type TypingNotifier struct {
	conn Conn
	idle time.Duration

	mu        sync.Mutex
	sessionID int64
	active    bool
	timer     *time.Timer
	gen       uint64 // bumped on every re-arm; stale timer callbacks check it
}

func NewTypingNotifier(conn Conn, idle time.Duration) *TypingNotifier {
	return &TypingNotifier{conn: conn, idle: idle}
}

// Keystroke records local typing activity for the given session. The first
// keystroke after idle emits typing_start; every keystroke pushes the stop
// timer out by the idle window.
func (t *TypingNotifier) Keystroke(sessionID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active && t.sessionID != sessionID {
		// Switched sessions mid-typing; the old session's presence is
		// cleaned up by the leave notification, just re-arm locally.
		t.stopTimerLocked()
		t.active = false
	}

	if !t.active {
		t.active = true
		t.sessionID = sessionID
		t.conn.TypingStart(sessionID)
	}

	t.stopTimerLocked()
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.idle, func() { t.expire(sessionID, gen) })
}

// MessageSent fires the stop signal immediately, beating the idle timer.
func (t *TypingNotifier) MessageSent(sessionID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || t.sessionID != sessionID {
		return
	}
	t.stopTimerLocked()
	t.active = false
	t.conn.TypingStop(sessionID)
}

// Cancel drops the timer without emitting. Used on session leave, where the
// leave notification already clears typing state server-side.
func (t *TypingNotifier) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
	t.active = false
}

// Active reports whether a typing-start has been emitted without a stop yet.
func (t *TypingNotifier) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *TypingNotifier) expire(sessionID int64, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Stop() can miss a timer that already fired; a keystroke that re-armed
	// in that window bumped the generation, so the late callback is a no-op.
	if !t.active || t.sessionID != sessionID || gen != t.gen {
		return
	}
	t.active = false
	t.conn.TypingStop(sessionID)
}

func (t *TypingNotifier) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
