package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"motorent/internal/config"
	"motorent/internal/pkg/token"
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrSendBufferFull = errors.New("send buffer full")
)

// State of the live connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Status is the observable connection state plus an error reason when
// State == StateError.
type Status struct {
	State  State
	Reason string
}

// Handler receives normalized inbound events.
type Handler func(Event)

// StateHandler receives connection state transitions.
type StateHandler func(Status)

// SubscriptionToken identifies one registered handler so unsubscribing is
// structural rather than convention-based.
type SubscriptionToken string

// session is one live dialed connection with its pumps.
type session struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func (s *session) close() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Manager owns at most one live event-stream connection per authenticated
// identity. Multiple logical consumers (notification badge, chat widget)
// share it through Subscribe rather than dialing their own connections.
type Manager struct {
	cfg    *config.Config
	dialer *websocket.Dialer

	mu        sync.Mutex
	sess      *session
	identity  int64
	status    Status
	subs      map[Kind]map[SubscriptionToken]Handler
	stateSubs map[SubscriptionToken]StateHandler
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:       cfg,
		dialer:    websocket.DefaultDialer,
		status:    Status{State: StateDisconnected},
		subs:      make(map[Kind]map[SubscriptionToken]Handler),
		stateSubs: make(map[SubscriptionToken]StateHandler),
	}
}

// Connect dials the event stream for the given identity. The bearer token is
// passed as a query parameter at handshake time and is not re-sent per
// message. No-op if a connection for the same identity is already live.
//
// A refreshed token does not restart a live connection; the new token takes
// effect on the next explicit Connect after a Disconnect.
func (m *Manager) Connect(ctx context.Context, identity int64, authToken string) error {
	m.mu.Lock()
	if m.sess != nil && m.identity == identity {
		m.mu.Unlock()
		return nil
	}
	old := m.sess
	m.sess = nil
	m.mu.Unlock()

	// Switching identities tears the previous connection down first.
	if old != nil {
		old.close()
	}

	if m.cfg.StreamURL == "" {
		return m.fail("stream url not configured", nil)
	}
	if authToken == "" {
		return m.fail("missing auth token", nil)
	}
	claims, err := token.Peek(authToken)
	if err != nil {
		return m.fail("invalid auth token", err)
	}
	if claims.UserID != identity {
		return m.fail("token does not match identity", nil)
	}

	m.setStatus(Status{State: StateConnecting})

	u, err := url.Parse(m.cfg.StreamURL)
	if err != nil {
		return m.fail("invalid stream url", err)
	}
	q := u.Query()
	q.Set("token", authToken)
	u.RawQuery = q.Encode()

	conn, resp, err := m.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return m.fail("handshake failed", err)
	}

	s := &session{
		conn: conn,
		send: make(chan []byte, m.cfg.SendBuffer),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.sess = s
	m.identity = identity
	m.mu.Unlock()
	m.setStatus(Status{State: StateConnected})
	log.Printf("ws connect user_id=%d url=%s", identity, m.cfg.StreamURL)

	go m.writePump(s)
	go m.readPump(s, identity)
	return nil
}

// Disconnect tears down the live connection and releases the read/write
// pumps. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	s := m.sess
	m.sess = nil
	identity := m.identity
	m.mu.Unlock()

	if s == nil {
		return
	}
	s.close()
	m.setStatus(Status{State: StateDisconnected})
	log.Printf("ws disconnect user_id=%d", identity)
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers a handler for one event kind (KindAny for all).
// Handlers run sequentially on the read pump goroutine, in arrival order.
func (m *Manager) Subscribe(kind Kind, h Handler) SubscriptionToken {
	tok := SubscriptionToken(uuid.NewString())
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[kind] == nil {
		m.subs[kind] = make(map[SubscriptionToken]Handler)
	}
	m.subs[kind][tok] = h
	return tok
}

// Unsubscribe removes a handler registered with Subscribe.
func (m *Manager) Unsubscribe(tok SubscriptionToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, handlers := range m.subs {
		delete(handlers, tok)
	}
}

// OnStateChange registers an observer for connection state transitions.
func (m *Manager) OnStateChange(h StateHandler) SubscriptionToken {
	tok := SubscriptionToken(uuid.NewString())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateSubs[tok] = h
	return tok
}

// OffStateChange removes a state observer.
func (m *Manager) OffStateChange(tok SubscriptionToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stateSubs, tok)
}

// Emit queues a client->server frame. Non-blocking: a full send buffer
// returns ErrSendBufferFull rather than stalling the caller.
func (m *Manager) Emit(frame []byte) error {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

func (m *Manager) fail(reason string, err error) error {
	m.setStatus(Status{State: StateError, Reason: reason})
	if err != nil {
		log.Printf("ws error reason=%q err=%v", reason, err)
		return fmt.Errorf("%s: %w", reason, err)
	}
	log.Printf("ws error reason=%q", reason)
	return errors.New(reason)
}

func (m *Manager) setStatus(st Status) {
	m.mu.Lock()
	m.status = st
	observers := make([]StateHandler, 0, len(m.stateSubs))
	for _, h := range m.stateSubs {
		observers = append(observers, h)
	}
	m.mu.Unlock()
	for _, h := range observers {
		h(st)
	}
}

// dispatch fans one event out to kind-specific and KindAny subscribers.
// Handler maps are snapshotted so handlers may subscribe/unsubscribe freely.
func (m *Manager) dispatch(ev Event) {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.subs[ev.Kind()])+len(m.subs[KindAny]))
	for _, h := range m.subs[ev.Kind()] {
		handlers = append(handlers, h)
	}
	for _, h := range m.subs[KindAny] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (m *Manager) readPump(s *session, identity int64) {
	defer func() {
		s.close()
		m.mu.Lock()
		current := m.sess == s
		if current {
			m.sess = nil
		}
		m.mu.Unlock()
		if current {
			m.setStatus(Status{State: StateDisconnected})
			log.Printf("ws closed user_id=%d", identity)
		}
	}()

	s.conn.SetReadLimit(m.cfg.MaxFrameBytes)
	s.conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("ws read error user_id=%d err=%v", identity, err)
			}
			return
		}

		ev, err := Normalize(raw)
		if err != nil {
			// One bad event must never break the stream.
			log.Printf("ws drop event user_id=%d err=%v", identity, err)
			continue
		}
		m.dispatch(ev)
	}
}

func (m *Manager) writePump(s *session) {
	pingPeriod := m.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
