package live

import (
	"context"
	"log"
	"sync"

	"motorent/internal/chat"
	"motorent/internal/config"
	"motorent/internal/notification"
	"motorent/internal/realtime"
)

// Service composes the realtime client core: one connection manager, one
// notification store and one chat bridge, wired so inbound events route to
// the right consumer. Construct one per authenticated session and inject it
// into consumers; the type itself carries no globals.
type Service struct {
	cfg     *config.Config
	manager *realtime.Manager
	store   *notification.Store
	bridge  *chat.Bridge

	mu        sync.Mutex
	authToken string
	subs      []realtime.SubscriptionToken
	stateSub  realtime.SubscriptionToken
}

func New(cfg *config.Config) *Service {
	s := &Service{cfg: cfg}
	s.manager = realtime.NewManager(cfg)
	client := notification.NewClient(cfg.APIBaseURL, s.currentToken, cfg.HTTPTimeout)
	s.store = notification.NewStore(client, cfg.PageLimit)
	typing := chat.NewTypingNotifier(s.manager, cfg.TypingIdle)
	s.bridge = chat.NewBridge(s.manager, typing)
	return s
}

// SignIn connects the event stream for the identity and routes inbound
// events to the store and bridge. Safe to call again with the same identity
// (the underlying connect is a no-op then).
func (s *Service) SignIn(ctx context.Context, identity int64, authToken string) error {
	s.mu.Lock()
	s.authToken = authToken
	s.mu.Unlock()

	if err := s.manager.Connect(ctx, identity, authToken); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 {
		return nil
	}

	s.subs = []realtime.SubscriptionToken{
		s.manager.Subscribe(realtime.KindNewNotification, func(ev realtime.Event) {
			s.store.ApplyPushed(ev.(realtime.NewNotification).Notification)
		}),
		s.manager.Subscribe(realtime.KindCountUpdate, func(ev realtime.Event) {
			s.store.ApplyCountUpdate(ev.(realtime.CountUpdate).UnreadCount)
		}),
		s.manager.Subscribe(realtime.KindMarkedRead, func(ev realtime.Event) {
			s.store.ApplyMarkedRead(ev.(realtime.MarkedRead).ID)
		}),
		s.manager.Subscribe(realtime.KindDeleted, func(ev realtime.Event) {
			s.store.ApplyDeleted(ev.(realtime.Deleted).ID)
		}),
		s.manager.Subscribe(realtime.KindNewChatMessage, func(ev realtime.Event) {
			s.bridge.HandleMessage(ev.(realtime.NewChatMessage).Message)
		}),
		s.manager.Subscribe(realtime.KindChatHistory, func(ev realtime.Event) {
			page := ev.(realtime.ChatHistoryPage)
			s.bridge.HandleHistory(page.SessionID, page.Messages)
		}),
		s.manager.Subscribe(realtime.KindTyping, func(ev realtime.Event) {
			sig := ev.(realtime.TypingSignal)
			s.bridge.HandleTyping(sig.SessionID, sig.IsTyping)
		}),
		s.manager.Subscribe(realtime.KindSessionJoined, func(ev realtime.Event) {
			s.bridge.HandleJoined(ev.(realtime.SessionJoined).SessionID)
		}),
		s.manager.Subscribe(realtime.KindSessionEnded, func(ev realtime.Event) {
			s.bridge.HandleSessionEnded(ev.(realtime.SessionEnded).SessionID)
		}),
	}

	// Push delivery may stop on transport loss; the store then degrades to
	// last-known REST state, nothing to clear here.
	s.stateSub = s.manager.OnStateChange(func(st realtime.Status) {
		log.Printf("live state=%s reason=%q", st.State, st.Reason)
	})
	return nil
}

// SignOut tears the connection down and clears all dependent state. Must be
// called on logout or when a session refresh fails for good. Idempotent.
func (s *Service) SignOut() {
	s.mu.Lock()
	subs := s.subs
	stateSub := s.stateSub
	s.subs = nil
	s.stateSub = ""
	s.authToken = ""
	s.mu.Unlock()

	s.manager.Disconnect()
	for _, tok := range subs {
		s.manager.Unsubscribe(tok)
	}
	if stateSub != "" {
		s.manager.OffStateChange(stateSub)
	}
	s.store.Clear()
	s.bridge.Reset()
}

// Manager exposes the connection manager for state observation.
func (s *Service) Manager() *realtime.Manager { return s.manager }

// Store exposes the notification store for read-only observers and
// user-initiated mutations.
func (s *Service) Store() *notification.Store { return s.store }

// Bridge exposes the chat session bridge.
func (s *Service) Bridge() *chat.Bridge { return s.bridge }

func (s *Service) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authToken
}
