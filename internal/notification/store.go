package notification

import (
	"context"
	"sync"
	"time"
)

// Cursor tracks REST pagination progress.
type Cursor struct {
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// Store is the in-memory ordered collection of a user's notifications.
// It merges REST page loads with live push events, deduplicates by id and
// keeps the unread counter consistent. Ordering is insertion order, newest
// first; it is never re-sorted, so entries do not jump around when push
// events and REST pages arrive out of strict chronological order.
//
// Mutations are optimistic: MarkRead, MarkAllRead and Remove update local
// state before the server answers, and a server failure does not roll the
// local change back. The failure is surfaced to the caller and via
// LastError instead.
type Store struct {
	client *Client

	mu          sync.Mutex
	items       []Notification
	present     map[int64]struct{}
	unread      int64
	cursor      Cursor
	filters     Filters
	loading     bool
	loadingMore bool
	lastErr     error
	gen         uint64 // bumped when contents are replaced; stale loads check it
}

func NewStore(client *Client, pageLimit int) *Store {
	return &Store{
		client:  client,
		present: make(map[int64]struct{}),
		cursor:  Cursor{Limit: pageLimit},
	}
}

// LoadFirstPage replaces the store contents with page 1 and resets the
// cursor. Used on mount and after sign-in. Single-flight: a call while a
// first-page load is in flight is a no-op.
func (s *Store) LoadFirstPage(ctx context.Context, filters Filters) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	limit := s.cursor.Limit
	gen := s.gen
	s.mu.Unlock()

	resp, err := s.client.List(ctx, 1, limit, filters)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if gen != s.gen {
		// Clear ran while the request was in flight; the result belongs to
		// the torn-down session.
		return nil
	}
	if err != nil {
		// Existing contents stay; observers read the error.
		s.lastErr = err
		return err
	}

	s.gen++
	s.items = make([]Notification, 0, len(resp.Notifications))
	s.present = make(map[int64]struct{}, len(resp.Notifications))
	for _, n := range resp.Notifications {
		if _, ok := s.present[n.ID]; ok {
			continue
		}
		s.items = append(s.items, n)
		s.present[n.ID] = struct{}{}
	}
	s.unread = resp.UnreadCount
	s.filters = filters
	s.cursor = Cursor{
		Page:       resp.Pagination.Page,
		Limit:      resp.Pagination.Limit,
		Total:      resp.Pagination.Total,
		TotalPages: resp.Pagination.Pages,
	}
	s.lastErr = nil
	return nil
}

// LoadNextPage fetches cursor.Page+1 and appends, deduplicating by id: a
// notification that arrived via push between page loads is not re-added when
// the REST page containing it lands. No-op when the last page is already
// loaded or a load is in flight.
func (s *Store) LoadNextPage(ctx context.Context) error {
	s.mu.Lock()
	if s.loadingMore || s.cursor.Page >= s.cursor.TotalPages {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = true
	page := s.cursor.Page + 1
	limit := s.cursor.Limit
	filters := s.filters
	gen := s.gen
	s.mu.Unlock()

	resp, err := s.client.List(ctx, page, limit, filters)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingMore = false
	if gen != s.gen {
		// A first-page reload replaced the contents while this page was in
		// flight; its entries belong to the previous cursor and filters.
		return nil
	}
	if err != nil {
		s.lastErr = err
		return err
	}

	for _, n := range resp.Notifications {
		if _, ok := s.present[n.ID]; ok {
			continue
		}
		s.items = append(s.items, n)
		s.present[n.ID] = struct{}{}
	}
	s.cursor.Page = resp.Pagination.Page
	s.cursor.Total = resp.Pagination.Total
	s.cursor.TotalPages = resp.Pagination.Pages
	s.lastErr = nil
	return nil
}

// ApplyPushed inserts a notification delivered over the live stream.
// Idempotent: an id already in the store is ignored.
func (s *Store) ApplyPushed(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.present[n.ID]; ok {
		return
	}
	s.items = append([]Notification{n}, s.items...)
	s.present[n.ID] = struct{}{}
	s.cursor.Total++
	if !n.IsRead {
		s.unread++
	}
}

// ApplyCountUpdate overwrites the unread counter with the server's
// authoritative aggregate, correcting any local drift.
func (s *Store) ApplyCountUpdate(count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count < 0 {
		count = 0
	}
	s.unread = count
}

// ApplyMarkedRead reconciles a read transition pushed by the server, e.g.
// because another tab or device marked the notification.
func (s *Store) ApplyMarkedRead(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markReadLocked(id)
}

// ApplyDeleted reconciles a deletion pushed by the server.
func (s *Store) ApplyDeleted(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// MarkRead optimistically marks a notification read, then issues the server
// mutation. A second call for an already-read id is a no-op. Server failure
// leaves the optimistic state in place.
func (s *Store) MarkRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	if _, ok := s.present[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	changed := s.markReadLocked(id)
	s.mu.Unlock()
	if !changed {
		return nil
	}

	if err := s.client.MarkRead(ctx, id); err != nil {
		s.setLastError(err)
		return err
	}
	s.setLastError(nil)
	return nil
}

// MarkAllRead optimistically marks every entry read and zeroes the unread
// counter, then issues the server mutation.
func (s *Store) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	now := time.Now()
	for i := range s.items {
		if !s.items[i].IsRead {
			s.items[i].IsRead = true
			s.items[i].ReadAt = &now
		}
	}
	s.unread = 0
	s.mu.Unlock()

	if _, err := s.client.MarkAllRead(ctx); err != nil {
		s.setLastError(err)
		return err
	}
	s.setLastError(nil)
	return nil
}

// Remove optimistically deletes a notification, then issues the server
// mutation.
func (s *Store) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	removed := s.removeLocked(id)
	s.mu.Unlock()
	if !removed {
		return ErrNotFound
	}

	if err := s.client.Delete(ctx, id); err != nil {
		s.setLastError(err)
		return err
	}
	s.setLastError(nil)
	return nil
}

// Snapshot returns a copy of the current entries, newest first.
func (s *Store) Snapshot() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// UnreadCount returns the current unread counter.
func (s *Store) UnreadCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Cursor returns the current pagination cursor.
func (s *Store) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Loading reports whether a first-page or next-page load is in flight.
func (s *Store) Loading() (loading, loadingMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading, s.loadingMore
}

// LastError returns the most recent operation error, nil after a success.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Clear drops all state. Called on sign-out / connection teardown.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := s.cursor.Limit
	s.gen++
	s.items = nil
	s.present = make(map[int64]struct{})
	s.unread = 0
	s.cursor = Cursor{Limit: limit}
	s.filters = Filters{}
	s.loading = false
	s.loadingMore = false
	s.lastErr = nil
}

func (s *Store) markReadLocked(id int64) bool {
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].IsRead {
			return false
		}
		s.items[i].MarkAsRead()
		if s.unread > 0 {
			s.unread--
		}
		return true
	}
	return false
}

func (s *Store) removeLocked(id int64) bool {
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if !s.items[i].IsRead && s.unread > 0 {
			s.unread--
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		delete(s.present, id)
		if s.cursor.Total > 0 {
			s.cursor.Total--
		}
		return true
	}
	return false
}

func (s *Store) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
