package notification

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves the notification REST contract from memory.
type fakeAPI struct {
	mu            sync.Mutex
	items         []Notification // newest first, like the real endpoint
	unread        int64
	failMutations bool
	listCalls     int
	page2Gate     chan struct{} // when set, page>1 requests park here
	page2Entered  chan struct{}
	srv           *httptest.Server
}

func newFakeAPI(t *testing.T, items []Notification, unread int64) *fakeAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := &fakeAPI{items: items, unread: unread}
	r := gin.New()

	r.GET("/notifications", func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

		api.mu.Lock()
		gate, entered := api.page2Gate, api.page2Entered
		api.mu.Unlock()
		if page > 1 && gate != nil {
			entered <- struct{}{}
			<-gate
		}

		api.mu.Lock()
		defer api.mu.Unlock()
		api.listCalls++

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		start := (page - 1) * limit
		end := start + limit
		if start > len(api.items) {
			start = len(api.items)
		}
		if end > len(api.items) {
			end = len(api.items)
		}
		pages := (len(api.items) + limit - 1) / limit

		c.JSON(http.StatusOK, gin.H{
			"notifications": api.items[start:end],
			"pagination": gin.H{
				"page":  page,
				"limit": limit,
				"total": len(api.items),
				"pages": pages,
			},
			"unread_count": api.unread,
		})
	})

	r.PATCH("/notifications/:id/read", func(c *gin.Context) {
		api.mu.Lock()
		defer api.mu.Unlock()
		if api.failMutations {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "boom"})
			return
		}
		id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
		for i := range api.items {
			if api.items[i].ID == id {
				api.items[i].MarkAsRead()
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
	})

	r.PATCH("/notifications/read-all", func(c *gin.Context) {
		api.mu.Lock()
		defer api.mu.Unlock()
		if api.failMutations {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "boom"})
			return
		}
		var updated int64
		for i := range api.items {
			if !api.items[i].IsRead {
				api.items[i].MarkAsRead()
				updated++
			}
		}
		api.unread = 0
		c.JSON(http.StatusOK, gin.H{"message": "all marked as read", "updated_count": updated})
	})

	r.DELETE("/notifications/:id", func(c *gin.Context) {
		api.mu.Lock()
		defer api.mu.Unlock()
		if api.failMutations {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "boom"})
			return
		}
		id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
		for i := range api.items {
			if api.items[i].ID == id {
				api.items = append(api.items[:i], api.items[i+1:]...)
				break
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})

	api.srv = httptest.NewServer(r)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listCalls
}

func makeNotifications(n int, unreadEvery int) []Notification {
	items := make([]Notification, 0, n)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		item := Notification{
			ID:        int64(n - i), // newest first
			Title:     fmt.Sprintf("notification %d", n-i),
			Category:  CategoryBooking,
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		}
		if unreadEvery == 0 || i%unreadEvery != 0 {
			item.MarkAsRead()
		}
		items = append(items, item)
	}
	return items
}

func newTestStore(t *testing.T, api *fakeAPI) *Store {
	t.Helper()
	client := NewClient(api.srv.URL, func() string { return "test-token" }, 5*time.Second)
	return NewStore(client, 20)
}

func countUnread(items []Notification) int64 {
	var n int64
	for _, item := range items {
		if !item.IsRead {
			n++
		}
	}
	return n
}

func TestLoadFirstPageResetsStore(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(25, 5), 5)
	store := newTestStore(t, api)

	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	assert.Len(t, store.Snapshot(), 20)
	assert.Equal(t, int64(5), store.UnreadCount())
	cursor := store.Cursor()
	assert.Equal(t, 1, cursor.Page)
	assert.Equal(t, 2, cursor.TotalPages)
	assert.Equal(t, int64(25), cursor.Total)
}

func TestLoadNextPageAppendsAndDedups(t *testing.T) {
	items := makeNotifications(25, 0)
	api := newFakeAPI(t, items, 0)
	store := newTestStore(t, api)

	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	// A notification living on page 2 arrives over the live stream before
	// the page is fetched. The REST page must not re-add it.
	pushed := items[22]
	store.ApplyPushed(pushed)
	require.Len(t, store.Snapshot(), 21)

	require.NoError(t, store.LoadNextPage(context.Background()))

	snapshot := store.Snapshot()
	assert.Len(t, snapshot, 25)
	seen := make(map[int64]int)
	for _, n := range snapshot {
		seen[n.ID]++
	}
	for id, count := range seen {
		assert.Equalf(t, 1, count, "id %d appears %d times", id, count)
	}
}

func TestLoadNextPageNoOpOnLastPage(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(10, 0), 0)
	store := newTestStore(t, api)

	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))
	before := api.calls()

	require.NoError(t, store.LoadNextPage(context.Background()))
	assert.Equal(t, before, api.calls(), "no request should go out past the last page")
}

func TestStaleNextPageDroppedAfterReload(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(40, 0), 0)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	api.mu.Lock()
	api.page2Gate = make(chan struct{})
	api.page2Entered = make(chan struct{})
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- store.LoadNextPage(context.Background()) }()
	<-api.page2Entered

	// A filter change reloads the first page while page 2 is still in
	// flight. The stale page belongs to the old filter set and must not
	// append when it finally lands.
	isRead := true
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{IsRead: &isRead}))
	before := len(store.Snapshot())

	api.mu.Lock()
	close(api.page2Gate)
	api.page2Gate = nil
	api.mu.Unlock()
	require.NoError(t, <-done)

	assert.Len(t, store.Snapshot(), before)
	assert.Equal(t, 1, store.Cursor().Page)
}

func TestApplyPushedPrependsAndCounts(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(5, 0), 0)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	store.ApplyPushed(Notification{ID: 999, Title: "fresh", Category: CategorySystem, CreatedAt: time.Now()})

	snapshot := store.Snapshot()
	assert.Equal(t, int64(999), snapshot[0].ID, "push inserts at the front")
	assert.Equal(t, int64(1), store.UnreadCount())

	// Idempotent: same id pushed again changes nothing.
	store.ApplyPushed(Notification{ID: 999, Title: "fresh"})
	assert.Len(t, store.Snapshot(), 6)
	assert.Equal(t, int64(1), store.UnreadCount())
}

func TestMarkReadIsIdempotent(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(5, 1), 5)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	require.NoError(t, store.MarkRead(context.Background(), 3))
	afterFirst := store.Snapshot()
	firstUnread := store.UnreadCount()

	require.NoError(t, store.MarkRead(context.Background(), 3))
	assert.Equal(t, afterFirst, store.Snapshot())
	assert.Equal(t, firstUnread, store.UnreadCount())
	assert.Equal(t, countUnread(store.Snapshot()), store.UnreadCount())
}

func TestMarkReadUnknownID(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(3, 0), 0)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	assert.ErrorIs(t, store.MarkRead(context.Background(), 12345), ErrNotFound)
}

func TestMarkReadFailureKeepsOptimisticState(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(5, 1), 5)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))
	api.failMutations = true

	err := store.MarkRead(context.Background(), 2)
	require.Error(t, err)

	// Known trade-off: the optimistic update stays, the error is surfaced.
	for _, n := range store.Snapshot() {
		if n.ID == 2 {
			assert.True(t, n.IsRead)
			assert.NotNil(t, n.ReadAt)
		}
	}
	assert.Equal(t, int64(4), store.UnreadCount())
	assert.Error(t, store.LastError())
}

func TestMarkAllRead(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(8, 2), 4)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	require.NoError(t, store.MarkAllRead(context.Background()))

	assert.Equal(t, int64(0), store.UnreadCount())
	for _, n := range store.Snapshot() {
		assert.True(t, n.IsRead)
		assert.NotNil(t, n.ReadAt)
	}
}

func TestRemoveAdjustsUnread(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(5, 1), 5)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	require.NoError(t, store.Remove(context.Background(), 4))
	assert.Len(t, store.Snapshot(), 4)
	assert.Equal(t, int64(4), store.UnreadCount())
	assert.Equal(t, countUnread(store.Snapshot()), store.UnreadCount())

	assert.ErrorIs(t, store.Remove(context.Background(), 4), ErrNotFound)
}

func TestApplyCountUpdateCorrectsDrift(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(5, 0), 0)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	// Server is authoritative for the aggregate count.
	store.ApplyCountUpdate(12)
	assert.Equal(t, int64(12), store.UnreadCount())

	store.ApplyCountUpdate(-3)
	assert.Equal(t, int64(0), store.UnreadCount(), "negative counts clamp to zero")
}

func TestApplyMarkedReadAndDeletedReconcile(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(5, 1), 5)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	// Another tab marked id 5 read; a push event reconciles this one.
	store.ApplyMarkedRead(5)
	assert.Equal(t, int64(4), store.UnreadCount())

	store.ApplyDeleted(4)
	assert.Len(t, store.Snapshot(), 4)
	assert.Equal(t, int64(3), store.UnreadCount())
	assert.Equal(t, countUnread(store.Snapshot()), store.UnreadCount())
}

func TestClearDropsEverything(t *testing.T) {
	api := newFakeAPI(t, makeNotifications(5, 1), 5)
	store := newTestStore(t, api)
	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))

	store.Clear()

	assert.Empty(t, store.Snapshot())
	assert.Equal(t, int64(0), store.UnreadCount())
	assert.Equal(t, 0, store.Cursor().Page)
	assert.NoError(t, store.LastError())
}

// TestPushThenMarkAllThenPageLoad replays the end-to-end scenario of a badge
// user: a push lands between page loads, everything is marked read, and the
// late REST page containing the pushed id must not duplicate it.
func TestPushThenMarkAllThenPageLoad(t *testing.T) {
	items := makeNotifications(40, 4)
	api := newFakeAPI(t, items, 10)
	store := newTestStore(t, api)

	require.NoError(t, store.LoadFirstPage(context.Background(), Filters{}))
	require.Len(t, store.Snapshot(), 20)

	pushed := Notification{ID: 999, Title: "pushed", Category: CategoryPayment, CreatedAt: time.Now()}
	store.ApplyPushed(pushed)
	assert.Equal(t, int64(11), store.UnreadCount())

	require.NoError(t, store.MarkAllRead(context.Background()))
	assert.Equal(t, int64(0), store.UnreadCount())

	// The pushed notification now also appears in the next REST page.
	api.mu.Lock()
	readPushed := pushed
	readPushed.MarkAsRead()
	api.items = append(api.items[:20], append([]Notification{readPushed}, api.items[20:]...)...)
	api.mu.Unlock()

	require.NoError(t, store.LoadNextPage(context.Background()))

	// 21 in store + 19 genuinely new entries from page 2 (999 deduped).
	snapshot := store.Snapshot()
	assert.Len(t, snapshot, 40)
	seen := make(map[int64]struct{})
	for _, n := range snapshot {
		_, dup := seen[n.ID]
		assert.Falsef(t, dup, "id %d duplicated", n.ID)
		seen[n.ID] = struct{}{}
	}
	assert.Equal(t, int64(0), store.UnreadCount())
}
