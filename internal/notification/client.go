package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TokenSource yields the current bearer token for outgoing requests, so a
// refreshed token is picked up without rebuilding the client.
type TokenSource func() string

// Filters narrows the notification list endpoint.
type Filters struct {
	Category *Category
	IsRead   *bool
}

// Pagination is the cursor block returned by the list endpoint.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// ListResponse is one REST page of notification history.
type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	Pagination    Pagination     `json:"pagination"`
	UnreadCount   int64          `json:"unread_count"`
}

// Stats is the aggregate view served by /notifications/stats.
type Stats struct {
	Total  int64            `json:"total"`
	Unread int64            `json:"unread"`
	ByType map[string]int64 `json:"by_type"`
}

type markReadResponse struct {
	Message      string        `json:"message"`
	Notification *Notification `json:"notification"`
}

type markAllResponse struct {
	Message      string `json:"message"`
	UpdatedCount int64  `json:"updated_count"`
}

// Client wraps the notification REST API. The API itself is a black box;
// only the shapes above are relied on.
type Client struct {
	baseURL string
	token   TokenSource
	http    *http.Client
}

func NewClient(baseURL string, token TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// List fetches one page of notification history.
func (c *Client) List(ctx context.Context, page, limit int, filters Filters) (*ListResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if filters.Category != nil {
		q.Set("type", string(*filters.Category))
	}
	if filters.IsRead != nil {
		q.Set("is_read", strconv.FormatBool(*filters.IsRead))
	}

	var resp ListResponse
	if err := c.do(ctx, http.MethodGet, "/notifications?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkRead marks one notification as read on the server.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	var resp markReadResponse
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/notifications/%d/read", id), &resp)
}

// MarkAllRead marks every notification as read, returning how many changed.
func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var resp markAllResponse
	if err := c.do(ctx, http.MethodPatch, "/notifications/read-all", &resp); err != nil {
		return 0, err
	}
	return resp.UpdatedCount, nil
}

// Delete removes one notification on the server.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil)
}

// GetStats fetches the aggregate counters, used to reconcile badge drift.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var resp Stats
	if err := c.do(ctx, http.MethodGet, "/notifications/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		var body struct {
			Message string `json:"message"`
			Error   struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(res.Body).Decode(&body) == nil {
			apiErr.Message = body.Message
			if apiErr.Message == "" {
				apiErr.Message = body.Error.Message
			}
		}
		return apiErr
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
