package notification

import (
	"time"
)

// Category represents notification category
type Category string

const (
	CategorySystem  Category = "system"  // platform announcements, verification outcomes
	CategoryBooking Category = "booking" // booking created / confirmed / cancelled
	CategoryPayment Category = "payment" // payment captured / refunded
	CategoryReview  Category = "review"  // new review on a listed vehicle
)

// Notification is a single user notification as delivered by the API,
// either inside a REST page or as a live push event.
type Notification struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Body            string     `json:"body,omitempty"`
	Category        Category   `json:"type"`
	IsRead          bool       `json:"is_read"`
	RelatedEntityID *int64     `json:"related_entity_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
}

// MarkAsRead marks the notification as read with a timestamp.
func (n *Notification) MarkAsRead() {
	if n.IsRead {
		return
	}
	n.IsRead = true
	now := time.Now()
	n.ReadAt = &now
}
