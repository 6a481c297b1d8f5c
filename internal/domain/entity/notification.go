package entity

import "time"

// Notification is a message delivered to a single portal user
type Notification struct {
	ID              string    `json:"id"`
	RecipientUserID string    `json:"recipient_user_id"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Kind            string    `json:"kind"`
	RelatedBillID   string    `json:"related_bill_id,omitempty"`
	Read            bool      `json:"read"`
	CreatedAt       time.Time `json:"created_at"`
}
