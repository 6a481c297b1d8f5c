package entity

import "time"

// ActivityLogEntry is an immutable record of who did what to which bill
type ActivityLogEntry struct {
	ID            string    `json:"id"`
	ActorUserID   string    `json:"actor_user_id"`
	Action        string    `json:"action"`
	RelatedBillID string    `json:"related_bill_id,omitempty"`
	Details       string    `json:"details,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
