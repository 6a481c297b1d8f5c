package entity

import (
	"encoding/json"
	"time"

	"github.com/garyjia/receivables-portal/internal/domain/workflow"
)

// OutboxEntry is a side effect recorded alongside a bill mutation and
// delivered after the mutation commits
type OutboxEntry struct {
	ID          string          `json:"id"`
	BillID      string          `json:"bill_id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// RecipientSelector targets either one user or every user of a role cohort.
// A cohort selector with a ScopeID narrows the cohort, e.g. the officers of one MDA.
type RecipientSelector struct {
	UserID  string        `json:"user_id,omitempty"`
	Role    workflow.Role `json:"role,omitempty"`
	ScopeID string        `json:"scope_id,omitempty"`
}

// IsCohort reports whether the selector targets a role cohort
func (r RecipientSelector) IsCohort() bool {
	return r.UserID == "" && r.Role != ""
}

// NotifyPayload is the outbox payload for a notification fan-out
type NotifyPayload struct {
	Targets []RecipientSelector `json:"targets"`
	Title   string              `json:"title"`
	Message string              `json:"message"`
	Kind    string              `json:"kind"`
}

// ActivityPayload is the outbox payload for an activity record
type ActivityPayload struct {
	ActorUserID string `json:"actor_user_id"`
	Action      string `json:"action"`
	Details     string `json:"details,omitempty"`
}

// DeedPayload is the outbox payload for deed creation on certification
type DeedPayload struct {
	SupplierID    string            `json:"supplier_id"`
	MDAID         string            `json:"mda_id"`
	SPVID         string            `json:"spv_id,omitempty"`
	Principal     string            `json:"principal"`
	DiscountRate  string            `json:"discount_rate,omitempty"`
	PurchasePrice string            `json:"purchase_price,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
