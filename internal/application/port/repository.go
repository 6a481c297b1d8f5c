package port

import (
	"context"
	"errors"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
)

// Store sentinel errors shared by every persistence adapter
var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record changed concurrently")
	ErrDuplicate = errors.New("duplicate record")
)

// BillFilter selects bills for projections. Zero values do not filter.
type BillFilter struct {
	Statuses               []workflow.State
	MDAID                  string
	SupplierID             string
	SPVID                  string
	LastRejectedBySupplier *bool
	Limit                  int
	Offset                 int
}

// BillRepository defines persistence operations for Bill
type BillRepository interface {
	// Create stores a new bill. ErrDuplicate when the supplier already
	// submitted the same invoice number.
	Create(ctx context.Context, bill *entity.Bill) error

	// GetByID returns the bill with its full status history or ErrNotFound
	GetByID(ctx context.Context, id string) (*entity.Bill, error)

	// Query returns bills matching the filter, newest first
	Query(ctx context.Context, filter BillFilter) ([]*entity.Bill, error)

	// CountByStatus groups matching bills by status
	CountByStatus(ctx context.Context, filter BillFilter) (map[workflow.State]int, error)

	// CompareAndSwap persists bill only if the stored row still has the
	// expected status and bill.Version. The final history entry of bill is
	// appended. Returns ErrConflict when the precondition fails, ErrDuplicate
	// when the certificate number is taken. bill.Version is bumped on success.
	CompareAndSwap(ctx context.Context, expected workflow.State, bill *entity.Bill) error

	// SetDeedID records the external deed reference without touching status
	SetDeedID(ctx context.Context, billID, deedID string) error

	// CertificateExists reports whether another bill holds the certificate number
	CertificateExists(ctx context.Context, certificateNumber, excludeBillID string) (bool, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	InsertBatch(ctx context.Context, notifications []*entity.Notification) error
	ListByRecipient(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
	// MarkRead returns ErrNotFound unless the notification belongs to recipientID
	MarkRead(ctx context.Context, id, recipientID string) error
}

// ActivityRepository is append-only
type ActivityRepository interface {
	Append(ctx context.Context, entry *entity.ActivityLogEntry) error
	ListByBill(ctx context.Context, billID string) ([]*entity.ActivityLogEntry, error)
}

// UserRepository resolves portal users and role cohorts
type UserRepository interface {
	Upsert(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	// ListByRole returns users of a role. A non-empty scopeID narrows the cohort.
	ListByRole(ctx context.Context, role workflow.Role, scopeID string) ([]*entity.User, error)
}

// OutboxRepository stores side effects written with a bill mutation
type OutboxRepository interface {
	Enqueue(ctx context.Context, entries []*entity.OutboxEntry) error
	ListPendingByBill(ctx context.Context, billID string) ([]*entity.OutboxEntry, error)
	// ListRetryable returns pending or failed entries with fewer than maxAttempts
	// attempts, plus processing entries whose claim lease has expired
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*entity.OutboxEntry, error)
	// Claim moves a pending, failed or abandoned entry to processing. It reports
	// false when another runner holds the entry or it is already finished.
	Claim(ctx context.Context, id string) (bool, error)
	// MarkDone finishes a claimed entry. ErrConflict when the claim was lost.
	MarkDone(ctx context.Context, id string) error
	// MarkFailed releases a claimed entry, increments attempts and records the
	// error. dead parks the entry. ErrConflict when the claim was lost.
	MarkFailed(ctx context.Context, id, lastError string, dead bool) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
