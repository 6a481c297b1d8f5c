package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
)

type notificationRepo struct {
	s *Store
}

func (r *notificationRepo) InsertBatch(ctx context.Context, notifications []*entity.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, n := range notifications {
		cp := *n
		r.s.notifications = append(r.s.notifications, &cp)
	}
	return nil
}

func (r *notificationRepo) ListByRecipient(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.Notification
	// Newest first
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		n := r.s.notifications[i]
		if n.RecipientUserID != userID || (unreadOnly && n.Read) {
			continue
		}
		cp := *n
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id, recipientID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, n := range r.s.notifications {
		if n.ID == id && n.RecipientUserID == recipientID {
			n.Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, port.ErrNotFound)
}

type activityRepo struct {
	s *Store
}

func (r *activityRepo) Append(ctx context.Context, entry *entity.ActivityLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *entry
	r.s.activity = append(r.s.activity, &cp)
	return nil
}

func (r *activityRepo) ListByBill(ctx context.Context, billID string) ([]*entity.ActivityLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.ActivityLogEntry
	for _, e := range r.s.activity {
		if e.RelatedBillID == billID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type userRepo struct {
	s *Store
}

func (r *userRepo) Upsert(ctx context.Context, user *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, port.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) ListByRole(ctx context.Context, role workflow.Role, scopeID string) ([]*entity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.User
	for _, u := range r.s.users {
		if u.Role != role || (scopeID != "" && u.ScopeID != scopeID) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type outboxRepo struct {
	s *Store
}

func (r *outboxRepo) Enqueue(ctx context.Context, entries []*entity.OutboxEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range entries {
		cp := *e
		if cp.Status == "" {
			cp.Status = entity.OutboxStatusPending
		}
		r.s.outbox = append(r.s.outbox, &cp)
	}
	return nil
}

func (r *outboxRepo) ListPendingByBill(ctx context.Context, billID string) ([]*entity.OutboxEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.OutboxEntry
	for _, e := range r.s.outbox {
		if e.BillID == billID && e.Status == entity.OutboxStatusPending {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *outboxRepo) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*entity.OutboxEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	now := time.Now().UTC()
	var out []*entity.OutboxEntry
	for _, e := range r.s.outbox {
		if !claimable(e, now) || e.Attempts >= maxAttempts {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) Claim(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	for _, e := range r.s.outbox {
		if e.ID != id {
			continue
		}
		if !claimable(e, now) {
			return false, nil
		}
		e.Status = entity.OutboxStatusProcessing
		e.ClaimedAt = &now
		return true, nil
	}
	return false, nil
}

func (r *outboxRepo) MarkDone(ctx context.Context, id string) error {
	return r.update(id, func(e *entity.OutboxEntry) {
		now := time.Now().UTC()
		e.Status = entity.OutboxStatusDone
		e.Attempts++
		e.LastError = ""
		e.ProcessedAt = &now
	})
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id, lastError string, dead bool) error {
	return r.update(id, func(e *entity.OutboxEntry) {
		e.Attempts++
		e.LastError = lastError
		e.ClaimedAt = nil
		e.Status = entity.OutboxStatusFailed
		if dead {
			e.Status = entity.OutboxStatusDead
		}
	})
}

// claimable reports whether e is waiting or its claim has expired
func claimable(e *entity.OutboxEntry, now time.Time) bool {
	switch e.Status {
	case entity.OutboxStatusPending, entity.OutboxStatusFailed:
		return true
	case entity.OutboxStatusProcessing:
		return e.ClaimedAt != nil && e.ClaimedAt.Before(now.Add(-entity.OutboxClaimLease))
	default:
		return false
	}
}

func (r *outboxRepo) update(id string, fn func(e *entity.OutboxEntry)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range r.s.outbox {
		if e.ID == id && e.Status == entity.OutboxStatusProcessing {
			fn(e)
			return nil
		}
	}
	return fmt.Errorf("outbox entry %s is not claimed: %w", id, port.ErrConflict)
}
