package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const outboxColumns = `id, bill_id, kind, payload, status, attempts, last_error, created_at, claimed_at, processed_at`

// OutboxRepository implements port.OutboxRepository
type OutboxRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sqlite.DB, logger *zap.Logger) port.OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Enqueue stores entries in the caller's transaction when there is one
func (r *OutboxRepository) Enqueue(ctx context.Context, entries []*entity.OutboxEntry) error {
	query := `
		INSERT INTO outbox (id, bill_id, kind, payload, status, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		for _, e := range entries {
			status := e.Status
			if status == "" {
				status = entity.OutboxStatusPending
			}
			_, err := r.db.Executor(ctx).ExecContext(ctx, query,
				e.ID,
				e.BillID,
				e.Kind,
				string(e.Payload),
				status,
				e.Attempts,
				e.LastError,
				e.CreatedAt,
			)
			if err != nil {
				r.logger.Error("Failed to enqueue outbox entry",
					zap.String("bill_id", e.BillID),
					zap.String("kind", e.Kind),
					zap.Error(err))
				return fmt.Errorf("failed to enqueue outbox entry: %w", err)
			}
		}
		return nil
	})
}

// ListPendingByBill returns a bill's pending entries in enqueue order
func (r *OutboxRepository) ListPendingByBill(ctx context.Context, billID string) ([]*entity.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox WHERE bill_id = ? AND status = ? ORDER BY seq ASC`
	return r.list(ctx, query, billID, entity.OutboxStatusPending)
}

// ListRetryable returns pending or failed entries below maxAttempts and
// processing entries with an expired claim, oldest first
func (r *OutboxRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*entity.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox
		WHERE attempts < ? AND (status IN (?, ?) OR (status = ? AND claimed_at < ?))
		ORDER BY seq ASC`
	args := []interface{}{
		maxAttempts,
		entity.OutboxStatusPending,
		entity.OutboxStatusFailed,
		entity.OutboxStatusProcessing,
		time.Now().UTC().Add(-entity.OutboxClaimLease),
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// Claim marks an entry processing. Only one caller wins the update.
func (r *OutboxRepository) Claim(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE outbox SET status = ?, claimed_at = ?
		WHERE id = ? AND (status IN (?, ?) OR (status = ? AND claimed_at < ?))`,
		entity.OutboxStatusProcessing, now,
		id, entity.OutboxStatusPending, entity.OutboxStatusFailed,
		entity.OutboxStatusProcessing, now.Add(-entity.OutboxClaimLease))
	if err != nil {
		r.logger.Error("Failed to claim outbox entry", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to claim outbox entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkDone records a delivered entry
func (r *OutboxRepository) MarkDone(ctx context.Context, id string) error {
	return r.update(ctx, id,
		`UPDATE outbox SET status = ?, attempts = attempts + 1, last_error = '', processed_at = ?
		WHERE id = ? AND status = ?`,
		entity.OutboxStatusDone, time.Now().UTC(), id, entity.OutboxStatusProcessing)
}

// MarkFailed records a failed attempt; dead entries are never retried
func (r *OutboxRepository) MarkFailed(ctx context.Context, id, lastError string, dead bool) error {
	status := entity.OutboxStatusFailed
	if dead {
		status = entity.OutboxStatusDead
	}
	return r.update(ctx, id,
		`UPDATE outbox SET status = ?, attempts = attempts + 1, last_error = ?, claimed_at = NULL
		WHERE id = ? AND status = ?`,
		status, lastError, id, entity.OutboxStatusProcessing)
}

func (r *OutboxRepository) update(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update outbox entry", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update outbox entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("outbox entry %s is not claimed: %w", id, port.ErrConflict)
	}
	return nil
}

func (r *OutboxRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.OutboxEntry, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list outbox entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.OutboxEntry
	for rows.Next() {
		var e entity.OutboxEntry
		var payload string
		var claimedAt, processedAt sql.NullTime
		if err := rows.Scan(
			&e.ID,
			&e.BillID,
			&e.Kind,
			&payload,
			&e.Status,
			&e.Attempts,
			&e.LastError,
			&e.CreatedAt,
			&claimedAt,
			&processedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Payload = []byte(payload)
		e.ClaimedAt = nullTime(claimedAt)
		e.ProcessedAt = nullTime(processedAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.OutboxRepository = (*OutboxRepository)(nil)
