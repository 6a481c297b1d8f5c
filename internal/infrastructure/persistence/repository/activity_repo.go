package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ActivityRepository implements port.ActivityRepository
type ActivityRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *sqlite.DB, logger *zap.Logger) port.ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts one activity record
func (r *ActivityRepository) Append(ctx context.Context, entry *entity.ActivityLogEntry) error {
	query := `
		INSERT INTO activity_log (id, actor_user_id, action, related_bill_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.ActorUserID,
		entry.Action,
		entry.RelatedBillID,
		entry.Details,
		entry.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append activity",
			zap.String("action", entry.Action),
			zap.String("bill_id", entry.RelatedBillID),
			zap.Error(err))
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListByBill returns a bill's activity in insertion order
func (r *ActivityRepository) ListByBill(ctx context.Context, billID string) ([]*entity.ActivityLogEntry, error) {
	query := `
		SELECT id, actor_user_id, action, related_bill_id, details, timestamp
		FROM activity_log
		WHERE related_bill_id = ?
		ORDER BY seq ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, billID)
	if err != nil {
		r.logger.Error("Failed to list activity", zap.String("bill_id", billID), zap.Error(err))
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	entries := []*entity.ActivityLogEntry{}
	for rows.Next() {
		var e entity.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.ActorUserID, &e.Action, &e.RelatedBillID, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.ActivityRepository = (*ActivityRepository)(nil)
