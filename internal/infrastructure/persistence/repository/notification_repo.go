package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlite.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// InsertBatch stores all notifications or none
func (r *NotificationRepository) InsertBatch(ctx context.Context, notifications []*entity.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	query := `
		INSERT INTO notifications (
			id, recipient_user_id, title, message, kind, related_bill_id, read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		for _, n := range notifications {
			_, err := r.db.Executor(ctx).ExecContext(ctx, query,
				n.ID,
				n.RecipientUserID,
				n.Title,
				n.Message,
				n.Kind,
				n.RelatedBillID,
				n.Read,
				n.CreatedAt,
			)
			if err != nil {
				r.logger.Error("Failed to insert notification",
					zap.String("recipient", n.RecipientUserID),
					zap.String("bill_id", n.RelatedBillID),
					zap.Error(err))
				return fmt.Errorf("failed to insert notification: %w", err)
			}
		}
		return nil
	})
}

// ListByRecipient returns a user's notifications, newest first
func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	query := `
		SELECT id, recipient_user_id, title, message, kind, related_bill_id, read, created_at
		FROM notifications
		WHERE recipient_user_id = ?
	`
	args := []interface{}{userID}
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.String("recipient", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	items := []*entity.Notification{}
	for rows.Next() {
		var n entity.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientUserID,
			&n.Title,
			&n.Message,
			&n.Kind,
			&n.RelatedBillID,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		items = append(items, &n)
	}
	return items, rows.Err()
}

// MarkRead flags the notification as read when it belongs to recipientID
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ? AND recipient_user_id = ?`, id, recipientID)
	if err != nil {
		r.logger.Error("Failed to mark notification read", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification %s: %w", id, port.ErrNotFound)
	}
	return nil
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
