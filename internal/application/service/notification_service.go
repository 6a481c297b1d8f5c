package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/google/uuid"
)

// NotificationService fans messages out to users and role cohorts
type NotificationService interface {
	// Notify resolves every target to user ids at call time and inserts one
	// notification per recipient. Returns the number of notifications written.
	Notify(ctx context.Context, targets []entity.RecipientSelector, title, message, kind, billID string) (int, error)
	List(ctx context.Context, actor entity.Actor, unreadOnly bool, limit int) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, actor entity.Actor, notificationID string) error
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	userRepo         port.UserRepository
	logger           Logger
	now              func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	userRepo port.UserRepository,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Notify inserts notifications for every resolved recipient
func (s *notificationServiceImpl) Notify(ctx context.Context, targets []entity.RecipientSelector, title, message, kind, billID string) (int, error) {
	recipients, err := s.resolve(ctx, targets)
	if err != nil {
		s.logger.Error("Failed to resolve notification targets", "error", err, "bill_id", billID)
		return 0, err
	}
	if len(recipients) == 0 {
		s.logger.Info("No recipients for notification", "bill_id", billID, "title", title)
		return 0, nil
	}

	if kind == "" {
		kind = entity.NotificationKindInfo
	}

	now := s.now()
	batch := make([]*entity.Notification, 0, len(recipients))
	for _, userID := range recipients {
		batch = append(batch, &entity.Notification{
			ID:              uuid.NewString(),
			RecipientUserID: userID,
			Title:           title,
			Message:         message,
			Kind:            kind,
			RelatedBillID:   billID,
			CreatedAt:       now,
		})
	}

	if err := s.notificationRepo.InsertBatch(ctx, batch); err != nil {
		s.logger.Error("Failed to insert notifications", "error", err, "bill_id", billID, "count", len(batch))
		return 0, fmt.Errorf("insert notifications: %w", err)
	}

	s.logger.Info("Notifications sent", "bill_id", billID, "title", title, "count", len(batch))
	return len(batch), nil
}

// List returns the actor's notifications, newest first
func (s *notificationServiceImpl) List(ctx context.Context, actor entity.Actor, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	items, err := s.notificationRepo.ListByRecipient(ctx, actor.UserID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// MarkRead flags a notification as read. Only its recipient may do so.
func (s *notificationServiceImpl) MarkRead(ctx context.Context, actor entity.Actor, notificationID string) error {
	if err := s.notificationRepo.MarkRead(ctx, notificationID, actor.UserID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// resolve expands cohort selectors into user ids, keeping selector order
func (s *notificationServiceImpl) resolve(ctx context.Context, targets []entity.RecipientSelector) ([]string, error) {
	var recipients []string
	for _, target := range targets {
		if target.UserID != "" {
			recipients = append(recipients, target.UserID)
			continue
		}
		if !target.IsCohort() {
			continue
		}
		users, err := s.userRepo.ListByRole(ctx, target.Role, target.ScopeID)
		if err != nil {
			return nil, fmt.Errorf("resolve cohort %s: %w", target.Role, err)
		}
		for _, u := range users {
			recipients = append(recipients, u.ID)
		}
	}
	return recipients, nil
}
