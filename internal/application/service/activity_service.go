package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/google/uuid"
)

// ActivityService appends and reads the immutable activity trail
type ActivityService interface {
	Log(ctx context.Context, actorID, action, billID, details string) error
	ListByBill(ctx context.Context, billID string) ([]*entity.ActivityLogEntry, error)
}

type activityServiceImpl struct {
	activityRepo port.ActivityRepository
	logger       Logger
}

// NewActivityService creates a new ActivityService
func NewActivityService(activityRepo port.ActivityRepository, logger Logger) ActivityService {
	return &activityServiceImpl{
		activityRepo: activityRepo,
		logger:       logger,
	}
}

// Log appends one activity record
func (s *activityServiceImpl) Log(ctx context.Context, actorID, action, billID, details string) error {
	entry := &entity.ActivityLogEntry{
		ID:            uuid.NewString(),
		ActorUserID:   actorID,
		Action:        action,
		RelatedBillID: billID,
		Details:       details,
		Timestamp:     time.Now().UTC(),
	}

	if err := s.activityRepo.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append activity", "error", err, "action", action, "bill_id", billID)
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListByBill returns the bill's activity in insertion order
func (s *activityServiceImpl) ListByBill(ctx context.Context, billID string) ([]*entity.ActivityLogEntry, error) {
	entries, err := s.activityRepo.ListByBill(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return entries, nil
}
