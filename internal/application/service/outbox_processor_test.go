package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/event"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outboxEntry(t *testing.T, id, kind string, payload interface{}) *entity.OutboxEntry {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &entity.OutboxEntry{ID: id, BillID: "bill-1", Kind: kind, Payload: raw, Status: entity.OutboxStatusPending}
}

type processorFixture struct {
	outbox        *mockOutboxRepository
	bills         *mockBillRepository
	notifications *mockNotificationRepository
	activity      *mockActivityRepository
	chain         *mockBlockchain
	logger        *mockLogger
	processor     OutboxProcessor
}

func newProcessorFixture(maxAttempts int) *processorFixture {
	f := &processorFixture{
		outbox:        &mockOutboxRepository{},
		bills:         &mockBillRepository{},
		notifications: &mockNotificationRepository{},
		activity:      &mockActivityRepository{},
		chain:         &mockBlockchain{},
		logger:        &mockLogger{},
	}
	users := &mockUserRepository{listByRoleFunc: func(ctx context.Context, role workflow.Role, scopeID string) ([]*entity.User, error) {
		return []*entity.User{{ID: "adm-1"}}, nil
	}}
	f.processor = NewOutboxProcessor(
		f.outbox,
		f.bills,
		NewNotificationService(f.notifications, users, f.logger),
		NewActivityService(f.activity, f.logger),
		f.chain,
		maxAttempts,
		f.logger,
	)
	return f
}

func TestOutboxProcessor_HandleEvent(t *testing.T) {
	f := newProcessorFixture(3)
	f.outbox.pending = []*entity.OutboxEntry{
		outboxEntry(t, "o1", entity.OutboxKindNotify, entity.NotifyPayload{
			Targets: []entity.RecipientSelector{{UserID: "sup-1"}, {Role: workflow.RoleAdmin}},
			Title:   "Bill certified",
			Message: "certified",
			Kind:    entity.NotificationKindSuccess,
		}),
		outboxEntry(t, "o2", entity.OutboxKindActivity, entity.ActivityPayload{
			ActorUserID: "tre-1",
			Action:      entity.ActionCertified,
			Details:     "CERTIFY by treasury",
		}),
	}

	err := f.processor.HandleEvent(context.Background(), event.NewEvent(event.TypeBillTransitioned, "bill-1", nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"o1", "o2"}, f.outbox.claimed)
	assert.Equal(t, []string{"o1", "o2"}, f.outbox.done)
	assert.Empty(t, f.outbox.failed)

	require.Len(t, f.notifications.inserted, 2)
	assert.Equal(t, "sup-1", f.notifications.inserted[0].RecipientUserID)
	assert.Equal(t, "adm-1", f.notifications.inserted[1].RecipientUserID)
	assert.Equal(t, entity.NotificationKindSuccess, f.notifications.inserted[0].Kind)

	require.Len(t, f.activity.appended, 1)
	assert.Equal(t, entity.ActionCertified, f.activity.appended[0].Action)
	assert.Equal(t, "bill-1", f.activity.appended[0].RelatedBillID)
}

func TestOutboxProcessor_FailureDoesNotStopOtherEntries(t *testing.T) {
	f := newProcessorFixture(3)
	f.bills.getByIDFunc = func(ctx context.Context, id string) (*entity.Bill, error) {
		return &entity.Bill{ID: id}, nil
	}
	f.chain.createDeedFunc = func(ctx context.Context, req port.DeedRequest) (string, error) {
		return "", errors.New("timeout")
	}
	f.outbox.pending = []*entity.OutboxEntry{
		outboxEntry(t, "deed", entity.OutboxKindDeed, entity.DeedPayload{Principal: "1000"}),
		outboxEntry(t, "act", entity.OutboxKindActivity, entity.ActivityPayload{Action: entity.ActionCertified}),
	}

	err := f.processor.ProcessBill(context.Background(), "bill-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	assert.Equal(t, []string{"act"}, f.outbox.done)
	require.Len(t, f.outbox.failed, 1)
	assert.Equal(t, "deed", f.outbox.failed[0].id)
	assert.False(t, f.outbox.failed[0].dead)
	assert.Contains(t, f.outbox.failed[0].lastError, "timeout")
	assert.True(t, f.logger.has("error", "Outbox entry failed"))
}

func TestOutboxProcessor_DeadLetters(t *testing.T) {
	f := newProcessorFixture(3)
	exhausted := outboxEntry(t, "o1", entity.OutboxKindNotify, entity.NotifyPayload{Targets: []entity.RecipientSelector{{UserID: "u"}}})
	exhausted.Attempts = 2
	f.notifications.insertBatchFunc = func(ctx context.Context, notifications []*entity.Notification) error {
		return errors.New("locked")
	}
	unknown := outboxEntry(t, "o2", "fax", map[string]string{})
	f.outbox.retryable = []*entity.OutboxEntry{exhausted, unknown}

	n, err := f.processor.RetryPending(context.Background(), 10)
	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOutboxKind)

	require.Len(t, f.outbox.failed, 2)
	assert.True(t, f.outbox.failed[0].dead, "last allowed attempt parks the entry")
	assert.True(t, f.outbox.failed[1].dead, "unknown kinds are never retried")
}

func TestOutboxProcessor_RetryPendingEmpty(t *testing.T) {
	f := newProcessorFixture(3)
	var gotMax, gotLimit int
	f.outbox.listRetryableFunc = func(ctx context.Context, maxAttempts, limit int) ([]*entity.OutboxEntry, error) {
		gotMax, gotLimit = maxAttempts, limit
		return nil, nil
	}

	n, err := f.processor.RetryPending(context.Background(), 25)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, gotMax)
	assert.Equal(t, 25, gotLimit)
}

func TestOutboxProcessor_CreateDeed(t *testing.T) {
	f := newProcessorFixture(3)
	f.bills.getByIDFunc = func(ctx context.Context, id string) (*entity.Bill, error) {
		return &entity.Bill{ID: id}, nil
	}
	var storedBill, storedDeed string
	f.bills.setDeedIDFunc = func(ctx context.Context, billID, deedID string) error {
		storedBill, storedDeed = billID, deedID
		return nil
	}
	f.outbox.pending = []*entity.OutboxEntry{
		outboxEntry(t, "o1", entity.OutboxKindDeed, entity.DeedPayload{
			SupplierID:    "sup-1",
			MDAID:         "mda-1",
			SPVID:         "spv-1",
			Principal:     "1000000",
			DiscountRate:  "8",
			PurchasePrice: "920000",
			Metadata:      map[string]string{"certificate_number": "CERT-2025-00001"},
		}),
	}

	require.NoError(t, f.processor.ProcessBill(context.Background(), "bill-1"))

	require.Len(t, f.chain.requests, 1)
	req := f.chain.requests[0]
	assert.Equal(t, "bill-1", req.BillID)
	assert.Equal(t, "spv-1", req.SPVID)
	assert.True(t, req.Principal.Equal(decimal.NewFromInt(1000000)))
	assert.True(t, req.PurchasePrice.Equal(decimal.NewFromInt(920000)))
	assert.Equal(t, "CERT-2025-00001", req.Metadata["certificate_number"])

	assert.Equal(t, "bill-1", storedBill)
	assert.Equal(t, "deed-1", storedDeed)
	require.Len(t, f.activity.appended, 1)
	assert.Equal(t, entity.ActionDeedCreated, f.activity.appended[0].Action)
	assert.Equal(t, entity.SystemActor.UserID, f.activity.appended[0].ActorUserID)
}

func TestOutboxProcessor_CreateDeedIsIdempotent(t *testing.T) {
	f := newProcessorFixture(3)
	deedID := "deed-existing"
	f.bills.getByIDFunc = func(ctx context.Context, id string) (*entity.Bill, error) {
		return &entity.Bill{ID: id, DeedID: &deedID}, nil
	}
	f.outbox.pending = []*entity.OutboxEntry{
		outboxEntry(t, "o1", entity.OutboxKindDeed, entity.DeedPayload{Principal: "1"}),
	}

	require.NoError(t, f.processor.ProcessBill(context.Background(), "bill-1"))
	assert.Empty(t, f.chain.requests)
	assert.Equal(t, []string{"o1"}, f.outbox.done)
}

func TestOutboxProcessor_SkipsEntriesClaimedElsewhere(t *testing.T) {
	f := newProcessorFixture(3)
	f.outbox.claimFunc = func(ctx context.Context, id string) (bool, error) {
		return id != "o1", nil
	}
	f.outbox.retryable = []*entity.OutboxEntry{
		outboxEntry(t, "o1", entity.OutboxKindActivity, entity.ActivityPayload{Action: entity.ActionCertified}),
		outboxEntry(t, "o2", entity.OutboxKindActivity, entity.ActivityPayload{Action: entity.ActionCertified}),
	}

	n, err := f.processor.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"o2"}, f.outbox.done)
	assert.Len(t, f.activity.appended, 1)
}

func TestOutboxProcessor_ClaimError(t *testing.T) {
	f := newProcessorFixture(3)
	f.outbox.claimFunc = func(ctx context.Context, id string) (bool, error) {
		return false, errors.New("database is locked")
	}
	f.outbox.pending = []*entity.OutboxEntry{
		outboxEntry(t, "o1", entity.OutboxKindActivity, entity.ActivityPayload{Action: entity.ActionCertified}),
	}

	err := f.processor.ProcessBill(context.Background(), "bill-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Empty(t, f.outbox.done)
	assert.Empty(t, f.outbox.failed)
	assert.Empty(t, f.activity.appended)
}

func TestOutboxProcessor_BadPayload(t *testing.T) {
	f := newProcessorFixture(1)
	f.outbox.pending = []*entity.OutboxEntry{
		{ID: "o1", BillID: "bill-1", Kind: entity.OutboxKindActivity, Payload: json.RawMessage(`{`)},
	}

	err := f.processor.ProcessBill(context.Background(), "bill-1")
	require.Error(t, err)
	require.Len(t, f.outbox.failed, 1)
	assert.True(t, f.outbox.failed[0].dead)
}
