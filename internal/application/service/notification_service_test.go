package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService_NotifyResolvesCohorts(t *testing.T) {
	repo := &mockNotificationRepository{}
	var gotRole workflow.Role
	var gotScope string
	users := &mockUserRepository{listByRoleFunc: func(ctx context.Context, role workflow.Role, scopeID string) ([]*entity.User, error) {
		gotRole, gotScope = role, scopeID
		return []*entity.User{{ID: "mda-officer-1"}, {ID: "mda-officer-2"}}, nil
	}}
	svc := NewNotificationService(repo, users, &mockLogger{})

	n, err := svc.Notify(context.Background(), []entity.RecipientSelector{
		{UserID: "sup-1"},
		{Role: workflow.RoleMDA, ScopeID: "mda-1"},
		{},
	}, "Offer accepted", "body", "", "bill-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, workflow.RoleMDA, gotRole)
	assert.Equal(t, "mda-1", gotScope)

	require.Len(t, repo.inserted, 3)
	recipients := []string{}
	for _, notif := range repo.inserted {
		recipients = append(recipients, notif.RecipientUserID)
		assert.Equal(t, "bill-1", notif.RelatedBillID)
		assert.Equal(t, entity.NotificationKindInfo, notif.Kind)
		assert.False(t, notif.Read)
		assert.NotEmpty(t, notif.ID)
	}
	assert.Equal(t, []string{"sup-1", "mda-officer-1", "mda-officer-2"}, recipients)
}

func TestNotificationService_NotifyNoRecipients(t *testing.T) {
	repo := &mockNotificationRepository{insertBatchFunc: func(ctx context.Context, notifications []*entity.Notification) error {
		t.Fatal("InsertBatch should not be called without recipients")
		return nil
	}}
	logger := &mockLogger{}
	svc := NewNotificationService(repo, &mockUserRepository{}, logger)

	n, err := svc.Notify(context.Background(), []entity.RecipientSelector{{Role: workflow.RoleAdmin}}, "t", "m", entity.NotificationKindInfo, "bill-1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, logger.has("info", "No recipients for notification"))
}

func TestNotificationService_NotifyErrors(t *testing.T) {
	lookupErr := errors.New("users unavailable")
	svc := NewNotificationService(&mockNotificationRepository{}, &mockUserRepository{
		listByRoleFunc: func(ctx context.Context, role workflow.Role, scopeID string) ([]*entity.User, error) {
			return nil, lookupErr
		},
	}, &mockLogger{})
	_, err := svc.Notify(context.Background(), []entity.RecipientSelector{{Role: workflow.RoleSPV}}, "t", "m", "", "b")
	assert.ErrorIs(t, err, lookupErr)

	insertErr := errors.New("disk full")
	logger := &mockLogger{}
	svc = NewNotificationService(&mockNotificationRepository{
		insertBatchFunc: func(ctx context.Context, notifications []*entity.Notification) error { return insertErr },
	}, &mockUserRepository{}, logger)
	_, err = svc.Notify(context.Background(), []entity.RecipientSelector{{UserID: "u"}}, "t", "m", "", "b")
	assert.ErrorIs(t, err, insertErr)
	assert.True(t, logger.has("error", "Failed to insert notifications"))
}

func TestNotificationService_ListAndMarkRead(t *testing.T) {
	var markedID, markedBy string
	repo := &mockNotificationRepository{
		listByRecipientFunc: func(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
			assert.Equal(t, "sup-1", userID)
			assert.True(t, unreadOnly)
			assert.Equal(t, 20, limit)
			return []*entity.Notification{{ID: "n1"}}, nil
		},
		markReadFunc: func(ctx context.Context, id, recipientID string) error {
			markedID, markedBy = id, recipientID
			return nil
		},
	}
	svc := NewNotificationService(repo, &mockUserRepository{}, &mockLogger{})
	actor := entity.Actor{UserID: "sup-1", Role: workflow.RoleSupplier}

	items, err := svc.List(context.Background(), actor, true, 20)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, svc.MarkRead(context.Background(), actor, "n1"))
	assert.Equal(t, "n1", markedID)
	assert.Equal(t, "sup-1", markedBy)
}
