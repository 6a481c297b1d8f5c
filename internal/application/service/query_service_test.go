package service

import (
	"context"
	"testing"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService_ForActorFilters(t *testing.T) {
	tests := []struct {
		name  string
		actor entity.Actor
		check func(t *testing.T, f port.BillFilter)
	}{
		{
			name:  "supplier sees own bills",
			actor: entity.Actor{UserID: "sup-1", Role: workflow.RoleSupplier},
			check: func(t *testing.T, f port.BillFilter) {
				assert.Equal(t, "sup-1", f.SupplierID)
				assert.Empty(t, f.Statuses)
			},
		},
		{
			name:  "spv sees bills awaiting offers",
			actor: entity.Actor{UserID: "spv-1", Role: workflow.RoleSPV},
			check: func(t *testing.T, f port.BillFilter) {
				assert.Equal(t, AwaitingOfferStatuses, f.Statuses)
				assert.Empty(t, f.SPVID)
			},
		},
		{
			name:  "mda sees own mda awaiting approval",
			actor: entity.Actor{UserID: "m1", Role: workflow.RoleMDA, RoleScopeID: "mda-1"},
			check: func(t *testing.T, f port.BillFilter) {
				assert.Equal(t, AwaitingMDAStatuses, f.Statuses)
				assert.Equal(t, "mda-1", f.MDAID)
			},
		},
		{
			name:  "treasury sees approved bills",
			actor: entity.Actor{UserID: "t1", Role: workflow.RoleTreasury},
			check: func(t *testing.T, f port.BillFilter) {
				assert.Equal(t, AwaitingTreasuryStatuses, f.Statuses)
			},
		},
		{
			name:  "admin sees everything",
			actor: entity.Actor{UserID: "a1", Role: workflow.RoleAdmin},
			check: func(t *testing.T, f port.BillFilter) {
				assert.Empty(t, f.Statuses)
				assert.Empty(t, f.MDAID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got port.BillFilter
			repo := &mockBillRepository{queryFunc: func(ctx context.Context, filter port.BillFilter) ([]*entity.Bill, error) {
				got = filter
				return []*entity.Bill{{ID: "b1"}}, nil
			}}
			svc := NewQueryService(repo)

			bills, err := svc.ForActor(context.Background(), tt.actor, Page{Limit: 10, Offset: 5})
			require.NoError(t, err)
			assert.Len(t, bills, 1)
			assert.Equal(t, 10, got.Limit)
			assert.Equal(t, 5, got.Offset)
			tt.check(t, got)
		})
	}
}

func TestQueryService_ScopeRequired(t *testing.T) {
	svc := NewQueryService(&mockBillRepository{})
	actor := entity.Actor{UserID: "m1", Role: workflow.RoleMDA}

	_, err := svc.AwaitingMDA(context.Background(), actor, Page{})
	assert.ErrorIs(t, err, ErrScopeRequired)

	_, err = svc.Dashboard(context.Background(), actor)
	assert.ErrorIs(t, err, ErrScopeRequired)

	_, err = svc.ForActor(context.Background(), entity.Actor{Role: workflow.RoleSystem}, Page{})
	assert.Error(t, err)
}

func TestQueryService_View(t *testing.T) {
	var got port.BillFilter
	svc := NewQueryService(&mockBillRepository{queryFunc: func(ctx context.Context, filter port.BillFilter) ([]*entity.Bill, error) {
		got = filter
		return nil, nil
	}})
	spv := entity.Actor{UserID: "spv-1", Role: workflow.RoleSPV}

	_, err := svc.View(context.Background(), "portfolio", spv, Page{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "spv-1", got.SPVID)
	assert.Equal(t, 5, got.Limit)

	_, err = svc.View(context.Background(), "", spv, Page{})
	require.NoError(t, err)
	assert.Equal(t, AwaitingOfferStatuses, got.Statuses)

	for _, name := range Views {
		_, err := svc.View(context.Background(), name, entity.Actor{UserID: "a", Role: workflow.RoleAdmin, RoleScopeID: "mda-1"}, Page{})
		assert.NotErrorIs(t, err, ErrUnknownView, name)
	}

	_, err = svc.View(context.Background(), "bogus", spv, Page{})
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestQueryService_RejectedOffers(t *testing.T) {
	var got port.BillFilter
	svc := NewQueryService(&mockBillRepository{queryFunc: func(ctx context.Context, filter port.BillFilter) ([]*entity.Bill, error) {
		got = filter
		return nil, nil
	}})

	_, err := svc.RejectedOffers(context.Background(), entity.Actor{UserID: "spv-1", Role: workflow.RoleSPV}, Page{})
	require.NoError(t, err)
	assert.Equal(t, "spv-1", got.SPVID)
	require.NotNil(t, got.LastRejectedBySupplier)
	assert.True(t, *got.LastRejectedBySupplier)
	assert.Equal(t, []workflow.State{workflow.StateSubmitted}, got.Statuses)
}

func TestQueryService_Dashboard(t *testing.T) {
	counts := map[workflow.State]int{
		workflow.StateSubmitted:         3,
		workflow.StateUnderReview:       1,
		workflow.StateOfferMade:         2,
		workflow.StateMDAApproved:       4,
		workflow.StateTreasuryReviewing: 1,
		workflow.StateCertified:         5,
	}
	var got port.BillFilter
	svc := NewQueryService(&mockBillRepository{countByStatusFunc: func(ctx context.Context, filter port.BillFilter) (map[workflow.State]int, error) {
		got = filter
		return counts, nil
	}})

	d, err := svc.Dashboard(context.Background(), entity.Actor{UserID: "spv-1", Role: workflow.RoleSPV})
	require.NoError(t, err)
	assert.Equal(t, 16, d.Total)
	assert.Equal(t, 4, d.Inbox)

	d, err = svc.Dashboard(context.Background(), entity.Actor{UserID: "t1", Role: workflow.RoleTreasury})
	require.NoError(t, err)
	assert.Equal(t, 5, d.Inbox)

	d, err = svc.Dashboard(context.Background(), entity.Actor{UserID: "sup-1", Role: workflow.RoleSupplier})
	require.NoError(t, err)
	assert.Equal(t, "sup-1", got.SupplierID)
	assert.Equal(t, 2, d.Inbox)
	assert.Equal(t, workflow.RoleSupplier, d.Role)
}
