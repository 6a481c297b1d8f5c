package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
)

var (
	// ErrScopeRequired is returned when a scoped view is requested without a scope
	ErrScopeRequired = errors.New("actor has no role scope")
	// ErrUnknownView is returned by View for an unregistered view name
	ErrUnknownView = errors.New("unknown view")
)

// Views lists the names accepted by View
var Views = []string{
	"inbox",
	"awaiting-offers",
	"awaiting-mda",
	"awaiting-treasury",
	"certified",
	"mine",
	"portfolio",
	"rejected-offers",
}

// Status groups behind the role inboxes
var (
	AwaitingOfferStatuses    = []workflow.State{workflow.StateSubmitted, workflow.StateUnderReview}
	AwaitingMDAStatuses      = []workflow.State{workflow.StateOfferAccepted, workflow.StateMDAReviewing}
	AwaitingTreasuryStatuses = []workflow.State{
		workflow.StateMDAApproved,
		workflow.StateTermsSet,
		workflow.StateAgreementSent,
		workflow.StateTreasuryReviewing,
	}
)

// Page bounds a projection
type Page struct {
	Limit  int
	Offset int
}

// Dashboard summarises the bills visible to one actor
type Dashboard struct {
	Role     workflow.Role          `json:"role"`
	Total    int                    `json:"total"`
	ByStatus map[workflow.State]int `json:"by_status"`
	Inbox    int                    `json:"inbox"`
}

// QueryService derives read-only, role-scoped views over the bill collection
type QueryService interface {
	AwaitingOffers(ctx context.Context, page Page) ([]*entity.Bill, error)
	AwaitingMDA(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error)
	AwaitingTreasury(ctx context.Context, page Page) ([]*entity.Bill, error)
	Certified(ctx context.Context, page Page) ([]*entity.Bill, error)
	SupplierBills(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error)
	SPVPortfolio(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error)
	RejectedOffers(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error)
	// ForActor returns the inbox view that matches the actor's role
	ForActor(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error)
	// View resolves one of Views by name. An empty name is the inbox.
	View(ctx context.Context, name string, actor entity.Actor, page Page) ([]*entity.Bill, error)
	Dashboard(ctx context.Context, actor entity.Actor) (*Dashboard, error)
}

type queryServiceImpl struct {
	billRepo port.BillRepository
}

// NewQueryService creates a new QueryService
func NewQueryService(billRepo port.BillRepository) QueryService {
	return &queryServiceImpl{billRepo: billRepo}
}

func (s *queryServiceImpl) AwaitingOffers(ctx context.Context, page Page) ([]*entity.Bill, error) {
	return s.query(ctx, port.BillFilter{Statuses: AwaitingOfferStatuses}, page)
}

func (s *queryServiceImpl) AwaitingMDA(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error) {
	if actor.RoleScopeID == "" {
		return nil, ErrScopeRequired
	}
	return s.query(ctx, port.BillFilter{Statuses: AwaitingMDAStatuses, MDAID: actor.RoleScopeID}, page)
}

func (s *queryServiceImpl) AwaitingTreasury(ctx context.Context, page Page) ([]*entity.Bill, error) {
	return s.query(ctx, port.BillFilter{Statuses: AwaitingTreasuryStatuses}, page)
}

func (s *queryServiceImpl) Certified(ctx context.Context, page Page) ([]*entity.Bill, error) {
	return s.query(ctx, port.BillFilter{Statuses: []workflow.State{workflow.StateCertified}}, page)
}

func (s *queryServiceImpl) SupplierBills(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error) {
	return s.query(ctx, port.BillFilter{SupplierID: actor.UserID}, page)
}

func (s *queryServiceImpl) SPVPortfolio(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error) {
	return s.query(ctx, port.BillFilter{SPVID: actor.UserID}, page)
}

// RejectedOffers lists bills whose supplier turned down this SPV's offer
func (s *queryServiceImpl) RejectedOffers(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error) {
	rejected := true
	return s.query(ctx, port.BillFilter{
		Statuses:               []workflow.State{workflow.StateSubmitted},
		SPVID:                  actor.UserID,
		LastRejectedBySupplier: &rejected,
	}, page)
}

func (s *queryServiceImpl) ForActor(ctx context.Context, actor entity.Actor, page Page) ([]*entity.Bill, error) {
	switch actor.Role {
	case workflow.RoleSupplier:
		return s.SupplierBills(ctx, actor, page)
	case workflow.RoleSPV:
		return s.AwaitingOffers(ctx, page)
	case workflow.RoleMDA:
		return s.AwaitingMDA(ctx, actor, page)
	case workflow.RoleTreasury:
		return s.AwaitingTreasury(ctx, page)
	case workflow.RoleAdmin:
		return s.query(ctx, port.BillFilter{}, page)
	default:
		return nil, fmt.Errorf("no inbox for role %q", actor.Role)
	}
}

func (s *queryServiceImpl) View(ctx context.Context, name string, actor entity.Actor, page Page) ([]*entity.Bill, error) {
	switch name {
	case "", "inbox":
		return s.ForActor(ctx, actor, page)
	case "awaiting-offers":
		return s.AwaitingOffers(ctx, page)
	case "awaiting-mda":
		return s.AwaitingMDA(ctx, actor, page)
	case "awaiting-treasury":
		return s.AwaitingTreasury(ctx, page)
	case "certified":
		return s.Certified(ctx, page)
	case "mine":
		return s.SupplierBills(ctx, actor, page)
	case "portfolio":
		return s.SPVPortfolio(ctx, actor, page)
	case "rejected-offers":
		return s.RejectedOffers(ctx, actor, page)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
}

// Dashboard counts the bills the actor can see and how many need their action
func (s *queryServiceImpl) Dashboard(ctx context.Context, actor entity.Actor) (*Dashboard, error) {
	var filter port.BillFilter
	var inbox []workflow.State

	switch actor.Role {
	case workflow.RoleSupplier:
		filter.SupplierID = actor.UserID
		inbox = []workflow.State{workflow.StateOfferMade}
	case workflow.RoleSPV:
		inbox = AwaitingOfferStatuses
	case workflow.RoleMDA:
		if actor.RoleScopeID == "" {
			return nil, ErrScopeRequired
		}
		filter.MDAID = actor.RoleScopeID
		inbox = AwaitingMDAStatuses
	case workflow.RoleTreasury:
		inbox = AwaitingTreasuryStatuses
	case workflow.RoleAdmin:
	default:
		return nil, fmt.Errorf("no dashboard for role %q", actor.Role)
	}

	counts, err := s.billRepo.CountByStatus(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count bills: %w", err)
	}

	d := &Dashboard{Role: actor.Role, ByStatus: counts}
	for _, n := range counts {
		d.Total += n
	}
	for _, st := range inbox {
		d.Inbox += counts[st]
	}
	return d, nil
}

func (s *queryServiceImpl) query(ctx context.Context, filter port.BillFilter, page Page) ([]*entity.Bill, error) {
	filter.Limit = page.Limit
	filter.Offset = page.Offset

	bills, err := s.billRepo.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	return bills, nil
}
