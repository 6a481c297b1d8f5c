package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/event"
	"github.com/shopspring/decimal"
)

// ErrUnknownOutboxKind is returned for entries no handler understands
var ErrUnknownOutboxKind = errors.New("unknown outbox entry kind")

// OutboxProcessor delivers side effects recorded with bill mutations.
// Each entry is claimed before it runs, so concurrent runners never execute
// the same entry twice. Delivery is still at-least-once: an entry may run
// again if marking it done fails or its claim expires.
type OutboxProcessor interface {
	// HandleEvent processes the pending entries of the event's bill
	HandleEvent(ctx context.Context, evt *event.Event) error
	// ProcessBill processes pending entries of one bill
	ProcessBill(ctx context.Context, billID string) error
	// RetryPending retries pending or failed entries under the attempt limit.
	// It returns how many entries it claimed and ran.
	RetryPending(ctx context.Context, limit int) (int, error)
}

type outboxProcessorImpl struct {
	outboxRepo    port.OutboxRepository
	billRepo      port.BillRepository
	notifications NotificationService
	activity      ActivityService
	blockchain    port.BlockchainClient
	maxAttempts   int
	logger        Logger
}

// NewOutboxProcessor creates a new OutboxProcessor
func NewOutboxProcessor(
	outboxRepo port.OutboxRepository,
	billRepo port.BillRepository,
	notifications NotificationService,
	activity ActivityService,
	blockchain port.BlockchainClient,
	maxAttempts int,
	logger Logger,
) OutboxProcessor {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &outboxProcessorImpl{
		outboxRepo:    outboxRepo,
		billRepo:      billRepo,
		notifications: notifications,
		activity:      activity,
		blockchain:    blockchain,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

func (p *outboxProcessorImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	return p.ProcessBill(ctx, evt.BillID)
}

func (p *outboxProcessorImpl) ProcessBill(ctx context.Context, billID string) error {
	entries, err := p.outboxRepo.ListPendingByBill(ctx, billID)
	if err != nil {
		return fmt.Errorf("list outbox entries: %w", err)
	}
	_, err = p.processAll(ctx, entries)
	return err
}

func (p *outboxProcessorImpl) RetryPending(ctx context.Context, limit int) (int, error) {
	entries, err := p.outboxRepo.ListRetryable(ctx, p.maxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("list retryable outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	ran, err := p.processAll(ctx, entries)
	if ran > 0 {
		p.logger.Info("Retried outbox entries", "count", ran, "listed", len(entries))
	}
	return ran, err
}

// processAll runs every entry this runner manages to claim
func (p *outboxProcessorImpl) processAll(ctx context.Context, entries []*entity.OutboxEntry) (int, error) {
	var (
		ran  int
		errs []error
	)
	for _, entry := range entries {
		claimed, err := p.outboxRepo.Claim(ctx, entry.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim outbox entry %s: %w", entry.ID, err))
			continue
		}
		if !claimed {
			continue
		}
		ran++
		if err := p.process(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return ran, errors.Join(errs...)
}

func (p *outboxProcessorImpl) process(ctx context.Context, entry *entity.OutboxEntry) error {
	err := p.execute(ctx, entry)
	if err == nil {
		if markErr := p.outboxRepo.MarkDone(ctx, entry.ID); markErr != nil {
			p.logger.Error("Failed to mark outbox entry done", "error", markErr, "outbox_id", entry.ID)
			return fmt.Errorf("mark outbox entry %s done: %w", entry.ID, markErr)
		}
		return nil
	}

	dead := entry.Attempts+1 >= p.maxAttempts || errors.Is(err, ErrUnknownOutboxKind)
	p.logger.Error("Outbox entry failed",
		"error", err,
		"outbox_id", entry.ID,
		"bill_id", entry.BillID,
		"kind", entry.Kind,
		"attempt", entry.Attempts+1,
		"dead", dead,
	)
	if markErr := p.outboxRepo.MarkFailed(ctx, entry.ID, err.Error(), dead); markErr != nil {
		p.logger.Error("Failed to mark outbox entry failed", "error", markErr, "outbox_id", entry.ID)
	}
	return fmt.Errorf("outbox entry %s (%s): %w", entry.ID, entry.Kind, err)
}

func (p *outboxProcessorImpl) execute(ctx context.Context, entry *entity.OutboxEntry) error {
	switch entry.Kind {
	case entity.OutboxKindNotify:
		var payload entity.NotifyPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return fmt.Errorf("decode notify payload: %w", err)
		}
		_, err := p.notifications.Notify(ctx, payload.Targets, payload.Title, payload.Message, payload.Kind, entry.BillID)
		return err

	case entity.OutboxKindActivity:
		var payload entity.ActivityPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return fmt.Errorf("decode activity payload: %w", err)
		}
		return p.activity.Log(ctx, payload.ActorUserID, payload.Action, entry.BillID, payload.Details)

	case entity.OutboxKindDeed:
		var payload entity.DeedPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return fmt.Errorf("decode deed payload: %w", err)
		}
		return p.createDeed(ctx, entry.BillID, payload)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownOutboxKind, entry.Kind)
	}
}

func (p *outboxProcessorImpl) createDeed(ctx context.Context, billID string, payload entity.DeedPayload) error {
	bill, err := p.billRepo.GetByID(ctx, billID)
	if err != nil {
		return fmt.Errorf("load bill: %w", err)
	}
	// A retry after a lost MarkDone or an expired claim must not create a second deed
	if bill.DeedID != nil {
		return nil
	}

	req := port.DeedRequest{
		BillID:     billID,
		SupplierID: payload.SupplierID,
		MDAID:      payload.MDAID,
		SPVID:      payload.SPVID,
		Metadata:   payload.Metadata,
	}
	if req.Principal, err = decimal.NewFromString(payload.Principal); err != nil {
		return fmt.Errorf("parse principal: %w", err)
	}
	if payload.DiscountRate != "" {
		if req.DiscountRate, err = decimal.NewFromString(payload.DiscountRate); err != nil {
			return fmt.Errorf("parse discount rate: %w", err)
		}
	}
	if payload.PurchasePrice != "" {
		if req.PurchasePrice, err = decimal.NewFromString(payload.PurchasePrice); err != nil {
			return fmt.Errorf("parse purchase price: %w", err)
		}
	}

	deedID, err := p.blockchain.CreateDeed(ctx, req)
	if err != nil {
		return fmt.Errorf("create deed: %w", err)
	}

	if err := p.billRepo.SetDeedID(ctx, billID, deedID); err != nil {
		return fmt.Errorf("store deed id: %w", err)
	}

	p.logger.Info("Deed created", "bill_id", billID, "deed_id", deedID)
	if err := p.activity.Log(ctx, entity.SystemActor.UserID, entity.ActionDeedCreated, billID, "deed "+deedID); err != nil {
		// Deed id is stored; the entry is done even if the activity line is lost
		p.logger.Error("Failed to log deed activity", "error", err, "bill_id", billID)
	}
	return nil
}
