package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/dispatcher"
	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/event"
	"github.com/garyjia/receivables-portal/internal/domain/terms"
	domainwf "github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActivityLogger records denied attempts, which never reach the outbox
type ActivityLogger interface {
	Log(ctx context.Context, actorID, action, billID, details string) error
}

type engineImpl struct {
	billRepo   port.BillRepository
	outboxRepo port.OutboxRepository
	txManager  port.TransactionManager
	activity   ActivityLogger
	dispatcher dispatcher.Dispatcher
	logger     Logger

	lifecycle domainwf.StateMachineBuilder[*transitionInput]

	allowedQuarters map[int]bool
	defaultCurrency string
	maxDiscountRate decimal.Decimal
	now             func() time.Time
}

// EngineOption configures the engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher notified after commits
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithActivityLogger records denied transition attempts
func WithActivityLogger(a ActivityLogger) EngineOption {
	return func(e *engineImpl) {
		e.activity = a
	}
}

// WithAllowedQuarters replaces the accepted payment quarter counts
func WithAllowedQuarters(quarters ...int) EngineOption {
	return func(e *engineImpl) {
		e.allowedQuarters = make(map[int]bool, len(quarters))
		for _, q := range quarters {
			e.allowedQuarters[q] = true
		}
	}
}

// WithDefaultCurrency sets the currency used when a submission omits it
func WithDefaultCurrency(currency string) EngineOption {
	return func(e *engineImpl) {
		e.defaultCurrency = currency
	}
}

// WithMaxDiscountRate sets the upper bound for offer discount rates in percent
func WithMaxDiscountRate(rate decimal.Decimal) EngineOption {
	return func(e *engineImpl) {
		e.maxDiscountRate = rate
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new bill lifecycle engine
func NewEngine(
	billRepo port.BillRepository,
	outboxRepo port.OutboxRepository,
	txManager port.TransactionManager,
	logger Logger,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		billRepo:        billRepo,
		outboxRepo:      outboxRepo,
		txManager:       txManager,
		logger:          logger,
		lifecycle:       BuildBillLifecycle(billRepo),
		defaultCurrency: "NGN",
		maxDiscountRate: hundred,
		now:             func() time.Time { return time.Now().UTC() },
	}
	WithAllowedQuarters(2, 4, 6, 8)(e)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Submit creates a bill in the submitted state
func (e *engineImpl) Submit(ctx context.Context, req SubmitRequest) (*entity.Bill, error) {
	const op = "submit"

	if req.Actor.Role != domainwf.RoleSupplier || req.Actor.UserID == "" {
		return nil, newError(ErrGuardViolation, op, "", "", ErrRoleCannotSubmit)
	}
	if err := validateSubmission(&req); err != nil {
		return nil, newError(ErrValidation, op, "", "", err)
	}
	if req.Currency == "" {
		req.Currency = e.defaultCurrency
	}

	now := e.now()
	bill := &entity.Bill{
		ID:            uuid.NewString(),
		SupplierID:    req.Actor.UserID,
		MDAID:         req.MDAID,
		InvoiceNumber: req.InvoiceNumber,
		InvoiceDate:   req.InvoiceDate,
		DueDate:       req.DueDate,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
		Status:        domainwf.StateSubmitted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	bill.AppendHistory(domainwf.StateSubmitted, now, "bill submitted")

	effects, err := submissionEffects(bill, now)
	if err != nil {
		return nil, newError(ErrInternal, op, bill.ID, "", err)
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.billRepo.Create(txCtx, bill); err != nil {
			return err
		}
		return e.outboxRepo.Enqueue(txCtx, effects)
	})
	if err != nil {
		if errors.Is(err, port.ErrDuplicate) {
			return nil, newError(ErrValidation, op, bill.ID, "", fmt.Errorf("%w: %s", ErrDuplicateInvoice, req.InvoiceNumber))
		}
		e.logger.Error("Failed to submit bill", "error", err, "supplier_id", bill.SupplierID)
		return nil, newError(ErrInternal, op, bill.ID, "", err)
	}

	e.logger.Info("Bill submitted",
		"bill_id", bill.ID,
		"supplier_id", bill.SupplierID,
		"mda_id", bill.MDAID,
		"amount", bill.Amount.String(),
	)
	e.publish(ctx, event.NewEvent(event.TypeBillSubmitted, bill.ID, map[string]interface{}{
		event.KeyToStatus: bill.Status,
		event.KeyActorID:  req.Actor.UserID,
	}))

	return bill, nil
}

// Fire validates and applies a transition
func (e *engineImpl) Fire(ctx context.Context, cmd Command) (*entity.Bill, error) {
	const op = "fire"

	if !cmd.Trigger.IsValid() {
		return nil, newError(ErrValidation, op, cmd.BillID, cmd.Trigger, ErrUnknownTrigger)
	}

	bill, err := e.billRepo.GetByID(ctx, cmd.BillID)
	if err != nil {
		return nil, e.loadError(op, cmd, err)
	}
	from := bill.Status

	// Role and state first, then input, then the guards
	machine := e.lifecycle.Build(from)
	if !machine.CanFireAs(cmd.Trigger, cmd.Actor.Role) {
		// Fire reports the structural reason without reaching the guards
		fireErr := machine.Fire(ctx, cmd.Trigger, cmd.Actor.Role, nil)
		return nil, e.deny(ctx, cmd, bill, e.structuralDenial(cmd.Trigger, bill, fireErr))
	}

	payload := cmd.Payload
	if err := e.validatePayload(cmd.Trigger, bill, &payload); err != nil {
		return nil, newError(ErrValidation, op, bill.ID, cmd.Trigger, err)
	}

	input := &transitionInput{bill: bill, actor: cmd.Actor, payload: payload}
	if err := machine.Fire(ctx, cmd.Trigger, cmd.Actor.Role, input); err != nil {
		if !isGuardCause(err) {
			e.logger.Error("Guard evaluation failed", "error", err, "bill_id", bill.ID, "trigger", cmd.Trigger)
			return nil, newError(ErrInternal, op, bill.ID, cmd.Trigger, err)
		}
		return nil, e.deny(ctx, cmd, bill, err)
	}
	to := machine.State()

	now := e.now()
	next := bill.Clone()
	if err := e.apply(cmd.Trigger, next, cmd.Actor, payload, now); err != nil {
		return nil, newError(ErrValidation, op, bill.ID, cmd.Trigger, err)
	}
	next.Status = to
	next.AppendHistory(to, now, historyNote(cmd.Trigger, next, cmd.Actor, payload))

	effects, err := sideEffects(cmd.Trigger, next, cmd.Actor, payload, now)
	if err != nil {
		return nil, newError(ErrInternal, op, bill.ID, cmd.Trigger, err)
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.billRepo.CompareAndSwap(txCtx, from, next); err != nil {
			return err
		}
		return e.outboxRepo.Enqueue(txCtx, effects)
	})
	if err != nil {
		return nil, e.commitError(op, cmd, err)
	}

	e.logger.Info("Bill transitioned",
		"bill_id", next.ID,
		"trigger", cmd.Trigger,
		"from", from,
		"to", to,
		"actor_id", cmd.Actor.UserID,
		"actor_role", cmd.Actor.Role,
		"version", next.Version,
	)
	e.publish(ctx, event.NewEvent(event.TypeBillTransitioned, next.ID, map[string]interface{}{
		event.KeyFromStatus: from,
		event.KeyToStatus:   to,
		event.KeyTrigger:    cmd.Trigger,
		event.KeyActorID:    cmd.Actor.UserID,
		event.KeyActorRole:  cmd.Actor.Role,
	}))

	return next, nil
}

// PermittedTriggers lists triggers the actor's role may fire from the bill's
// status, excluding those blocked by supplier ownership or MDA scope
func (e *engineImpl) PermittedTriggers(ctx context.Context, billID string, actor entity.Actor) ([]domainwf.Trigger, error) {
	bill, err := e.billRepo.GetByID(ctx, billID)
	if err != nil {
		return nil, e.loadError("permitted_triggers", Command{BillID: billID, Actor: actor}, err)
	}

	if err := checkOwnership(&transitionInput{bill: bill, actor: actor}); err != nil {
		return []domainwf.Trigger{}, nil
	}

	triggers := e.lifecycle.Build(bill.Status).PermittedTriggersFor(actor.Role)
	out := make([]domainwf.Trigger, 0, len(triggers))
	for _, t := range triggers {
		if t == domainwf.TriggerMakeOffer && bill.HasLiveOffer() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetBill loads a bill
func (e *engineImpl) GetBill(ctx context.Context, billID string) (*entity.Bill, error) {
	bill, err := e.billRepo.GetByID(ctx, billID)
	if err != nil {
		return nil, e.loadError("get", Command{BillID: billID}, err)
	}
	return bill, nil
}

// apply mutates the copy of the bill for the fired trigger
func (e *engineImpl) apply(trigger domainwf.Trigger, b *entity.Bill, actor entity.Actor, p Payload, now time.Time) error {
	switch trigger {
	case domainwf.TriggerMakeOffer:
		amount := *p.OfferAmount
		rate := *p.DiscountRate
		spv := actor.UserID
		b.OfferAmount = &amount
		b.OfferDiscountRate = &rate
		b.OfferDate = &now
		b.OfferAcceptedDate = nil
		b.SPVID = &spv
		b.RejectionReason = ""
		b.LastRejectedBySupplier = false
		b.LastRejectionDate = nil

	case domainwf.TriggerAcceptOffer:
		b.OfferAcceptedDate = &now

	case domainwf.TriggerRejectOffer:
		// The SPV keeps visibility so it can revise the offer
		b.OfferAmount = nil
		b.OfferDiscountRate = nil
		b.OfferDate = nil
		b.OfferAcceptedDate = nil
		b.RejectionReason = p.Reason
		b.LastRejectedBySupplier = true
		b.LastRejectionDate = &now

	case domainwf.TriggerApprove:
		if err := e.schedule(b, p, now); err != nil {
			return err
		}
		b.MDAApprovedDate = &now
		b.MDANotes = p.Notes

	case domainwf.TriggerAmendTerms:
		if err := e.schedule(b, p, now); err != nil {
			return err
		}

	case domainwf.TriggerCertify:
		cert := p.CertificateNumber
		b.TreasuryCertifiedDate = &now
		b.CertificateNumber = &cert

	case domainwf.TriggerReject:
		b.RejectionReason = p.Reason
		b.LastRejectedBySupplier = false
		b.LastRejectionDate = &now
	}
	return nil
}

func (e *engineImpl) schedule(b *entity.Bill, p Payload, now time.Time) error {
	in := terms.Input{
		Principal:     b.Amount,
		Quarters:      p.PaymentQuarters,
		StartQuarter:  p.StartQuarter,
		RateOverrides: p.RateOverrides,
		AsOf:          now,
	}
	if p.AnnualRate != nil {
		in.AnnualRate = *p.AnnualRate
	}

	schedule, err := terms.Calculate(in)
	if err != nil {
		return fmt.Errorf("compute payment terms: %w", err)
	}

	start, _ := terms.ParseQuarter(p.StartQuarter)
	b.PaymentQuarters = p.PaymentQuarters
	b.PaymentStartQuarter = start.String()
	b.PaymentTerms = schedule
	b.PaymentAnnualRate = nil
	if p.AnnualRate != nil {
		rate := *p.AnnualRate
		b.PaymentAnnualRate = &rate
	}
	b.PaymentRateOverrides = nil
	if len(p.RateOverrides) > 0 {
		b.PaymentRateOverrides = entity.CloneRates(p.RateOverrides)
	}
	return nil
}

func historyNote(trigger domainwf.Trigger, b *entity.Bill, actor entity.Actor, p Payload) string {
	var note string
	switch trigger {
	case domainwf.TriggerMakeOffer:
		note = fmt.Sprintf("offer of %s at %s%% by %s", b.OfferAmount.StringFixed(2), b.OfferDiscountRate.String(), actor.UserID)
	case domainwf.TriggerRejectOffer:
		note = "offer rejected by supplier: " + p.Reason
	case domainwf.TriggerApprove:
		note = fmt.Sprintf("approved for %d quarters from %s", b.PaymentQuarters, b.PaymentStartQuarter)
	case domainwf.TriggerAmendTerms:
		note = "payment terms amended"
	case domainwf.TriggerCertify:
		note = "certificate " + *b.CertificateNumber
	case domainwf.TriggerReject:
		note = fmt.Sprintf("rejected by %s: %s", actor.Role, p.Reason)
	default:
		note = fmt.Sprintf("%s by %s", trigger, actor.Role)
	}
	if p.Note != "" {
		note += "; " + p.Note
	}
	return note
}

// structuralDenial explains why a trigger cannot fire from the bill's state
func (e *engineImpl) structuralDenial(trigger domainwf.Trigger, bill *entity.Bill, err error) error {
	if trigger == domainwf.TriggerMakeOffer && errors.Is(err, domainwf.ErrInvalidTransition) &&
		(bill.HasLiveOffer() || bill.Status.Reached(domainwf.StateOfferMade)) {
		return fmt.Errorf("%w: bill is %s", ErrAlreadyOffered, bill.Status)
	}
	return err
}

// deny records a refused attempt and wraps it as a guard violation
func (e *engineImpl) deny(ctx context.Context, cmd Command, bill *entity.Bill, cause error) error {
	e.logger.Info("Transition denied",
		"bill_id", bill.ID,
		"trigger", cmd.Trigger,
		"status", bill.Status,
		"actor_id", cmd.Actor.UserID,
		"actor_role", cmd.Actor.Role,
		"reason", cause.Error(),
	)

	if e.activity != nil {
		details := fmt.Sprintf("%s from %s denied: %v", cmd.Trigger, bill.Status, cause)
		if err := e.activity.Log(ctx, cmd.Actor.UserID, entity.ActionTransitionDenied, bill.ID, details); err != nil {
			e.logger.Error("Failed to record denied transition", "error", err, "bill_id", bill.ID)
		}
	}

	e.publish(ctx, event.NewEvent(event.TypeTransitionDenied, bill.ID, map[string]interface{}{
		event.KeyTrigger:   cmd.Trigger,
		event.KeyActorID:   cmd.Actor.UserID,
		event.KeyActorRole: cmd.Actor.Role,
		event.KeyReason:    cause.Error(),
	}))

	return newError(ErrGuardViolation, "fire", bill.ID, cmd.Trigger, cause)
}

func (e *engineImpl) loadError(op string, cmd Command, err error) error {
	if errors.Is(err, port.ErrNotFound) {
		return newError(ErrNotFound, op, cmd.BillID, cmd.Trigger, err)
	}
	e.logger.Error("Failed to load bill", "error", err, "bill_id", cmd.BillID)
	return newError(ErrInternal, op, cmd.BillID, cmd.Trigger, err)
}

func (e *engineImpl) commitError(op string, cmd Command, err error) error {
	switch {
	case errors.Is(err, port.ErrConflict):
		e.logger.Info("Transition lost a concurrent update", "bill_id", cmd.BillID, "trigger", cmd.Trigger, "actor_id", cmd.Actor.UserID)
		return newError(ErrConcurrencyConflict, op, cmd.BillID, cmd.Trigger, err)
	case errors.Is(err, port.ErrDuplicate) && cmd.Trigger == domainwf.TriggerCertify:
		return newError(ErrGuardViolation, op, cmd.BillID, cmd.Trigger, fmt.Errorf("%w: %v", ErrDuplicateCertificate, err))
	case errors.Is(err, port.ErrNotFound):
		return newError(ErrNotFound, op, cmd.BillID, cmd.Trigger, err)
	default:
		e.logger.Error("Failed to commit transition", "error", err, "bill_id", cmd.BillID, "trigger", cmd.Trigger)
		return newError(ErrInternal, op, cmd.BillID, cmd.Trigger, err)
	}
}

func (e *engineImpl) publish(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

// isGuardCause reports whether a Fire error is a denial rather than a store failure
func isGuardCause(err error) bool {
	for _, cause := range []error{
		ErrAlreadyOffered,
		ErrNoOffer,
		ErrDuplicateCertificate,
		ErrScopeMismatch,
		ErrNotBillSupplier,
		domainwf.ErrInvalidTransition,
		domainwf.ErrRoleNotPermitted,
	} {
		if errors.Is(err, cause) {
			return true
		}
	}
	return false
}
