package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	domainwf "github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/google/uuid"
)

var triggerActions = map[domainwf.Trigger]string{
	domainwf.TriggerStartReview:         entity.ActionReviewStarted,
	domainwf.TriggerMakeOffer:           entity.ActionOfferMade,
	domainwf.TriggerAcceptOffer:         entity.ActionOfferAccepted,
	domainwf.TriggerRejectOffer:         entity.ActionOfferRejected,
	domainwf.TriggerStartMDAReview:      entity.ActionMDAReviewStarted,
	domainwf.TriggerApprove:             entity.ActionMDAApproved,
	domainwf.TriggerSetTerms:            entity.ActionTermsSet,
	domainwf.TriggerSendAgreement:       entity.ActionAgreementSent,
	domainwf.TriggerStartTreasuryReview: entity.ActionTreasuryReview,
	domainwf.TriggerAmendTerms:          entity.ActionTermsAmended,
	domainwf.TriggerCertify:             entity.ActionCertified,
	domainwf.TriggerReject:              entity.ActionBillRejected,
}

func supplierOf(b *entity.Bill) entity.RecipientSelector {
	return entity.RecipientSelector{UserID: b.SupplierID}
}

func spvOf(b *entity.Bill) []entity.RecipientSelector {
	if b.SPV() == "" {
		return nil
	}
	return []entity.RecipientSelector{{UserID: b.SPV()}}
}

func mdaCohort(b *entity.Bill) entity.RecipientSelector {
	return entity.RecipientSelector{Role: domainwf.RoleMDA, ScopeID: b.MDAID}
}

func cohort(role domainwf.Role) entity.RecipientSelector {
	return entity.RecipientSelector{Role: role}
}

// sideEffects builds the outbox entries for a committed transition of bill
func sideEffects(trigger domainwf.Trigger, bill *entity.Bill, actor entity.Actor, p Payload, now time.Time) ([]*entity.OutboxEntry, error) {
	var entries []*entity.OutboxEntry
	add := func(kind string, payload interface{}) error {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", kind, err)
		}
		entries = append(entries, &entity.OutboxEntry{
			ID:        uuid.NewString(),
			BillID:    bill.ID,
			Kind:      kind,
			Payload:   raw,
			Status:    entity.OutboxStatusPending,
			CreatedAt: now,
		})
		return nil
	}
	notify := func(title, message, kind string, targets ...entity.RecipientSelector) error {
		if len(targets) == 0 {
			return nil
		}
		return add(entity.OutboxKindNotify, entity.NotifyPayload{
			Targets: targets,
			Title:   title,
			Message: message,
			Kind:    kind,
		})
	}

	inv := bill.InvoiceNumber
	var err error

	switch trigger {
	case domainwf.TriggerStartReview:
		err = notify("Bill under review",
			fmt.Sprintf("Invoice %s is being reviewed by an SPV", inv),
			entity.NotificationKindInfo, supplierOf(bill))

	case domainwf.TriggerMakeOffer:
		err = notify("New purchase offer",
			fmt.Sprintf("An offer of %s %s at %s%% discount was made on invoice %s",
				bill.Currency, bill.OfferAmount.StringFixed(2), bill.OfferDiscountRate.String(), inv),
			entity.NotificationKindInfo, supplierOf(bill))

	case domainwf.TriggerAcceptOffer:
		targets := append([]entity.RecipientSelector{mdaCohort(bill)}, spvOf(bill)...)
		err = notify("Offer accepted",
			fmt.Sprintf("The supplier accepted the offer on invoice %s; MDA approval is required", inv),
			entity.NotificationKindSuccess, targets...)

	case domainwf.TriggerRejectOffer:
		err = notify("Offer rejected",
			fmt.Sprintf("The supplier rejected your offer on invoice %s: %s", inv, bill.RejectionReason),
			entity.NotificationKindWarning, spvOf(bill)...)

	case domainwf.TriggerStartMDAReview:
		err = notify("MDA review started",
			fmt.Sprintf("The MDA is reviewing invoice %s", inv),
			entity.NotificationKindInfo, supplierOf(bill))

	case domainwf.TriggerApprove:
		targets := append([]entity.RecipientSelector{supplierOf(bill)}, spvOf(bill)...)
		targets = append(targets, cohort(domainwf.RoleTreasury))
		err = notify("Bill approved by MDA",
			fmt.Sprintf("Invoice %s was approved for payment over %d quarters starting %s",
				inv, bill.PaymentQuarters, bill.PaymentStartQuarter),
			entity.NotificationKindSuccess, targets...)

	case domainwf.TriggerSetTerms, domainwf.TriggerSendAgreement:
		targets := append([]entity.RecipientSelector{supplierOf(bill)}, spvOf(bill)...)
		title := "Payment terms set"
		if trigger == domainwf.TriggerSendAgreement {
			title = "Agreement sent"
		}
		err = notify(title, fmt.Sprintf("Invoice %s moved to %s", inv, bill.Status),
			entity.NotificationKindInfo, targets...)

	case domainwf.TriggerStartTreasuryReview:
		err = notify("Treasury review started",
			fmt.Sprintf("Treasury is reviewing invoice %s", inv),
			entity.NotificationKindInfo, supplierOf(bill))

	case domainwf.TriggerAmendTerms:
		targets := append([]entity.RecipientSelector{supplierOf(bill)}, spvOf(bill)...)
		targets = append(targets, mdaCohort(bill))
		err = notify("Payment terms amended",
			fmt.Sprintf("Treasury amended the payment terms of invoice %s to %d quarters starting %s",
				inv, bill.PaymentQuarters, bill.PaymentStartQuarter),
			entity.NotificationKindWarning, targets...)

	case domainwf.TriggerCertify:
		targets := append([]entity.RecipientSelector{supplierOf(bill)}, spvOf(bill)...)
		targets = append(targets, mdaCohort(bill), cohort(domainwf.RoleAdmin))
		err = notify("Bill certified",
			fmt.Sprintf("Invoice %s was certified by Treasury with certificate %s", inv, *bill.CertificateNumber),
			entity.NotificationKindSuccess, targets...)
		if err == nil {
			err = add(entity.OutboxKindDeed, deedPayload(bill))
		}

	case domainwf.TriggerReject:
		targets := append([]entity.RecipientSelector{supplierOf(bill)}, spvOf(bill)...)
		err = notify("Bill rejected",
			fmt.Sprintf("Invoice %s was rejected by %s: %s", inv, actor.Role, bill.RejectionReason),
			entity.NotificationKindError, targets...)
	}
	if err != nil {
		return nil, err
	}

	details := fmt.Sprintf("%s by %s", trigger, actor.Role)
	if p.Note != "" {
		details += ": " + p.Note
	}
	if err := add(entity.OutboxKindActivity, entity.ActivityPayload{
		ActorUserID: actor.UserID,
		Action:      triggerActions[trigger],
		Details:     details,
	}); err != nil {
		return nil, err
	}

	return entries, nil
}

// submissionEffects builds the outbox entries for a newly submitted bill
func submissionEffects(bill *entity.Bill, now time.Time) ([]*entity.OutboxEntry, error) {
	notifyRaw, err := json.Marshal(entity.NotifyPayload{
		Targets: []entity.RecipientSelector{cohort(domainwf.RoleSPV)},
		Title:   "New bill available",
		Message: fmt.Sprintf("Invoice %s for %s %s is open for offers", bill.InvoiceNumber, bill.Currency, bill.Amount.StringFixed(2)),
		Kind:    entity.NotificationKindInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("encode notify payload: %w", err)
	}
	activityRaw, err := json.Marshal(entity.ActivityPayload{
		ActorUserID: bill.SupplierID,
		Action:      entity.ActionBillSubmitted,
		Details:     "invoice " + bill.InvoiceNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("encode activity payload: %w", err)
	}

	return []*entity.OutboxEntry{
		{ID: uuid.NewString(), BillID: bill.ID, Kind: entity.OutboxKindNotify, Payload: notifyRaw, Status: entity.OutboxStatusPending, CreatedAt: now},
		{ID: uuid.NewString(), BillID: bill.ID, Kind: entity.OutboxKindActivity, Payload: activityRaw, Status: entity.OutboxStatusPending, CreatedAt: now},
	}, nil
}

func deedPayload(bill *entity.Bill) entity.DeedPayload {
	p := entity.DeedPayload{
		SupplierID: bill.SupplierID,
		MDAID:      bill.MDAID,
		SPVID:      bill.SPV(),
		Principal:  bill.Amount.String(),
		Metadata: map[string]string{
			"invoice_number":     bill.InvoiceNumber,
			"certificate_number": *bill.CertificateNumber,
			"currency":           bill.Currency,
		},
	}
	if bill.OfferDiscountRate != nil {
		p.DiscountRate = bill.OfferDiscountRate.String()
	}
	if bill.OfferAmount != nil {
		p.PurchasePrice = bill.OfferAmount.String()
	}
	return p
}
