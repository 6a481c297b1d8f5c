package workflow

import (
	"time"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	domainwf "github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// Payload carries the trigger-specific input. Fields a trigger does not use are ignored.
type Payload struct {
	// MAKE_OFFER
	OfferAmount  *decimal.Decimal `json:"offer_amount,omitempty"`
	DiscountRate *decimal.Decimal `json:"discount_rate,omitempty"`

	// REJECT_OFFER, REJECT
	Reason string `json:"reason,omitempty"`

	// APPROVE, AMEND_TERMS
	Notes           string                  `json:"notes,omitempty"`
	PaymentQuarters int                     `json:"payment_quarters,omitempty"`
	StartQuarter    string                  `json:"start_quarter,omitempty"`
	AnnualRate      *decimal.Decimal        `json:"annual_rate,omitempty"`
	RateOverrides   map[int]decimal.Decimal `json:"rate_overrides,omitempty"`

	// CERTIFY
	CertificateNumber string `json:"certificate_number,omitempty"`

	// Note is appended to the status history entry
	Note string `json:"note,omitempty"`
}

// Command asks the engine to fire a trigger on a bill
type Command struct {
	BillID  string
	Trigger domainwf.Trigger
	Actor   entity.Actor
	Payload Payload
}

// SubmitRequest creates a new bill on behalf of a supplier
type SubmitRequest struct {
	Actor         entity.Actor
	MDAID         string
	InvoiceNumber string
	InvoiceDate   time.Time
	DueDate       *time.Time
	Amount        decimal.Decimal
	Currency      string
	Description   string
}

// transitionInput is the subject handed to guards
type transitionInput struct {
	bill    *entity.Bill
	actor   entity.Actor
	payload Payload
}
