package entity

import (
	"time"

	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// Bill is an invoice raised by a supplier against an MDA and tracked
// through the securitization lifecycle
type Bill struct {
	ID         string  `json:"id"`
	SupplierID string  `json:"supplier_id"`
	MDAID      string  `json:"mda_id"`
	SPVID      *string `json:"spv_id,omitempty"`

	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description,omitempty"`

	OfferAmount       *decimal.Decimal `json:"offer_amount,omitempty"`
	OfferDiscountRate *decimal.Decimal `json:"offer_discount_rate,omitempty"`
	OfferDate         *time.Time       `json:"offer_date,omitempty"`
	OfferAcceptedDate *time.Time       `json:"offer_accepted_date,omitempty"`

	MDAApprovedDate     *time.Time    `json:"mda_approved_date,omitempty"`
	MDANotes            string        `json:"mda_notes,omitempty"`
	PaymentQuarters     int           `json:"payment_quarters,omitempty"`
	PaymentStartQuarter string        `json:"payment_start_quarter,omitempty"`
	PaymentTerms        []PaymentTerm `json:"payment_terms,omitempty"`
	// PaymentAnnualRate and PaymentRateOverrides are the rates the current
	// schedule was computed with
	PaymentAnnualRate    *decimal.Decimal        `json:"payment_annual_rate,omitempty"`
	PaymentRateOverrides map[int]decimal.Decimal `json:"payment_rate_overrides,omitempty"`

	TreasuryCertifiedDate *time.Time `json:"treasury_certified_date,omitempty"`
	CertificateNumber     *string    `json:"certificate_number,omitempty"`
	DeedID                *string    `json:"deed_id,omitempty"`

	RejectionReason        string     `json:"rejection_reason,omitempty"`
	LastRejectedBySupplier bool       `json:"last_rejected_by_supplier"`
	LastRejectionDate      *time.Time `json:"last_rejection_date,omitempty"`

	Status        workflow.State `json:"status"`
	StatusHistory []StatusEntry  `json:"status_history"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// StatusEntry is one append-only step of a bill's status history
type StatusEntry struct {
	Status    workflow.State `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Note      string         `json:"note,omitempty"`
}

// PaymentTerm is one quarterly installment of an approved bill
type PaymentTerm struct {
	QuarterLabel string          `json:"quarter_label"`
	Amount       decimal.Decimal `json:"amount"`
	Interest     decimal.Decimal `json:"interest"`
	DueDate      time.Time       `json:"due_date"`
	Status       string          `json:"status"`
}

// HasLiveOffer reports whether an SPV offer is currently attached
func (b *Bill) HasLiveOffer() bool {
	return b.OfferAmount != nil
}

// SPV returns the offering SPV id or an empty string
func (b *Bill) SPV() string {
	if b.SPVID == nil {
		return ""
	}
	return *b.SPVID
}

// AppendHistory records a status change. History is never rewritten.
func (b *Bill) AppendHistory(status workflow.State, at time.Time, note string) {
	b.StatusHistory = append(b.StatusHistory, StatusEntry{
		Status:    status,
		Timestamp: at,
		Note:      note,
	})
}

// LastHistory returns the most recent history entry
func (b *Bill) LastHistory() (StatusEntry, bool) {
	if len(b.StatusHistory) == 0 {
		return StatusEntry{}, false
	}
	return b.StatusHistory[len(b.StatusHistory)-1], true
}

// TotalScheduled sums the payment schedule amounts
func (b *Bill) TotalScheduled() decimal.Decimal {
	total := decimal.Zero
	for _, term := range b.PaymentTerms {
		total = total.Add(term.Amount)
	}
	return total
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (b *Bill) Clone() *Bill {
	if b == nil {
		return nil
	}
	c := *b
	c.SPVID = cloneString(b.SPVID)
	c.DueDate = cloneTime(b.DueDate)
	c.OfferAmount = cloneDecimal(b.OfferAmount)
	c.OfferDiscountRate = cloneDecimal(b.OfferDiscountRate)
	c.OfferDate = cloneTime(b.OfferDate)
	c.OfferAcceptedDate = cloneTime(b.OfferAcceptedDate)
	c.MDAApprovedDate = cloneTime(b.MDAApprovedDate)
	c.TreasuryCertifiedDate = cloneTime(b.TreasuryCertifiedDate)
	c.CertificateNumber = cloneString(b.CertificateNumber)
	c.DeedID = cloneString(b.DeedID)
	c.LastRejectionDate = cloneTime(b.LastRejectionDate)
	if b.PaymentTerms != nil {
		c.PaymentTerms = append([]PaymentTerm(nil), b.PaymentTerms...)
	}
	c.PaymentAnnualRate = cloneDecimal(b.PaymentAnnualRate)
	c.PaymentRateOverrides = CloneRates(b.PaymentRateOverrides)
	c.StatusHistory = append([]StatusEntry(nil), b.StatusHistory...)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// CloneRates copies a per-quarter rate map
func CloneRates(rates map[int]decimal.Decimal) map[int]decimal.Decimal {
	if rates == nil {
		return nil
	}
	c := make(map[int]decimal.Decimal, len(rates))
	for k, v := range rates {
		c[k] = v
	}
	return c
}
