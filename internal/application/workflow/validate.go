package workflow

import (
	"fmt"
	"strings"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/terms"
	domainwf "github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/garyjia/receivables-portal/pkg/utils"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// validatePayload checks trigger input before guards run. It may fill
// derived values such as an omitted discount rate.
func (e *engineImpl) validatePayload(trigger domainwf.Trigger, bill *entity.Bill, p *Payload) error {
	switch trigger {
	case domainwf.TriggerMakeOffer:
		if p.OfferAmount == nil || !p.OfferAmount.IsPositive() || p.OfferAmount.GreaterThan(bill.Amount) {
			return ErrInvalidOfferAmount
		}
		if p.DiscountRate == nil {
			rate := bill.Amount.Sub(*p.OfferAmount).Div(bill.Amount).Mul(hundred).Round(4)
			p.DiscountRate = &rate
		}
		if p.DiscountRate.IsNegative() || p.DiscountRate.GreaterThan(e.maxDiscountRate) {
			return fmt.Errorf("%w: %s", ErrInvalidDiscountRate, p.DiscountRate)
		}

	case domainwf.TriggerRejectOffer, domainwf.TriggerReject:
		p.Reason = strings.TrimSpace(p.Reason)
		if p.Reason == "" {
			return ErrMissingReason
		}

	case domainwf.TriggerApprove:
		if err := e.validateQuarters(p.PaymentQuarters); err != nil {
			return err
		}
		if _, err := terms.ParseQuarter(p.StartQuarter); err != nil {
			return err
		}

	case domainwf.TriggerAmendTerms:
		if p.PaymentQuarters == 0 {
			p.PaymentQuarters = bill.PaymentQuarters
		}
		if p.StartQuarter == "" {
			p.StartQuarter = bill.PaymentStartQuarter
		}
		if p.AnnualRate == nil && bill.PaymentAnnualRate != nil {
			rate := *bill.PaymentAnnualRate
			p.AnnualRate = &rate
		}
		// An explicit empty map clears the overrides
		if p.RateOverrides == nil {
			p.RateOverrides = carriedOverrides(bill.PaymentRateOverrides, p.PaymentQuarters)
		}
		if err := e.validateQuarters(p.PaymentQuarters); err != nil {
			return err
		}
		if _, err := terms.ParseQuarter(p.StartQuarter); err != nil {
			return err
		}

	case domainwf.TriggerCertify:
		p.CertificateNumber = strings.TrimSpace(p.CertificateNumber)
		if p.CertificateNumber == "" {
			return ErrMissingCertificateNumber
		}
	}
	return nil
}

// carriedOverrides keeps the overrides that still fall inside a schedule
// of n quarters
func carriedOverrides(rates map[int]decimal.Decimal, n int) map[int]decimal.Decimal {
	if len(rates) == 0 {
		return nil
	}
	kept := make(map[int]decimal.Decimal, len(rates))
	for idx, rate := range rates {
		if idx >= 0 && idx < n {
			kept[idx] = rate
		}
	}
	return kept
}

func (e *engineImpl) validateQuarters(n int) error {
	if e.allowedQuarters[n] {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrQuarterCountNotAllowed, n)
}

func validateSubmission(req *SubmitRequest) error {
	req.InvoiceNumber = utils.SanitizeString(req.InvoiceNumber)
	req.MDAID = utils.SanitizeString(req.MDAID)
	req.Description = utils.SanitizeString(req.Description)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

	switch {
	case !req.Amount.IsPositive():
		return ErrInvalidAmount
	case req.InvoiceNumber == "":
		return fmt.Errorf("%w: invoice number", ErrMissingField)
	case req.MDAID == "":
		return fmt.Errorf("%w: mda id", ErrMissingField)
	case req.InvoiceDate.IsZero():
		return fmt.Errorf("%w: invoice date", ErrMissingField)
	case req.DueDate != nil && req.DueDate.Before(req.InvoiceDate):
		return ErrInvalidDueDate
	case req.Currency != "" && utils.ValidateCurrency(req.Currency) != nil:
		return fmt.Errorf("%w: %s", ErrInvalidCurrency, req.Currency)
	}
	return nil
}
