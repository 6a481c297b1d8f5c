package terms

import (
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPrincipal is returned for a non-positive principal
	ErrInvalidPrincipal = errors.New("principal must be positive")
	// ErrInvalidQuarterCount is returned for a non-positive quarter count
	ErrInvalidQuarterCount = errors.New("quarter count must be positive")
	// ErrInvalidRate is returned for a negative rate or an override outside the schedule
	ErrInvalidRate = errors.New("invalid rate")
)

var (
	hundred        = decimal.NewFromInt(100)
	quartersInYear = decimal.NewFromInt(4)
)

// Input describes a schedule to compute
type Input struct {
	Principal    decimal.Decimal
	Quarters     int
	StartQuarter string
	// AnnualRate is a percentage applied to the outstanding balance each quarter
	AnnualRate decimal.Decimal
	// RateOverrides replaces AnnualRate for a zero-based quarter index
	RateOverrides map[int]decimal.Decimal
	// PaidQuarters marks the first n installments as paid
	PaidQuarters int
	// AsOf decides which installments are due. Zero means no installment is due yet.
	AsOf time.Time
}

// Calculate computes the quarterly schedule. The installment amounts always
// sum to the principal exactly; the last quarter absorbs the rounding remainder.
func Calculate(in Input) ([]entity.PaymentTerm, error) {
	if !in.Principal.IsPositive() {
		return nil, ErrInvalidPrincipal
	}
	if in.Quarters <= 0 {
		return nil, ErrInvalidQuarterCount
	}
	if in.AnnualRate.IsNegative() {
		return nil, fmt.Errorf("%w: annual rate %s", ErrInvalidRate, in.AnnualRate)
	}
	for idx, rate := range in.RateOverrides {
		if idx < 0 || idx >= in.Quarters || rate.IsNegative() {
			return nil, fmt.Errorf("%w: override for quarter %d", ErrInvalidRate, idx)
		}
	}

	start, err := ParseQuarter(in.StartQuarter)
	if err != nil {
		return nil, err
	}

	var current Quarter
	if !in.AsOf.IsZero() {
		current = QuarterOf(in.AsOf)
	}

	// Truncating keeps every earlier installment at or below the last one
	base := in.Principal.Div(decimal.NewFromInt(int64(in.Quarters))).Truncate(2)
	outstanding := in.Principal
	allocated := decimal.Zero

	schedule := make([]entity.PaymentTerm, 0, in.Quarters)
	q := start
	for i := 0; i < in.Quarters; i++ {
		amount := base
		if i == in.Quarters-1 {
			amount = in.Principal.Sub(allocated)
		}

		rate := in.AnnualRate
		if override, ok := in.RateOverrides[i]; ok {
			rate = override
		}
		interest := outstanding.Mul(rate).Div(hundred).Div(quartersInYear).Round(2)

		schedule = append(schedule, entity.PaymentTerm{
			QuarterLabel: q.String(),
			Amount:       amount,
			Interest:     interest,
			DueDate:      q.DueDate(),
			Status:       termStatus(i, q, in.PaidQuarters, current, in.AsOf.IsZero()),
		})

		allocated = allocated.Add(amount)
		outstanding = outstanding.Sub(amount)
		q = q.Next()
	}

	return schedule, nil
}

func termStatus(idx int, q Quarter, paid int, current Quarter, noClock bool) string {
	if idx < paid {
		return entity.PaymentStatusPaid
	}
	if noClock {
		return entity.PaymentStatusUpcoming
	}
	if q.Before(current) || q == current {
		return entity.PaymentStatusDue
	}
	return entity.PaymentStatusUpcoming
}

// Total sums installment amounts
func Total(schedule []entity.PaymentTerm) decimal.Decimal {
	total := decimal.Zero
	for _, term := range schedule {
		total = total.Add(term.Amount)
	}
	return total
}

// TotalInterest sums installment interest
func TotalInterest(schedule []entity.PaymentTerm) decimal.Decimal {
	total := decimal.Zero
	for _, term := range schedule {
		total = total.Add(term.Interest)
	}
	return total
}
