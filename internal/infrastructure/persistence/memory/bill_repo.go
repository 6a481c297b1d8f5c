package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
)

type billRepo struct {
	s *Store
}

func (r *billRepo) Create(ctx context.Context, bill *entity.Bill) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.bills[bill.ID]; exists {
		return fmt.Errorf("bill %s: %w", bill.ID, port.ErrDuplicate)
	}
	for _, b := range r.s.bills {
		if b.SupplierID == bill.SupplierID && b.InvoiceNumber == bill.InvoiceNumber {
			return fmt.Errorf("invoice %s: %w", bill.InvoiceNumber, port.ErrDuplicate)
		}
	}

	r.s.bills[bill.ID] = bill.Clone()
	r.s.billOrder = append(r.s.billOrder, bill.ID)
	return nil
}

func (r *billRepo) GetByID(ctx context.Context, id string) (*entity.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.bills[id]
	if !ok {
		return nil, fmt.Errorf("bill %s: %w", id, port.ErrNotFound)
	}
	return b.Clone(), nil
}

func (r *billRepo) Query(ctx context.Context, filter port.BillFilter) ([]*entity.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := r.match(filter)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*entity.Bill{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]*entity.Bill, len(matched))
	for i, b := range matched {
		out[i] = b.Clone()
	}
	return out, nil
}

func (r *billRepo) CountByStatus(ctx context.Context, filter port.BillFilter) (map[workflow.State]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[workflow.State]int)
	for _, b := range r.match(filter) {
		counts[b.Status]++
	}
	return counts, nil
}

func (r *billRepo) CompareAndSwap(ctx context.Context, expected workflow.State, bill *entity.Bill) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.bills[bill.ID]
	if !ok {
		return fmt.Errorf("bill %s: %w", bill.ID, port.ErrNotFound)
	}
	if current.Status != expected || current.Version != bill.Version {
		return fmt.Errorf("bill %s expected %s v%d, found %s v%d: %w",
			bill.ID, expected, bill.Version, current.Status, current.Version, port.ErrConflict)
	}
	if bill.CertificateNumber != nil {
		for id, other := range r.s.bills {
			if id != bill.ID && other.CertificateNumber != nil && *other.CertificateNumber == *bill.CertificateNumber {
				return fmt.Errorf("certificate %s: %w", *bill.CertificateNumber, port.ErrDuplicate)
			}
		}
	}

	next := bill.Clone()
	// History is append-only: keep what is stored and add the newest entry
	next.StatusHistory = append([]entity.StatusEntry(nil), current.StatusHistory...)
	if last, ok := bill.LastHistory(); ok && len(bill.StatusHistory) > len(current.StatusHistory) {
		next.StatusHistory = append(next.StatusHistory, last)
	}
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now().UTC()
	r.s.bills[bill.ID] = next

	bill.Version = next.Version
	bill.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *billRepo) SetDeedID(ctx context.Context, billID, deedID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bills[billID]
	if !ok {
		return fmt.Errorf("bill %s: %w", billID, port.ErrNotFound)
	}
	b.DeedID = &deedID
	return nil
}

func (r *billRepo) CertificateExists(ctx context.Context, certificateNumber, excludeBillID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for id, b := range r.s.bills {
		if id != excludeBillID && b.CertificateNumber != nil && *b.CertificateNumber == certificateNumber {
			return true, nil
		}
	}
	return false, nil
}

// match must be called with the read lock held
func (r *billRepo) match(filter port.BillFilter) []*entity.Bill {
	statuses := make(map[workflow.State]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}

	var matched []*entity.Bill
	for _, id := range r.s.billOrder {
		b := r.s.bills[id]
		if len(statuses) > 0 && !statuses[b.Status] {
			continue
		}
		if filter.MDAID != "" && b.MDAID != filter.MDAID {
			continue
		}
		if filter.SupplierID != "" && b.SupplierID != filter.SupplierID {
			continue
		}
		if filter.SPVID != "" && b.SPV() != filter.SPVID {
			continue
		}
		if filter.LastRejectedBySupplier != nil && b.LastRejectedBySupplier != *filter.LastRejectedBySupplier {
			continue
		}
		matched = append(matched, b)
	}
	return matched
}
