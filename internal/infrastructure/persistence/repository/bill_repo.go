package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const billColumns = `
	id, supplier_id, mda_id, spv_id, invoice_number, invoice_date, due_date,
	amount, currency, description,
	offer_amount, offer_discount_rate, offer_date, offer_accepted_date,
	mda_approved_date, mda_notes, payment_quarters, payment_start_quarter, payment_terms,
	payment_annual_rate, payment_rate_overrides,
	treasury_certified_date, certificate_number, deed_id,
	rejection_reason, last_rejected_by_supplier, last_rejection_date,
	status, version, created_at, updated_at`

// BillRepository implements port.BillRepository
type BillRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewBillRepository creates a new bill repository
func NewBillRepository(db *sqlite.DB, logger *zap.Logger) port.BillRepository {
	return &BillRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the bill and its initial history
func (r *BillRepository) Create(ctx context.Context, bill *entity.Bill) error {
	terms, rates, err := encodeSchedule(bill)
	if err != nil {
		return err
	}

	query := `INSERT INTO bills (` + billColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			bill.ID,
			bill.SupplierID,
			bill.MDAID,
			bill.SPVID,
			bill.InvoiceNumber,
			bill.InvoiceDate,
			bill.DueDate,
			bill.Amount,
			bill.Currency,
			bill.Description,
			bill.OfferAmount,
			bill.OfferDiscountRate,
			bill.OfferDate,
			bill.OfferAcceptedDate,
			bill.MDAApprovedDate,
			bill.MDANotes,
			bill.PaymentQuarters,
			bill.PaymentStartQuarter,
			terms,
			bill.PaymentAnnualRate,
			rates,
			bill.TreasuryCertifiedDate,
			bill.CertificateNumber,
			bill.DeedID,
			bill.RejectionReason,
			bill.LastRejectedBySupplier,
			bill.LastRejectionDate,
			bill.Status,
			bill.Version,
			bill.CreatedAt,
			bill.UpdatedAt,
		)
		if err != nil {
			if sqlite.IsUniqueViolation(err) {
				return fmt.Errorf("invoice %s: %w", bill.InvoiceNumber, port.ErrDuplicate)
			}
			r.logger.Error("Failed to create bill", zap.String("bill_id", bill.ID), zap.Error(err))
			return fmt.Errorf("failed to create bill: %w", err)
		}

		for _, entry := range bill.StatusHistory {
			if err := r.insertHistory(ctx, bill.ID, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves a bill with its full status history
func (r *BillRepository) GetByID(ctx context.Context, id string) (*entity.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = ?`

	bill, err := scanBill(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bill %s: %w", id, port.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get bill by ID", zap.String("bill_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}

	if bill.StatusHistory, err = r.history(ctx, id); err != nil {
		return nil, err
	}
	return bill, nil
}

// Query returns bills matching the filter, newest first
func (r *BillRepository) Query(ctx context.Context, filter port.BillFilter) ([]*entity.Bill, error) {
	where, args := filterClause(filter)
	query := `SELECT ` + billColumns + ` FROM bills` + where + ` ORDER BY created_at DESC, id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query bills", zap.Error(err))
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	bills := []*entity.Bill{}
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bills: %w", err)
	}
	rows.Close()

	for _, bill := range bills {
		if bill.StatusHistory, err = r.history(ctx, bill.ID); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

// CountByStatus groups matching bills by status
func (r *BillRepository) CountByStatus(ctx context.Context, filter port.BillFilter) (map[workflow.State]int, error) {
	where, args := filterClause(filter)
	query := `SELECT status, COUNT(*) FROM bills` + where + ` GROUP BY status`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to count bills", zap.Error(err))
		return nil, fmt.Errorf("failed to count bills: %w", err)
	}
	defer rows.Close()

	counts := make(map[workflow.State]int)
	for rows.Next() {
		var status workflow.State
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CompareAndSwap updates the bill only if status and version still match
func (r *BillRepository) CompareAndSwap(ctx context.Context, expected workflow.State, bill *entity.Bill) error {
	terms, rates, err := encodeSchedule(bill)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query := `
		UPDATE bills SET
			spv_id = ?, offer_amount = ?, offer_discount_rate = ?, offer_date = ?, offer_accepted_date = ?,
			mda_approved_date = ?, mda_notes = ?, payment_quarters = ?, payment_start_quarter = ?, payment_terms = ?,
			payment_annual_rate = ?, payment_rate_overrides = ?,
			treasury_certified_date = ?, certificate_number = ?,
			rejection_reason = ?, last_rejected_by_supplier = ?, last_rejection_date = ?,
			status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ? AND version = ?
	`

	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		result, err := r.db.Executor(ctx).ExecContext(ctx, query,
			bill.SPVID,
			bill.OfferAmount,
			bill.OfferDiscountRate,
			bill.OfferDate,
			bill.OfferAcceptedDate,
			bill.MDAApprovedDate,
			bill.MDANotes,
			bill.PaymentQuarters,
			bill.PaymentStartQuarter,
			terms,
			bill.PaymentAnnualRate,
			rates,
			bill.TreasuryCertifiedDate,
			bill.CertificateNumber,
			bill.RejectionReason,
			bill.LastRejectedBySupplier,
			bill.LastRejectionDate,
			bill.Status,
			now,
			bill.ID,
			expected,
			bill.Version,
		)
		if err != nil {
			if sqlite.IsUniqueViolation(err) {
				return fmt.Errorf("certificate number: %w", port.ErrDuplicate)
			}
			r.logger.Error("Failed to update bill", zap.String("bill_id", bill.ID), zap.Error(err))
			return fmt.Errorf("failed to update bill: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := r.exists(ctx, bill.ID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("bill %s: %w", bill.ID, port.ErrNotFound)
			}
			return fmt.Errorf("bill %s expected %s@%d: %w", bill.ID, expected, bill.Version, port.ErrConflict)
		}

		if n := len(bill.StatusHistory); n > 0 {
			if err := r.insertHistory(ctx, bill.ID, bill.StatusHistory[n-1]); err != nil {
				return err
			}
		}

		bill.Version++
		bill.UpdatedAt = now
		return nil
	})
}

// SetDeedID records the deed reference without touching status or version
func (r *BillRepository) SetDeedID(ctx context.Context, billID, deedID string) error {
	query := `UPDATE bills SET deed_id = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, deedID, time.Now().UTC(), billID)
	if err != nil {
		r.logger.Error("Failed to set deed ID", zap.String("bill_id", billID), zap.Error(err))
		return fmt.Errorf("failed to set deed id: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bill %s: %w", billID, port.ErrNotFound)
	}
	return nil
}

// CertificateExists reports whether another bill holds the certificate number
func (r *BillRepository) CertificateExists(ctx context.Context, certificateNumber, excludeBillID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM bills WHERE certificate_number = ? AND id <> ?)`

	var exists bool
	if err := r.db.Executor(ctx).QueryRowContext(ctx, query, certificateNumber, excludeBillID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check certificate: %w", err)
	}
	return exists, nil
}

func (r *BillRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bills WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check bill: %w", err)
	}
	return exists, nil
}

func (r *BillRepository) insertHistory(ctx context.Context, billID string, entry entity.StatusEntry) error {
	query := `INSERT INTO bill_status_history (bill_id, status, note, timestamp) VALUES (?, ?, ?, ?)`
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, billID, entry.Status, entry.Note, entry.Timestamp); err != nil {
		r.logger.Error("Failed to append status history", zap.String("bill_id", billID), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (r *BillRepository) history(ctx context.Context, billID string) ([]entity.StatusEntry, error) {
	query := `SELECT status, note, timestamp FROM bill_status_history WHERE bill_id = ? ORDER BY id ASC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var entries []entity.StatusEntry
	for rows.Next() {
		var e entity.StatusEntry
		if err := rows.Scan(&e.Status, &e.Note, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func filterClause(f port.BillFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, st)
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.MDAID != "" {
		conds = append(conds, "mda_id = ?")
		args = append(args, f.MDAID)
	}
	if f.SupplierID != "" {
		conds = append(conds, "supplier_id = ?")
		args = append(args, f.SupplierID)
	}
	if f.SPVID != "" {
		conds = append(conds, "spv_id = ?")
		args = append(args, f.SPVID)
	}
	if f.LastRejectedBySupplier != nil {
		conds = append(conds, "last_rejected_by_supplier = ?")
		args = append(args, *f.LastRejectedBySupplier)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBill(row rowScanner) (*entity.Bill, error) {
	var (
		b                                       entity.Bill
		spvID, certificate, deedID              sql.NullString
		dueDate, offerDate, acceptedDate        sql.NullTime
		approvedDate, certifiedDate, rejectedAt sql.NullTime
		offerAmount, offerRate, annualRate      decimal.NullDecimal
		terms, rates                            string
	)

	err := row.Scan(
		&b.ID,
		&b.SupplierID,
		&b.MDAID,
		&spvID,
		&b.InvoiceNumber,
		&b.InvoiceDate,
		&dueDate,
		&b.Amount,
		&b.Currency,
		&b.Description,
		&offerAmount,
		&offerRate,
		&offerDate,
		&acceptedDate,
		&approvedDate,
		&b.MDANotes,
		&b.PaymentQuarters,
		&b.PaymentStartQuarter,
		&terms,
		&annualRate,
		&rates,
		&certifiedDate,
		&certificate,
		&deedID,
		&b.RejectionReason,
		&b.LastRejectedBySupplier,
		&rejectedAt,
		&b.Status,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.SPVID = nullString(spvID)
	b.CertificateNumber = nullString(certificate)
	b.DeedID = nullString(deedID)
	b.DueDate = nullTime(dueDate)
	b.OfferDate = nullTime(offerDate)
	b.OfferAcceptedDate = nullTime(acceptedDate)
	b.MDAApprovedDate = nullTime(approvedDate)
	b.TreasuryCertifiedDate = nullTime(certifiedDate)
	b.LastRejectionDate = nullTime(rejectedAt)
	if offerAmount.Valid {
		b.OfferAmount = &offerAmount.Decimal
	}
	if offerRate.Valid {
		b.OfferDiscountRate = &offerRate.Decimal
	}
	if annualRate.Valid {
		b.PaymentAnnualRate = &annualRate.Decimal
	}

	if terms != "" && terms != "null" {
		if err := json.Unmarshal([]byte(terms), &b.PaymentTerms); err != nil {
			return nil, fmt.Errorf("failed to decode payment terms: %w", err)
		}
	}
	if rates != "" && rates != "{}" && rates != "null" {
		if err := json.Unmarshal([]byte(rates), &b.PaymentRateOverrides); err != nil {
			return nil, fmt.Errorf("failed to decode rate overrides: %w", err)
		}
	}
	return &b, nil
}

// encodeSchedule renders the schedule and rate overrides as JSON columns
func encodeSchedule(bill *entity.Bill) (string, string, error) {
	terms, err := json.Marshal(bill.PaymentTerms)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode payment terms: %w", err)
	}
	rates := []byte("{}")
	if len(bill.PaymentRateOverrides) > 0 {
		if rates, err = json.Marshal(bill.PaymentRateOverrides); err != nil {
			return "", "", fmt.Errorf("failed to encode rate overrides: %w", err)
		}
	}
	return string(terms), string(rates), nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// Verify interface compliance
var _ port.BillRepository = (*BillRepository)(nil)
