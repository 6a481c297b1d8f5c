package export

import (
	"fmt"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/terms"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	scheduleSheet = "Payment Schedule"
	registerSheet = "Certified Register"
	dateLayout    = "2006-01-02"
	amountFormat  = "#,##0.00"
)

var (
	scheduleHeader = []string{"Quarter", "Principal", "Interest", "Due Date", "Status"}
	registerHeader = []string{
		"Bill ID", "Invoice Number", "Supplier", "MDA", "SPV", "Amount", "Currency",
		"Certificate Number", "Certified Date", "Quarters", "Start Quarter", "Deed ID",
	}
)

// WorkbookExporter renders bills into xlsx workbooks
type WorkbookExporter struct {
	logger *zap.Logger
}

// NewWorkbookExporter creates a new workbook exporter
func NewWorkbookExporter(logger *zap.Logger) *WorkbookExporter {
	return &WorkbookExporter{logger: logger}
}

// PaymentSchedule renders one bill's quarterly schedule with a totals row
func (e *WorkbookExporter) PaymentSchedule(bill *entity.Bill) ([]byte, error) {
	w, err := newWorkbook(scheduleSheet)
	if err != nil {
		return nil, err
	}
	defer w.close(e.logger)

	meta := [][]interface{}{
		{"Invoice Number", bill.InvoiceNumber},
		{"Supplier", bill.SupplierID},
		{"MDA", bill.MDAID},
		{"Principal", bill.Amount.InexactFloat64()},
		{"Currency", bill.Currency},
		{"Start Quarter", bill.PaymentStartQuarter},
	}
	row := 1
	for _, kv := range meta {
		if err := w.setRow(row, kv); err != nil {
			return nil, err
		}
		row++
	}
	if err := w.amountCell("B4"); err != nil {
		return nil, err
	}

	row++
	headerRow := row
	if err := w.header(row, scheduleHeader); err != nil {
		return nil, err
	}
	row++

	for _, term := range bill.PaymentTerms {
		values := []interface{}{
			term.QuarterLabel,
			term.Amount.InexactFloat64(),
			term.Interest.InexactFloat64(),
			term.DueDate.Format(dateLayout),
			term.Status,
		}
		if err := w.setRow(row, values); err != nil {
			return nil, err
		}
		row++
	}

	totals := []interface{}{
		"Total",
		terms.Total(bill.PaymentTerms).InexactFloat64(),
		terms.TotalInterest(bill.PaymentTerms).InexactFloat64(),
	}
	if err := w.setRow(row, totals); err != nil {
		return nil, err
	}
	if err := w.amountRange(fmt.Sprintf("B%d", headerRow+1), fmt.Sprintf("C%d", row)); err != nil {
		return nil, err
	}

	e.logger.Debug("Payment schedule rendered",
		zap.String("bill_id", bill.ID),
		zap.Int("terms", len(bill.PaymentTerms)))
	return w.bytes()
}

// CertifiedRegister renders one row per bill with a grand total
func (e *WorkbookExporter) CertifiedRegister(bills []*entity.Bill) ([]byte, error) {
	w, err := newWorkbook(registerSheet)
	if err != nil {
		return nil, err
	}
	defer w.close(e.logger)

	if err := w.header(1, registerHeader); err != nil {
		return nil, err
	}

	total := decimal.Zero
	row := 2
	for _, bill := range bills {
		certified := ""
		if bill.TreasuryCertifiedDate != nil {
			certified = bill.TreasuryCertifiedDate.Format(dateLayout)
		}
		values := []interface{}{
			bill.ID,
			bill.InvoiceNumber,
			bill.SupplierID,
			bill.MDAID,
			bill.SPV(),
			bill.Amount.InexactFloat64(),
			bill.Currency,
			deref(bill.CertificateNumber),
			certified,
			bill.PaymentQuarters,
			bill.PaymentStartQuarter,
			deref(bill.DeedID),
		}
		if err := w.setRow(row, values); err != nil {
			return nil, err
		}
		total = total.Add(bill.Amount)
		row++
	}

	if err := w.setRow(row, []interface{}{"Total", nil, nil, nil, nil, total.InexactFloat64()}); err != nil {
		return nil, err
	}
	if err := w.amountRange("F2", fmt.Sprintf("F%d", row)); err != nil {
		return nil, err
	}

	e.logger.Debug("Certified register rendered", zap.Int("bills", len(bills)))
	return w.bytes()
}

// workbook wraps a single-sheet excelize file
type workbook struct {
	file  *excelize.File
	sheet string
}

func newWorkbook(sheet string) (*workbook, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	return &workbook{file: f, sheet: sheet}, nil
}

func (w *workbook) setRow(row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to set row %d: %w", row, err)
	}
	return nil
}

func (w *workbook) header(row int, titles []string) error {
	values := make([]interface{}, len(titles))
	for i, t := range titles {
		values[i] = t
	}
	if err := w.setRow(row, values); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(titles), row)
	if err := w.file.SetCellStyle(w.sheet, first, last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	return nil
}

func (w *workbook) amountCell(cell string) error {
	return w.amountRange(cell, cell)
}

func (w *workbook) amountRange(from, to string) error {
	format := amountFormat
	style, err := w.file.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}
	return w.file.SetCellStyle(w.sheet, from, to, style)
}

func (w *workbook) bytes() ([]byte, error) {
	buf, err := w.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *workbook) close(logger *zap.Logger) {
	if err := w.file.Close(); err != nil {
		logger.Warn("Failed to close workbook", zap.Error(err))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Verify interface compliance
var _ port.Exporter = (*WorkbookExporter)(nil)
