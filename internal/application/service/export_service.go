package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
)

// ErrNoSchedule is returned when exporting a bill without payment terms
var ErrNoSchedule = errors.New("bill has no payment schedule")

// Export is a rendered workbook plus where it was archived
type Export struct {
	Filename string
	Path     string
	Content  []byte
}

// ExportService renders workbooks and archives a copy in the document store
type ExportService interface {
	PaymentSchedule(ctx context.Context, billID string) (*Export, error)
	CertifiedRegister(ctx context.Context) (*Export, error)
}

type exportServiceImpl struct {
	billRepo  port.BillRepository
	exporter  port.Exporter
	documents port.DocumentStore
	logger    Logger
	now       func() time.Time
}

// NewExportService creates a new ExportService
func NewExportService(
	billRepo port.BillRepository,
	exporter port.Exporter,
	documents port.DocumentStore,
	logger Logger,
) ExportService {
	return &exportServiceImpl{
		billRepo:  billRepo,
		exporter:  exporter,
		documents: documents,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *exportServiceImpl) PaymentSchedule(ctx context.Context, billID string) (*Export, error) {
	bill, err := s.billRepo.GetByID(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("load bill: %w", err)
	}
	if len(bill.PaymentTerms) == 0 {
		return nil, ErrNoSchedule
	}

	content, err := s.exporter.PaymentSchedule(bill)
	if err != nil {
		return nil, fmt.Errorf("render schedule: %w", err)
	}

	filename := fmt.Sprintf("schedule-%s.xlsx", fileSafe(bill.InvoiceNumber))
	return s.archive(ctx, fmt.Sprintf("schedules/%s/%s", bill.ID, filename), filename, content)
}

func (s *exportServiceImpl) CertifiedRegister(ctx context.Context) (*Export, error) {
	bills, err := s.billRepo.Query(ctx, port.BillFilter{Statuses: []workflow.State{workflow.StateCertified}})
	if err != nil {
		return nil, fmt.Errorf("query certified bills: %w", err)
	}

	content, err := s.exporter.CertifiedRegister(bills)
	if err != nil {
		return nil, fmt.Errorf("render register: %w", err)
	}

	filename := fmt.Sprintf("certified-register-%s.xlsx", s.now().Format("20060102-150405"))
	return s.archive(ctx, "registers/"+filename, filename, content)
}

func (s *exportServiceImpl) archive(ctx context.Context, path, filename string, content []byte) (*Export, error) {
	if err := s.documents.Save(ctx, path, content); err != nil {
		s.logger.Error("Failed to archive export", "error", err, "path", path)
		return nil, fmt.Errorf("archive export: %w", err)
	}

	s.logger.Info("Export archived", "path", path, "size", len(content))
	return &Export{
		Filename: filename,
		Path:     s.documents.GetFullPath(path),
		Content:  content,
	}, nil
}

// fileSafe maps anything outside letters, digits, '-' and '_' to '-' so an
// invoice number cannot leave the archive directory
func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, name)
}
