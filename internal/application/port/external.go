package port

import (
	"context"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// DeedRequest carries what the deed service needs to record an assignment
type DeedRequest struct {
	BillID        string
	SupplierID    string
	MDAID         string
	SPVID         string
	Principal     decimal.Decimal
	DiscountRate  decimal.Decimal
	PurchasePrice decimal.Decimal
	Metadata      map[string]string
}

// BlockchainClient talks to the external deed and note service
type BlockchainClient interface {
	CreateDeed(ctx context.Context, req DeedRequest) (string, error)
	SignDeed(ctx context.Context, deedID, signerID string) error
	MintNote(ctx context.Context, deedID string) (string, error)
}

// Exporter renders bills into downloadable workbooks
type Exporter interface {
	PaymentSchedule(bill *entity.Bill) ([]byte, error)
	CertifiedRegister(bills []*entity.Bill) ([]byte, error)
}
