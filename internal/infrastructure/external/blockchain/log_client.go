package blockchain

import (
	"context"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogClient stands in for the deed service when it is disabled. It logs
// each call and returns locally generated references.
type LogClient struct {
	logger *zap.Logger
}

// NewLogClient creates a log-only deed client
func NewLogClient(logger *zap.Logger) *LogClient {
	return &LogClient{logger: logger}
}

func (c *LogClient) CreateDeed(ctx context.Context, req port.DeedRequest) (string, error) {
	deedID := "local-deed-" + uuid.NewString()
	c.logger.Info("Deed service disabled, recorded deed locally",
		zap.String("bill_id", req.BillID),
		zap.String("deed_id", deedID),
		zap.String("principal", req.Principal.String()))
	return deedID, nil
}

func (c *LogClient) SignDeed(ctx context.Context, deedID, signerID string) error {
	c.logger.Info("Deed service disabled, skipped signature",
		zap.String("deed_id", deedID),
		zap.String("signer_id", signerID))
	return nil
}

func (c *LogClient) MintNote(ctx context.Context, deedID string) (string, error) {
	noteID := "local-note-" + uuid.NewString()
	c.logger.Info("Deed service disabled, recorded note locally",
		zap.String("deed_id", deedID),
		zap.String("note_id", noteID))
	return noteID, nil
}

var _ port.BlockchainClient = (*LogClient)(nil)
