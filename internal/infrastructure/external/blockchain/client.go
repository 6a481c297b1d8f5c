package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"go.uber.org/zap"
)

// ErrRequestFailed is returned when the deed service answers with an error
var ErrRequestFailed = errors.New("deed service request failed")

// Config holds deed service settings
type Config struct {
	BaseURL string
	APIKey  string
	Network string
	Timeout time.Duration
}

// HTTPClient calls the deed and note service over HTTP
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates a deed service client
func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type createDeedRequest struct {
	BillID        string            `json:"bill_id"`
	SupplierID    string            `json:"supplier_id"`
	MDAID         string            `json:"mda_id"`
	SPVID         string            `json:"spv_id,omitempty"`
	Principal     string            `json:"principal"`
	DiscountRate  string            `json:"discount_rate,omitempty"`
	PurchasePrice string            `json:"purchase_price,omitempty"`
	Network       string            `json:"network,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type signDeedRequest struct {
	SignerID string `json:"signer_id"`
}

// envelope is the response shape of every deed service endpoint
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// CreateDeed records the assignment of a certified bill and returns the deed id
func (c *HTTPClient) CreateDeed(ctx context.Context, req port.DeedRequest) (string, error) {
	body := createDeedRequest{
		BillID:     req.BillID,
		SupplierID: req.SupplierID,
		MDAID:      req.MDAID,
		SPVID:      req.SPVID,
		Principal:  req.Principal.String(),
		Network:    c.cfg.Network,
		Metadata:   req.Metadata,
	}
	if !req.DiscountRate.IsZero() {
		body.DiscountRate = req.DiscountRate.String()
	}
	if !req.PurchasePrice.IsZero() {
		body.PurchasePrice = req.PurchasePrice.String()
	}

	var data struct {
		DeedID string `json:"deed_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/deeds", body, &data); err != nil {
		return "", fmt.Errorf("create deed for bill %s: %w", req.BillID, err)
	}
	if data.DeedID == "" {
		return "", fmt.Errorf("create deed for bill %s: %w: empty deed id", req.BillID, ErrRequestFailed)
	}

	c.logger.Info("Deed created",
		zap.String("bill_id", req.BillID),
		zap.String("deed_id", data.DeedID),
		zap.String("network", c.cfg.Network))
	return data.DeedID, nil
}

// SignDeed adds a signature to an existing deed
func (c *HTTPClient) SignDeed(ctx context.Context, deedID, signerID string) error {
	path := "/deeds/" + url.PathEscape(deedID) + "/signatures"
	if err := c.do(ctx, http.MethodPost, path, signDeedRequest{SignerID: signerID}, nil); err != nil {
		return fmt.Errorf("sign deed %s: %w", deedID, err)
	}
	c.logger.Info("Deed signed", zap.String("deed_id", deedID), zap.String("signer_id", signerID))
	return nil
}

// MintNote issues the tradable note backed by a deed
func (c *HTTPClient) MintNote(ctx context.Context, deedID string) (string, error) {
	var data struct {
		NoteID string `json:"note_id"`
	}
	path := "/deeds/" + url.PathEscape(deedID) + "/notes"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &data); err != nil {
		return "", fmt.Errorf("mint note for deed %s: %w", deedID, err)
	}
	c.logger.Info("Note minted", zap.String("deed_id", deedID), zap.String("note_id", data.NoteID))
	return data.NoteID, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error("Deed service unreachable", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &env); err != nil {
			return fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err)
		}
	}

	if resp.StatusCode >= 300 || !env.Success {
		c.logger.Error("Deed service returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", env.Error))
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, msg)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return nil
}

// Verify interface compliance
var _ port.BlockchainClient = (*HTTPClient)(nil)
