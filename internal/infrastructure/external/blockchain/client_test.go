package blockchain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPClient_CreateDeed(t *testing.T) {
	var got createDeedRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/deeds", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"data":{"deed_id":"0.0.4821"}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL + "/v1/", APIKey: "secret", Network: "hedera-testnet"}, zap.NewNop())
	deedID, err := client.CreateDeed(context.Background(), port.DeedRequest{
		BillID:        "bill-1",
		SupplierID:    "sup-1",
		MDAID:         "mda-1",
		SPVID:         "spv-1",
		Principal:     decimal.NewFromInt(1000000),
		DiscountRate:  decimal.NewFromInt(8),
		PurchasePrice: decimal.NewFromInt(920000),
		Metadata:      map[string]string{"certificate_number": "CERT-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0.4821", deedID)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "1000000", got.Principal)
	assert.Equal(t, "920000", got.PurchasePrice)
	assert.Equal(t, "hedera-testnet", got.Network)
	assert.Equal(t, "CERT-1", got.Metadata["certificate_number"])
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error envelope", http.StatusOK, `{"success":false,"error":"network congested"}`, "network congested"},
		{"server error", http.StatusBadGateway, ``, "Bad Gateway"},
		{"empty deed id", http.StatusOK, `{"success":true,"data":{}}`, "empty deed id"},
		{"garbage", http.StatusOK, `<html>`, "unmarshal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewHTTPClient(Config{BaseURL: server.URL}, zap.NewNop())
			_, err := client.CreateDeed(context.Background(), port.DeedRequest{BillID: "b", Principal: decimal.NewFromInt(1)})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHTTPClient_SignAndMint(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/notes") {
			_, _ = w.Write([]byte(`{"success":true,"data":{"note_id":"note-9"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL}, zap.NewNop())
	require.NoError(t, client.SignDeed(context.Background(), "deed-1", "tre-1"))
	noteID, err := client.MintNote(context.Background(), "deed-1")
	require.NoError(t, err)
	assert.Equal(t, "note-9", noteID)
	assert.Equal(t, []string{"/deeds/deed-1/signatures", "/deeds/deed-1/notes"}, paths)
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"deed_id":"x"}}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewHTTPClient(Config{BaseURL: server.URL}, zap.NewNop())
	_, err := client.CreateDeed(ctx, port.DeedRequest{BillID: "b", Principal: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogClient(t *testing.T) {
	client := NewLogClient(zap.NewNop())
	deedID, err := client.CreateDeed(context.Background(), port.DeedRequest{BillID: "b"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(deedID, "local-deed-"))
	require.NoError(t, client.SignDeed(context.Background(), deedID, "s"))
	noteID, err := client.MintNote(context.Background(), deedID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(noteID, "local-note-"))
}
