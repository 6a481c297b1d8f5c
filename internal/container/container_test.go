package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/workflow"
	"github.com/garyjia/receivables-portal/internal/config"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	domainwf "github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "portal.db"), MaxOpenConns: 1, MaxIdleConns: 1},
		Logger:   config.LoggerConfig{Level: "debug", Format: "json"},
		Lifecycle: config.LifecycleConfig{
			AllowedPaymentQuarters: []int{2, 4},
			DefaultCurrency:        "NGN",
			MaxDiscountRate:        100,
		},
		Outbox:  config.OutboxConfig{PollInterval: time.Hour, BatchSize: 10, MaxAttempts: 3, ProcessTimeout: time.Second},
		Auth:    config.AuthConfig{JWTSecret: "secret", Issuer: "test", TokenTTL: time.Hour},
		Exports: config.ExportsConfig{Dir: filepath.Join(dir, "exports")},
	}
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx), "second start is rejected")

	health := c.Health(ctx)
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.True(t, health.Components["workers"].Healthy)
	assert.Equal(t, 1, c.Workers().Count())

	statuses, err := c.Migrator().Status(sqlite.Migrations, sqlite.MigrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied, s.Name)
	}

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx), "closed container cannot restart")
}

func TestContainer_SubmitDeliversNotifications(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop(), WithoutWorkers())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.Workers())
	_, hasWorkers := c.Health(ctx).Components["workers"]
	assert.False(t, hasWorkers)

	users := c.Repositories().User
	require.NoError(t, users.Upsert(ctx, &entity.User{ID: "spv-1", Name: "Alpha SPV", Role: domainwf.RoleSPV}))
	require.NoError(t, users.Upsert(ctx, &entity.User{ID: "spv-2", Name: "Beta SPV", Role: domainwf.RoleSPV}))

	supplier := entity.Actor{UserID: "sup-1", Role: domainwf.RoleSupplier}
	bill, err := c.Engine().Submit(ctx, workflow.SubmitRequest{
		Actor:         supplier,
		MDAID:         "mda-1",
		InvoiceNumber: "INV-1",
		InvoiceDate:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.NewFromInt(5000),
	})
	require.NoError(t, err)
	assert.Equal(t, "NGN", bill.Currency)
	c.Dispatcher().Wait()

	for _, spv := range []string{"spv-1", "spv-2"} {
		inbox, err := c.Services().Notification.List(ctx, entity.Actor{UserID: spv, Role: domainwf.RoleSPV}, false, 10)
		require.NoError(t, err)
		require.Len(t, inbox, 1, spv)
		assert.Equal(t, bill.ID, inbox[0].RelatedBillID)
	}

	activity, err := c.Services().Activity.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, activity)

	_, err = c.Engine().Fire(ctx, workflow.Command{
		BillID:  bill.ID,
		Trigger: domainwf.TriggerCertify,
		Actor:   entity.Actor{UserID: "tre-1", Role: domainwf.RoleTreasury},
	})
	assert.True(t, errors.Is(err, workflow.ErrGuardViolation))
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("bill_id", "b-1", 42, "skipped", "error", errors.New("boom"), "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "bill_id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}
