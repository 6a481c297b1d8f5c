package repository

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/receivables-portal/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "portal.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	applied, err := database.NewMigrator(db, logger).RunMigrations(sqlite.Migrations, sqlite.MigrationsDir)
	require.NoError(t, err)
	require.Positive(t, applied)

	return sqlite.NewDB(db.DB, logger)
}

var baseTime = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

func newBill(id, supplier, invoice string, createdAt time.Time) *entity.Bill {
	b := &entity.Bill{
		ID:            id,
		SupplierID:    supplier,
		MDAID:         "mda-1",
		InvoiceNumber: invoice,
		InvoiceDate:   baseTime.AddDate(0, -1, 0),
		Amount:        decimal.RequireFromString("1000000.50"),
		Currency:      "NGN",
		Status:        workflow.StateSubmitted,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	b.AppendHistory(workflow.StateSubmitted, createdAt, "bill submitted")
	return b
}

func TestBillRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBillRepository(db, zap.NewNop())
	ctx := context.Background()

	due := baseTime.AddDate(0, 3, 0)
	bill := newBill("b1", "sup-1", "INV-1", baseTime)
	bill.DueDate = &due
	bill.Description = "road works"
	require.NoError(t, repo.Create(ctx, bill))

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "sup-1", got.SupplierID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1000000.50")))
	assert.Equal(t, "road works", got.Description)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due))
	assert.Nil(t, got.OfferAmount)
	assert.Nil(t, got.SPVID)
	assert.Equal(t, workflow.StateSubmitted, got.Status)
	require.Len(t, got.StatusHistory, 1)
	assert.Equal(t, "bill submitted", got.StatusHistory[0].Note)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, port.ErrNotFound)

	err = repo.Create(ctx, newBill("b2", "sup-1", "INV-1", baseTime))
	assert.ErrorIs(t, err, port.ErrDuplicate)

	require.NoError(t, repo.Create(ctx, newBill("b3", "sup-2", "INV-1", baseTime)))
}

func TestBillRepository_CompareAndSwap(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBillRepository(db, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBill("b1", "sup-1", "INV-1", baseTime)))

	bill, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)

	offer := decimal.NewFromInt(920000)
	rate := decimal.NewFromInt(8)
	spv := "spv-1"
	offeredAt := baseTime.Add(time.Hour)
	bill.OfferAmount = &offer
	bill.OfferDiscountRate = &rate
	bill.OfferDate = &offeredAt
	bill.SPVID = &spv
	bill.Status = workflow.StateOfferMade
	bill.AppendHistory(workflow.StateOfferMade, offeredAt, "offer")

	require.NoError(t, repo.CompareAndSwap(ctx, workflow.StateSubmitted, bill))
	assert.Equal(t, int64(1), bill.Version)

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateOfferMade, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.OfferAmount.Equal(offer))
	assert.Equal(t, "spv-1", got.SPV())
	require.Len(t, got.StatusHistory, 2)
	assert.Equal(t, workflow.StateOfferMade, got.StatusHistory[1].Status)

	// Stale status
	stale := got.Clone()
	stale.Status = workflow.StateOfferAccepted
	stale.AppendHistory(workflow.StateOfferAccepted, baseTime, "")
	err = repo.CompareAndSwap(ctx, workflow.StateSubmitted, stale)
	assert.ErrorIs(t, err, port.ErrConflict)

	// Stale version
	stale = got.Clone()
	stale.Version = 0
	err = repo.CompareAndSwap(ctx, workflow.StateOfferMade, stale)
	assert.ErrorIs(t, err, port.ErrConflict)

	after, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, after.StatusHistory, 2, "failed swaps must not append history")

	missing := newBill("nope", "sup-1", "X", baseTime)
	err = repo.CompareAndSwap(ctx, workflow.StateSubmitted, missing)
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestBillRepository_ConcurrentCompareAndSwap(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBillRepository(db, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBill("b1", "sup-1", "INV-1", baseTime)))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, spv := range []string{"spv-1", "spv-2"} {
		bill, err := repo.GetByID(ctx, "b1")
		require.NoError(t, err)
		spv := spv
		bill.SPVID = &spv
		bill.Status = workflow.StateOfferMade
		bill.AppendHistory(workflow.StateOfferMade, baseTime, spv)

		wg.Add(1)
		go func(i int, bill *entity.Bill) {
			defer wg.Done()
			errs[i] = repo.CompareAndSwap(ctx, workflow.StateSubmitted, bill)
		}(i, bill)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, port.ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, got.StatusHistory, 2)
}

func TestBillRepository_CertificateUniqueness(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBillRepository(db, zap.NewNop())
	ctx := context.Background()

	for _, id := range []string{"b1", "b2"} {
		b := newBill(id, "sup-1", "INV-"+id, baseTime)
		b.Status = workflow.StateTreasuryReviewing
		require.NoError(t, repo.Create(ctx, b))
	}

	certify := func(id string) error {
		b, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		cert := "CERT-2025-00001"
		b.CertificateNumber = &cert
		b.Status = workflow.StateCertified
		b.AppendHistory(workflow.StateCertified, baseTime, "certificate")
		return repo.CompareAndSwap(ctx, workflow.StateTreasuryReviewing, b)
	}

	require.NoError(t, certify("b1"))
	assert.ErrorIs(t, certify("b2"), port.ErrDuplicate)

	exists, err := repo.CertificateExists(ctx, "CERT-2025-00001", "b2")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.CertificateExists(ctx, "CERT-2025-00001", "b1")
	require.NoError(t, err)
	assert.False(t, exists)

	b2, err := repo.GetByID(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateTreasuryReviewing, b2.Status)
	assert.Nil(t, b2.CertificateNumber)
}

func TestBillRepository_PaymentTermsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBillRepository(db, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBill("b1", "sup-1", "INV-1", baseTime)))

	b, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	b.Status = workflow.StateOfferMade
	b.PaymentQuarters = 2
	b.PaymentStartQuarter = "Q1 2025"
	b.PaymentTerms = []entity.PaymentTerm{
		{QuarterLabel: "Q1 2025", Amount: decimal.RequireFromString("500000.25"), Interest: decimal.Zero, DueDate: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), Status: entity.PaymentStatusDue},
		{QuarterLabel: "Q2 2025", Amount: decimal.RequireFromString("500000.25"), Interest: decimal.Zero, DueDate: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), Status: entity.PaymentStatusUpcoming},
	}
	rate := decimal.RequireFromString("7.5")
	b.PaymentAnnualRate = &rate
	b.PaymentRateOverrides = map[int]decimal.Decimal{1: decimal.NewFromInt(9)}
	b.AppendHistory(workflow.StateOfferMade, baseTime, "")
	require.NoError(t, repo.CompareAndSwap(ctx, workflow.StateSubmitted, b))

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got.PaymentAnnualRate)
	assert.True(t, got.PaymentAnnualRate.Equal(rate))
	require.Len(t, got.PaymentRateOverrides, 1)
	assert.True(t, got.PaymentRateOverrides[1].Equal(decimal.NewFromInt(9)))
	require.Len(t, got.PaymentTerms, 2)
	assert.Equal(t, "Q2 2025", got.PaymentTerms[1].QuarterLabel)
	assert.True(t, got.TotalScheduled().Equal(got.Amount))
	assert.Equal(t, entity.PaymentStatusDue, got.PaymentTerms[0].Status)
}

func TestBillRepository_QueryAndCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBillRepository(db, zap.NewNop())
	ctx := context.Background()

	fixtures := []struct {
		id, supplier, mda string
		status            workflow.State
		spv               string
		rejected          bool
	}{
		{"b1", "sup-1", "mda-1", workflow.StateSubmitted, "", false},
		{"b2", "sup-1", "mda-1", workflow.StateOfferAccepted, "spv-1", false},
		{"b3", "sup-2", "mda-2", workflow.StateOfferAccepted, "spv-2", false},
		{"b4", "sup-2", "mda-1", workflow.StateSubmitted, "spv-1", true},
		{"b5", "sup-1", "mda-2", workflow.StateCertified, "spv-1", false},
	}
	for i, f := range fixtures {
		b := newBill(f.id, f.supplier, "INV-"+f.id, baseTime.Add(time.Duration(i)*time.Minute))
		b.MDAID = f.mda
		b.Status = f.status
		b.LastRejectedBySupplier = f.rejected
		if f.spv != "" {
			spv := f.spv
			b.SPVID = &spv
		}
		require.NoError(t, repo.Create(ctx, b))
	}

	ids := func(bills []*entity.Bill) []string {
		out := make([]string, len(bills))
		for i, b := range bills {
			out[i] = b.ID
		}
		return out
	}

	all, err := repo.Query(ctx, port.BillFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b5", "b4", "b3", "b2", "b1"}, ids(all))

	got, err := repo.Query(ctx, port.BillFilter{Statuses: []workflow.State{workflow.StateOfferAccepted}, MDAID: "mda-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, ids(got))

	rejected := true
	got, err = repo.Query(ctx, port.BillFilter{SPVID: "spv-1", LastRejectedBySupplier: &rejected, Statuses: []workflow.State{workflow.StateSubmitted}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b4"}, ids(got))

	got, err = repo.Query(ctx, port.BillFilter{SupplierID: "sup-1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, ids(got))

	got, err = repo.Query(ctx, port.BillFilter{Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, ids(got))

	counts, err := repo.CountByStatus(ctx, port.BillFilter{MDAID: "mda-1"})
	require.NoError(t, err)
	assert.Equal(t, map[workflow.State]int{
		workflow.StateSubmitted:     2,
		workflow.StateOfferAccepted: 1,
	}, counts)
}

func TestBillRepository_SetDeedID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBillRepository(db, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBill("b1", "sup-1", "INV-1", baseTime)))

	require.NoError(t, repo.SetDeedID(ctx, "b1", "deed-42"))
	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got.DeedID)
	assert.Equal(t, "deed-42", *got.DeedID)
	assert.Equal(t, int64(0), got.Version)

	assert.ErrorIs(t, repo.SetDeedID(ctx, "missing", "d"), port.ErrNotFound)
}

func TestTransaction_RollbackDiscardsBillAndOutbox(t *testing.T) {
	db := setupTestDB(t)
	bills := NewBillRepository(db, zap.NewNop())
	outbox := NewOutboxRepository(db, zap.NewNop())
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		require.True(t, sqlite.InTransaction(ctx))
		if err := bills.Create(ctx, newBill("b1", "sup-1", "INV-1", baseTime)); err != nil {
			return err
		}
		if err := outbox.Enqueue(ctx, []*entity.OutboxEntry{{
			ID: "o1", BillID: "b1", Kind: entity.OutboxKindActivity, Payload: json.RawMessage(`{}`), CreatedAt: baseTime,
		}}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = bills.GetByID(ctx, "b1")
	assert.ErrorIs(t, err, port.ErrNotFound)
	pending, err := outbox.ListPendingByBill(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOutboxRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, []*entity.OutboxEntry{
		{ID: "o1", BillID: "b1", Kind: entity.OutboxKindNotify, Payload: json.RawMessage(`{"title":"x"}`), CreatedAt: baseTime},
		{ID: "o2", BillID: "b1", Kind: entity.OutboxKindActivity, Payload: json.RawMessage(`{}`), CreatedAt: baseTime},
		{ID: "o3", BillID: "b2", Kind: entity.OutboxKindDeed, Payload: json.RawMessage(`{}`), CreatedAt: baseTime},
	}))

	pending, err := repo.ListPendingByBill(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "o1", pending[0].ID)
	assert.JSONEq(t, `{"title":"x"}`, string(pending[0].Payload))
	assert.Equal(t, entity.OutboxStatusPending, pending[0].Status)

	for _, id := range []string{"o1", "o2", "o3"} {
		claimed, err := repo.Claim(ctx, id)
		require.NoError(t, err)
		require.True(t, claimed, id)
	}
	claimed, err := repo.Claim(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, claimed, "a processing entry is not claimed twice")

	require.NoError(t, repo.MarkDone(ctx, "o1"))
	require.NoError(t, repo.MarkFailed(ctx, "o2", "timeout", false))
	require.NoError(t, repo.MarkFailed(ctx, "o3", "bad payload", true))
	assert.ErrorIs(t, repo.MarkDone(ctx, "missing"), port.ErrConflict)
	assert.ErrorIs(t, repo.MarkDone(ctx, "o1"), port.ErrConflict, "done entries are not claimed")

	claimed, err = repo.Claim(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, claimed, "done entries stay done")

	pending, err = repo.ListPendingByBill(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	retryable, err := repo.ListRetryable(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, "o2", retryable[0].ID)
	assert.Equal(t, 1, retryable[0].Attempts)
	assert.Equal(t, "timeout", retryable[0].LastError)
	assert.Nil(t, retryable[0].ClaimedAt)

	claimed, err = repo.Claim(ctx, "o2")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, repo.MarkFailed(ctx, "o2", "timeout", false))
	retryable, err = repo.ListRetryable(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, retryable)
}

func TestOutboxRepository_ClaimIsExclusive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOutboxRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, []*entity.OutboxEntry{
		{ID: "o1", BillID: "b1", Kind: entity.OutboxKindDeed, Payload: json.RawMessage(`{}`), CreatedAt: baseTime},
	}))

	const runners = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.Claim(ctx, "o1")
			assert.NoError(t, err)
			if claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	retryable, err := repo.ListRetryable(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, retryable, "a live claim hides the entry from retries")
}

func TestOutboxRepository_ExpiredClaimIsReclaimed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOutboxRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, []*entity.OutboxEntry{
		{ID: "o1", BillID: "b1", Kind: entity.OutboxKindNotify, Payload: json.RawMessage(`{}`), CreatedAt: baseTime},
	}))
	claimed, err := repo.Claim(ctx, "o1")
	require.NoError(t, err)
	require.True(t, claimed)

	expired := time.Now().UTC().Add(-2 * entity.OutboxClaimLease)
	_, err = db.ExecContext(ctx, `UPDATE outbox SET claimed_at = ? WHERE id = ?`, expired, "o1")
	require.NoError(t, err)

	retryable, err := repo.ListRetryable(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, entity.OutboxStatusProcessing, retryable[0].Status)

	claimed, err = repo.Claim(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, repo.MarkDone(ctx, "o1"))
}

func TestNotificationRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.InsertBatch(ctx, []*entity.Notification{
		{ID: "n1", RecipientUserID: "sup-1", Title: "first", Kind: entity.NotificationKindInfo, RelatedBillID: "b1", CreatedAt: baseTime},
		{ID: "n2", RecipientUserID: "sup-1", Title: "second", Kind: entity.NotificationKindSuccess, RelatedBillID: "b1", CreatedAt: baseTime.Add(time.Minute)},
		{ID: "n3", RecipientUserID: "spv-1", Title: "other", Kind: entity.NotificationKindInfo, CreatedAt: baseTime},
	}))

	items, err := repo.ListByRecipient(ctx, "sup-1", false, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Title)

	assert.ErrorIs(t, repo.MarkRead(ctx, "n1", "spv-1"), port.ErrNotFound)
	require.NoError(t, repo.MarkRead(ctx, "n1", "sup-1"))

	unread, err := repo.ListByRecipient(ctx, "sup-1", true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n2", unread[0].ID)

	items, err = repo.ListByRecipient(ctx, "sup-1", false, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestActivityAndUserRepositories(t *testing.T) {
	db := setupTestDB(t)
	activity := NewActivityRepository(db, zap.NewNop())
	users := NewUserRepository(db, zap.NewNop())
	ctx := context.Background()

	for i, action := range []string{entity.ActionBillSubmitted, entity.ActionOfferMade, entity.ActionCertified} {
		require.NoError(t, activity.Append(ctx, &entity.ActivityLogEntry{
			ID: "a" + action, ActorUserID: "u", Action: action, RelatedBillID: "b1", Timestamp: baseTime.Add(time.Duration(i) * time.Second),
		}))
	}
	entries, err := activity.ListByBill(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, entity.ActionBillSubmitted, entries[0].Action)
	assert.Equal(t, entity.ActionCertified, entries[2].Action)

	require.NoError(t, users.Upsert(ctx, &entity.User{ID: "m1", Role: workflow.RoleMDA, ScopeID: "mda-1"}))
	require.NoError(t, users.Upsert(ctx, &entity.User{ID: "m2", Role: workflow.RoleMDA, ScopeID: "mda-2"}))
	require.NoError(t, users.Upsert(ctx, &entity.User{ID: "t1", Role: workflow.RoleTreasury}))
	require.NoError(t, users.Upsert(ctx, &entity.User{ID: "m2", Name: "Officer Two", Role: workflow.RoleMDA, ScopeID: "mda-1"}))

	scoped, err := users.ListByRole(ctx, workflow.RoleMDA, "mda-1")
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	assert.Equal(t, "m1", scoped[0].ID)

	all, err := users.ListByRole(ctx, workflow.RoleMDA, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	u, err := users.GetByID(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "Officer Two", u.Name)

	_, err = users.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, port.ErrNotFound)
}
