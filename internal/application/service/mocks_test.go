package service

import (
	"context"
	"sync"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
)

type logEntry struct {
	level string
	msg   string
}

type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, logEntry{"info", msg})
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, logEntry{"error", msg})
}

func (m *mockLogger) has(level, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

type mockBillRepository struct {
	createFunc            func(ctx context.Context, bill *entity.Bill) error
	getByIDFunc           func(ctx context.Context, id string) (*entity.Bill, error)
	queryFunc             func(ctx context.Context, filter port.BillFilter) ([]*entity.Bill, error)
	countByStatusFunc     func(ctx context.Context, filter port.BillFilter) (map[workflow.State]int, error)
	compareAndSwapFunc    func(ctx context.Context, expected workflow.State, bill *entity.Bill) error
	setDeedIDFunc         func(ctx context.Context, billID, deedID string) error
	certificateExistsFunc func(ctx context.Context, number, excludeBillID string) (bool, error)
}

func (m *mockBillRepository) Create(ctx context.Context, bill *entity.Bill) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, bill)
	}
	return nil
}

func (m *mockBillRepository) GetByID(ctx context.Context, id string) (*entity.Bill, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, port.ErrNotFound
}

func (m *mockBillRepository) Query(ctx context.Context, filter port.BillFilter) ([]*entity.Bill, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockBillRepository) CountByStatus(ctx context.Context, filter port.BillFilter) (map[workflow.State]int, error) {
	if m.countByStatusFunc != nil {
		return m.countByStatusFunc(ctx, filter)
	}
	return map[workflow.State]int{}, nil
}

func (m *mockBillRepository) CompareAndSwap(ctx context.Context, expected workflow.State, bill *entity.Bill) error {
	if m.compareAndSwapFunc != nil {
		return m.compareAndSwapFunc(ctx, expected, bill)
	}
	return nil
}

func (m *mockBillRepository) SetDeedID(ctx context.Context, billID, deedID string) error {
	if m.setDeedIDFunc != nil {
		return m.setDeedIDFunc(ctx, billID, deedID)
	}
	return nil
}

func (m *mockBillRepository) CertificateExists(ctx context.Context, number, excludeBillID string) (bool, error) {
	if m.certificateExistsFunc != nil {
		return m.certificateExistsFunc(ctx, number, excludeBillID)
	}
	return false, nil
}

type mockNotificationRepository struct {
	inserted            []*entity.Notification
	insertBatchFunc     func(ctx context.Context, notifications []*entity.Notification) error
	listByRecipientFunc func(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
	markReadFunc        func(ctx context.Context, id, recipientID string) error
}

func (m *mockNotificationRepository) InsertBatch(ctx context.Context, notifications []*entity.Notification) error {
	if m.insertBatchFunc != nil {
		return m.insertBatchFunc(ctx, notifications)
	}
	m.inserted = append(m.inserted, notifications...)
	return nil
}

func (m *mockNotificationRepository) ListByRecipient(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	if m.listByRecipientFunc != nil {
		return m.listByRecipientFunc(ctx, userID, unreadOnly, limit)
	}
	return nil, nil
}

func (m *mockNotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, id, recipientID)
	}
	return nil
}

type mockUserRepository struct {
	listByRoleFunc func(ctx context.Context, role workflow.Role, scopeID string) ([]*entity.User, error)
}

func (m *mockUserRepository) Upsert(ctx context.Context, user *entity.User) error { return nil }

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return nil, port.ErrNotFound
}

func (m *mockUserRepository) ListByRole(ctx context.Context, role workflow.Role, scopeID string) ([]*entity.User, error) {
	if m.listByRoleFunc != nil {
		return m.listByRoleFunc(ctx, role, scopeID)
	}
	return nil, nil
}

type mockActivityRepository struct {
	appended   []*entity.ActivityLogEntry
	appendFunc func(ctx context.Context, entry *entity.ActivityLogEntry) error
}

func (m *mockActivityRepository) Append(ctx context.Context, entry *entity.ActivityLogEntry) error {
	if m.appendFunc != nil {
		return m.appendFunc(ctx, entry)
	}
	m.appended = append(m.appended, entry)
	return nil
}

func (m *mockActivityRepository) ListByBill(ctx context.Context, billID string) ([]*entity.ActivityLogEntry, error) {
	var out []*entity.ActivityLogEntry
	for _, e := range m.appended {
		if e.RelatedBillID == billID {
			out = append(out, e)
		}
	}
	return out, nil
}

type failedMark struct {
	id        string
	lastError string
	dead      bool
}

type mockOutboxRepository struct {
	pending           []*entity.OutboxEntry
	retryable         []*entity.OutboxEntry
	done              []string
	failed            []failedMark
	claimed           []string
	listRetryableFunc func(ctx context.Context, maxAttempts, limit int) ([]*entity.OutboxEntry, error)
	claimFunc         func(ctx context.Context, id string) (bool, error)
}

func (m *mockOutboxRepository) Enqueue(ctx context.Context, entries []*entity.OutboxEntry) error {
	m.pending = append(m.pending, entries...)
	return nil
}

func (m *mockOutboxRepository) ListPendingByBill(ctx context.Context, billID string) ([]*entity.OutboxEntry, error) {
	var out []*entity.OutboxEntry
	for _, e := range m.pending {
		if e.BillID == billID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutboxRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*entity.OutboxEntry, error) {
	if m.listRetryableFunc != nil {
		return m.listRetryableFunc(ctx, maxAttempts, limit)
	}
	return m.retryable, nil
}

func (m *mockOutboxRepository) Claim(ctx context.Context, id string) (bool, error) {
	if m.claimFunc != nil {
		return m.claimFunc(ctx, id)
	}
	m.claimed = append(m.claimed, id)
	return true, nil
}

func (m *mockOutboxRepository) MarkDone(ctx context.Context, id string) error {
	m.done = append(m.done, id)
	return nil
}

func (m *mockOutboxRepository) MarkFailed(ctx context.Context, id, lastError string, dead bool) error {
	m.failed = append(m.failed, failedMark{id: id, lastError: lastError, dead: dead})
	return nil
}

type mockBlockchain struct {
	requests       []port.DeedRequest
	createDeedFunc func(ctx context.Context, req port.DeedRequest) (string, error)
}

func (m *mockBlockchain) CreateDeed(ctx context.Context, req port.DeedRequest) (string, error) {
	m.requests = append(m.requests, req)
	if m.createDeedFunc != nil {
		return m.createDeedFunc(ctx, req)
	}
	return "deed-1", nil
}

func (m *mockBlockchain) SignDeed(ctx context.Context, deedID, signerID string) error { return nil }

func (m *mockBlockchain) MintNote(ctx context.Context, deedID string) (string, error) {
	return "note-1", nil
}

type mockExporter struct {
	scheduleFunc func(bill *entity.Bill) ([]byte, error)
	registerFunc func(bills []*entity.Bill) ([]byte, error)
}

func (m *mockExporter) PaymentSchedule(bill *entity.Bill) ([]byte, error) {
	if m.scheduleFunc != nil {
		return m.scheduleFunc(bill)
	}
	return []byte("schedule"), nil
}

func (m *mockExporter) CertifiedRegister(bills []*entity.Bill) ([]byte, error) {
	if m.registerFunc != nil {
		return m.registerFunc(bills)
	}
	return []byte("register"), nil
}

type mockDocumentStore struct {
	saved    map[string][]byte
	saveFunc func(ctx context.Context, path string, content []byte) error
}

func (m *mockDocumentStore) Save(ctx context.Context, path string, content []byte) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, path, content)
	}
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[path] = content
	return nil
}

func (m *mockDocumentStore) Read(ctx context.Context, path string) ([]byte, error) {
	if content, ok := m.saved[path]; ok {
		return content, nil
	}
	return nil, port.ErrNotFound
}

func (m *mockDocumentStore) Exists(ctx context.Context, path string) bool {
	_, ok := m.saved[path]
	return ok
}

func (m *mockDocumentStore) Delete(ctx context.Context, path string) error {
	delete(m.saved, path)
	return nil
}

func (m *mockDocumentStore) GetFullPath(relativePath string) string {
	return "/archive/" + relativePath
}
