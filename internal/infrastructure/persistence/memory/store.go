// Package memory is an in-process store implementing the persistence ports.
// It backs the engine, service and HTTP tests.
package memory

import (
	"context"
	"sync"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
)

// Store holds every collection behind one lock
type Store struct {
	// txMu serializes transactions; mu guards the collections
	txMu sync.Mutex
	mu   sync.RWMutex

	bills         map[string]*entity.Bill
	billOrder     []string
	notifications []*entity.Notification
	activity      []*entity.ActivityLogEntry
	users         map[string]*entity.User
	outbox        []*entity.OutboxEntry
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		bills: make(map[string]*entity.Bill),
		users: make(map[string]*entity.User),
	}
}

// Bills returns the bill repository view
func (s *Store) Bills() port.BillRepository { return &billRepo{s: s} }

// Notifications returns the notification repository view
func (s *Store) Notifications() port.NotificationRepository { return &notificationRepo{s: s} }

// Activity returns the activity repository view
func (s *Store) Activity() port.ActivityRepository { return &activityRepo{s: s} }

// Users returns the user repository view
func (s *Store) Users() port.UserRepository { return &userRepo{s: s} }

// Outbox returns the outbox repository view
func (s *Store) Outbox() port.OutboxRepository { return &outboxRepo{s: s} }

// WithTransaction runs fn with exclusive access. On error every collection
// is restored to its state before fn ran.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	bills         map[string]*entity.Bill
	billOrder     []string
	notifications []*entity.Notification
	activity      []*entity.ActivityLogEntry
	users         map[string]*entity.User
	outbox        []*entity.OutboxEntry
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		bills:         make(map[string]*entity.Bill, len(s.bills)),
		billOrder:     append([]string(nil), s.billOrder...),
		notifications: make([]*entity.Notification, len(s.notifications)),
		activity:      append([]*entity.ActivityLogEntry(nil), s.activity...),
		users:         make(map[string]*entity.User, len(s.users)),
		outbox:        make([]*entity.OutboxEntry, len(s.outbox)),
	}
	for id, b := range s.bills {
		snap.bills[id] = b.Clone()
	}
	for i, n := range s.notifications {
		cp := *n
		snap.notifications[i] = &cp
	}
	for id, u := range s.users {
		cp := *u
		snap.users[id] = &cp
	}
	for i, e := range s.outbox {
		cp := *e
		snap.outbox[i] = &cp
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bills = snap.bills
	s.billOrder = snap.billOrder
	s.notifications = snap.notifications
	s.activity = snap.activity
	s.users = snap.users
	s.outbox = snap.outbox
}
