package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the user or replaces its directory fields
func (r *UserRepository) Upsert(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, name, email, role, scope_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			scope_id = excluded.scope_id,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Role, user.ScopeID)
	if err != nil {
		r.logger.Error("Failed to upsert user", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var u entity.User
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, name, email, role, scope_id FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.ScopeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, port.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("user_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListByRole returns the role cohort, narrowed to scopeID when given
func (r *UserRepository) ListByRole(ctx context.Context, role workflow.Role, scopeID string) ([]*entity.User, error) {
	query := `SELECT id, name, email, role, scope_id FROM users WHERE role = ?`
	args := []interface{}{role}
	if scopeID != "" {
		query += ` AND scope_id = ?`
		args = append(args, scopeID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users by role", zap.String("role", string(role)), zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.ScopeID); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
