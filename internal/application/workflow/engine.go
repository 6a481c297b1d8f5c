package workflow

import (
	"context"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	domainwf "github.com/garyjia/receivables-portal/internal/domain/workflow"
)

// Engine is the only gateway that mutates bills
type Engine interface {
	// Submit creates a bill in the submitted state
	Submit(ctx context.Context, req SubmitRequest) (*entity.Bill, error)

	// Fire validates and applies a transition, returning the committed bill
	Fire(ctx context.Context, cmd Command) (*entity.Bill, error)

	// PermittedTriggers lists the triggers the actor may fire on the bill now
	PermittedTriggers(ctx context.Context, billID string, actor entity.Actor) ([]domainwf.Trigger, error)

	// GetBill loads a bill
	GetBill(ctx context.Context, billID string) (*entity.Bill, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
