package workflow

import "context"

// StateMachine tracks the current state of one subject and validates transitions.
// S is the value handed to guards when a trigger is fired.
type StateMachine[S any] interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has a configured transition from the current state
	CanFire(trigger Trigger) bool

	// CanFireAs returns true if the trigger is configured and the role is authorized for it
	CanFireAs(trigger Trigger, role Role) bool

	// Fire attempts to execute the trigger on behalf of role, evaluating guards against subject
	Fire(ctx context.Context, trigger Trigger, role Role, subject S) error

	// PermittedTriggers returns all triggers configured from the current state
	PermittedTriggers() []Trigger

	// PermittedTriggersFor returns the configured triggers the role is authorized to fire
	PermittedTriggersFor(role Role) []Trigger
}
