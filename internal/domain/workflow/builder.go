package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc evaluates whether a transition may proceed for subject.
// A nil return allows the transition; the returned error explains a denial.
type GuardFunc[S any] func(ctx context.Context, subject S) error

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder[S any] interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration[S]

	// Authorize restricts a trigger to the given roles
	Authorize(trigger Trigger, roles ...Role) StateMachineBuilder[S]

	// Allows reports whether any trigger moves from one state to another
	Allows(from, to State) bool

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) StateMachine[S]
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration[S any] interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration[S]

	// PermitIf allows a trigger to transition to the target state if the guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc[S]) StateConfiguration[S]

	// PermitReentryIf allows a trigger that leaves the state unchanged if the guard passes
	PermitReentryIf(trigger Trigger, guard GuardFunc[S]) StateConfiguration[S]
}

type transition[S any] struct {
	toState State
	guard   GuardFunc[S]
}

type stateConfig[S any] struct {
	fromState   State
	transitions map[Trigger][]transition[S]
}

type stateMachineBuilder[S any] struct {
	configurations map[State]*stateConfig[S]
	roles          map[Trigger]map[Role]bool
}

type stateMachine[S any] struct {
	currentState   State
	configurations map[State]*stateConfig[S]
	roles          map[Trigger]map[Role]bool
}

// NewBuilder creates a new state machine builder
func NewBuilder[S any]() StateMachineBuilder[S] {
	return &stateMachineBuilder[S]{
		configurations: make(map[State]*stateConfig[S]),
		roles:          make(map[Trigger]map[Role]bool),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder[S]) Configure(state State) StateConfiguration[S] {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig[S]{
			fromState:   state,
			transitions: make(map[Trigger][]transition[S]),
		}
		b.configurations[state] = config
	}

	return config
}

// Authorize restricts a trigger to the given roles.
// Triggers never authorized can be fired by any role.
func (b *stateMachineBuilder[S]) Authorize(trigger Trigger, roles ...Role) StateMachineBuilder[S] {
	if !trigger.IsValid() {
		panic(fmt.Sprintf("invalid trigger: %s", trigger))
	}

	allowed, exists := b.roles[trigger]
	if !exists {
		allowed = make(map[Role]bool, len(roles))
		b.roles[trigger] = allowed
	}
	for _, role := range roles {
		allowed[role] = true
	}

	return b
}

// Allows reports whether any configured trigger moves from one state to another
func (b *stateMachineBuilder[S]) Allows(from, to State) bool {
	config, exists := b.configurations[from]
	if !exists {
		return false
	}
	for _, transitions := range config.transitions {
		for _, t := range transitions {
			if t.toState == to {
				return true
			}
		}
	}
	return false
}

// Build creates a new state machine instance with the given initial state
func (b *stateMachineBuilder[S]) Build(initialState State) StateMachine[S] {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	// Deep copy so machines never observe later builder changes
	configsCopy := make(map[State]*stateConfig[S], len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Trigger][]transition[S], len(config.transitions))
		for trigger, transitions := range config.transitions {
			transitionsCopy[trigger] = append([]transition[S]{}, transitions...)
		}
		configsCopy[state] = &stateConfig[S]{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	rolesCopy := make(map[Trigger]map[Role]bool, len(b.roles))
	for trigger, allowed := range b.roles {
		inner := make(map[Role]bool, len(allowed))
		for role := range allowed {
			inner[role] = true
		}
		rolesCopy[trigger] = inner
	}

	return &stateMachine[S]{
		currentState:   initialState,
		configurations: configsCopy,
		roles:          rolesCopy,
	}
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig[S]) Permit(trigger Trigger, toState State) StateConfiguration[S] {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard passes
func (c *stateConfig[S]) PermitIf(trigger Trigger, toState State, guard GuardFunc[S]) StateConfiguration[S] {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if !trigger.IsValid() {
		panic(fmt.Sprintf("invalid trigger: %s", trigger))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition[S]{
		toState: toState,
		guard:   guard,
	})

	return c
}

// PermitReentryIf allows a trigger that keeps the machine in the configured state
func (c *stateConfig[S]) PermitReentryIf(trigger Trigger, guard GuardFunc[S]) StateConfiguration[S] {
	return c.PermitIf(trigger, c.fromState, guard)
}

// State returns the current state
func (m *stateMachine[S]) State() State {
	return m.currentState
}

// CanFire returns true if the trigger is configured in the current state.
// Guards are not evaluated here.
func (m *stateMachine[S]) CanFire(trigger Trigger) bool {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return false
	}

	transitions, exists := config.transitions[trigger]
	return exists && len(transitions) > 0
}

// CanFireAs returns true if the trigger is configured and the role may fire it
func (m *stateMachine[S]) CanFireAs(trigger Trigger, role Role) bool {
	return m.CanFire(trigger) && m.roleAllowed(trigger, role)
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed
func (m *stateMachine[S]) Fire(ctx context.Context, trigger Trigger, role Role, subject S) error {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s (no configuration)", ErrInvalidTransition, trigger, m.currentState)
	}

	transitions, exists := config.transitions[trigger]
	if !exists || len(transitions) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.currentState)
	}

	if !m.roleAllowed(trigger, role) {
		return fmt.Errorf("%w: %s cannot fire %s", ErrRoleNotPermitted, role, trigger)
	}

	// Try each transition in order until one guard passes
	var firstErr error
	for _, t := range transitions {
		if t.guard == nil {
			m.currentState = t.toState
			return nil
		}
		err := t.guard(ctx, subject)
		if err == nil {
			m.currentState = t.toState
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s: %w", ErrGuardFailed, trigger, m.currentState, firstErr)
}

// PermittedTriggers returns all triggers configured in the current state, sorted
func (m *stateMachine[S]) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })

	return triggers
}

// PermittedTriggersFor returns the configured triggers the role may fire
func (m *stateMachine[S]) PermittedTriggersFor(role Role) []Trigger {
	all := m.PermittedTriggers()
	triggers := make([]Trigger, 0, len(all))
	for _, trigger := range all {
		if m.roleAllowed(trigger, role) {
			triggers = append(triggers, trigger)
		}
	}
	return triggers
}

func (m *stateMachine[S]) roleAllowed(trigger Trigger, role Role) bool {
	allowed, restricted := m.roles[trigger]
	if !restricted {
		return true
	}
	return allowed[role]
}
