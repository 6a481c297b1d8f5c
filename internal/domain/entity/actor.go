package entity

import "github.com/garyjia/receivables-portal/internal/domain/workflow"

// Actor identifies who is issuing a command. RoleScopeID carries the
// organisation the role is bound to, e.g. the mdaId of an MDA officer.
type Actor struct {
	UserID      string        `json:"user_id"`
	Role        workflow.Role `json:"role"`
	RoleScopeID string        `json:"role_scope_id,omitempty"`
}

// SystemActor is used for side effects performed without a human caller
var SystemActor = Actor{UserID: "system", Role: workflow.RoleSystem}

// User is a directory record used to resolve role cohorts
type User struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Email   string        `json:"email"`
	Role    workflow.Role `json:"role"`
	ScopeID string        `json:"scope_id,omitempty"`
}
