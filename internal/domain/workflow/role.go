package workflow

// Role identifies the portal cohort an actor belongs to
type Role string

const (
	RoleSupplier Role = "supplier"
	RoleSPV      Role = "spv"
	RoleMDA      Role = "mda"
	RoleTreasury Role = "treasury"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if the role is a known portal role
func (r Role) IsValid() bool {
	switch r {
	case RoleSupplier, RoleSPV, RoleMDA, RoleTreasury, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}
