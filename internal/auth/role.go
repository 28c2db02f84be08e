package auth

import "fmt"

// Role is an ordered access tier. Higher tiers include every lower one.
type Role int

const (
	RoleUser       Role = 1
	RoleProfessor  Role = 2
	RoleAdmin      Role = 3
	RoleSuperAdmin Role = 4
)

// AtLeast reports whether r grants the minRole tier.
func (r Role) AtLeast(minRole Role) bool {
	return r >= minRole
}

func (r Role) Valid() bool {
	return r >= RoleUser && r <= RoleSuperAdmin
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleProfessor:
		return "professor"
	case RoleAdmin:
		return "admin"
	case RoleSuperAdmin:
		return "superadmin"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}
