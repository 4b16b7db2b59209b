package domain

// Role is the closed set of principal kinds.
type Role string

const (
	RoleVisitor     Role = "visitor"
	RoleShareholder Role = "shareholder"
	RoleDirector    Role = "director"
	RoleSuperAdmin  Role = "super_admin"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleVisitor, RoleShareholder, RoleDirector, RoleSuperAdmin:
		return true
	}
	return false
}

// IsElevated reports whether r may see the whole portfolio.
func (r Role) IsElevated() bool {
	return r == RoleDirector || r == RoleSuperAdmin
}

func (r Role) String() string { return string(r) }
