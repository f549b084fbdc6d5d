package rbac

// Role names carried in the token role claim.
const (
	RoleOwner      = "owner"
	RoleStaff      = "staff"
	RoleSuperAdmin = "super_admin"
)

// ReadRoles may use the tenant read API.
var ReadRoles = []string{RoleOwner, RoleStaff}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
