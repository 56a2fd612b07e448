package rbac

// Role names. Keep these stable; they are carried in issued tokens.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleViewer     = "viewer"
)

// AllRoles lists the roles a token may carry.
var AllRoles = []string{RoleAdmin, RoleSupervisor, RoleViewer}

func IsAdmin(role string) bool { return role == RoleAdmin }

func Valid(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
