package auth

// Permission names one admin action
type Permission string

const (
	// PermViewHierarchy allows reading the tree and node relations
	PermViewHierarchy Permission = "hierarchy.view"
	// PermRebuild allows forcing a rebuild
	PermRebuild Permission = "hierarchy.rebuild"
	// PermClearCache allows dropping the route cache
	PermClearCache Permission = "cache.clear"
	// PermProfile allows reading pprof profiles and runtime stats
	PermProfile Permission = "debug.profile"
)

// Role is a named set of permissions
type Role struct {
	Name        string
	Permissions []Permission
}

// HasPermission checks if the role has a specific permission
func (r *Role) HasPermission(permission Permission) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Predefined roles
var (
	AdminRole = &Role{
		Name:        "admin",
		Permissions: []Permission{PermViewHierarchy, PermRebuild, PermClearCache, PermProfile},
	}
	EditorRole = &Role{
		Name:        "editor",
		Permissions: []Permission{PermViewHierarchy, PermRebuild},
	}
	ViewerRole = &Role{
		Name:        "viewer",
		Permissions: []Permission{PermViewHierarchy},
	}
)

// RoleByName returns a predefined role, or nil
func RoleByName(name string) *Role {
	switch name {
	case "admin":
		return AdminRole
	case "editor":
		return EditorRole
	case "viewer":
		return ViewerRole
	default:
		return nil
	}
}

// HasPermission checks if any of roles grants permission
func HasPermission(roles []string, permission Permission) bool {
	for _, name := range roles {
		if role := RoleByName(name); role != nil && role.HasPermission(permission) {
			return true
		}
	}
	return false
}
