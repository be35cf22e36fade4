package identity

import "strings"

// PermissionAll is the wildcard: a role holding it passes every check.
const PermissionAll = "*"

const (
	PermissionViewDashboard    = "view_dashboard"
	PermissionManageUsers      = "manage_users"
	PermissionViewAnalytics    = "view_analytics"
	PermissionManageRecordings = "manage_recordings"
	PermissionViewRecordings   = "view_recordings"
)

// Static role -> permission table. Roles not listed hold nothing.
var rolePermissions = map[string][]string{
	RoleDachidoAdmin:  {PermissionAll},
	RoleAdmin:         {PermissionViewDashboard, PermissionManageUsers, PermissionViewAnalytics, PermissionManageRecordings},
	RoleCustomerAdmin: {PermissionViewDashboard, PermissionViewAnalytics, PermissionViewRecordings},
}

// HasPermission reports whether the role's set contains the wildcard or the
// specific permission literal.
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == PermissionAll || p == permission {
			return true
		}
	}
	return false
}

// RolePermissions returns a copy of the role's permission set.
func RolePermissions(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// CanAccessOrganization is the single tenant-isolation predicate: wildcard
// roles reach every organization, everyone else only their own
// (case-insensitive).
func CanAccessOrganization(subjectOrg, subjectRole, targetOrg string) bool {
	if HasPermission(subjectRole, PermissionAll) {
		return true
	}
	return strings.EqualFold(subjectOrg, targetOrg)
}

// IsDachidoAdmin reports whether the pair names an operator admin. The
// dachido_admin role only counts inside the dachido organization.
func IsDachidoAdmin(organization, role string) bool {
	return strings.EqualFold(organization, DachidoOrg) && role == RoleDachidoAdmin
}
