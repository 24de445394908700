package gate

import "github.com/myunifiles/unifiles/internal/identity"

// routeRoles maps each navigation target to the roles allowed through. The
// anonymous entry point has no role requirement; every unlisted path falls
// back to it.
var routeRoles = map[string][]identity.Role{
	AnonymousEntry:   nil,
	"/register":      {identity.RoleStudent, identity.RoleCEO},
	"/admin":         {identity.RoleAdmin, identity.RoleCEO},
	"/DataFormsPage": {identity.RoleAdmin, identity.RoleCEO},
	"/student-page":  {identity.RoleStudent, identity.RoleCEO},
	"/dashboard":     {identity.RoleCEO},
	"/AdminSignup":   {identity.RoleAdmin, identity.RoleCEO},
}

// RequiredRoles returns the allowed roles for a navigation target and
// whether the target is known.
func RequiredRoles(path string) ([]identity.Role, bool) {
	required, known := routeRoles[path]
	if !known {
		return nil, false
	}
	if required == nil {
		return nil, true
	}
	roles := make([]identity.Role, len(required))
	copy(roles, required)
	return roles, true
}
