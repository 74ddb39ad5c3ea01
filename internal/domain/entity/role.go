// Package entity contains the core business objects of the project.
package entity

import "slices"

// Role represents the type of role an account can have in the portal.
type Role string

const (
	// RoleAdmin manages the school and every other account.
	RoleAdmin Role = "admin"
	// RoleTeacher manages classes, attendance and announcements.
	RoleTeacher Role = "teacher"
	// RoleStudent is a student account.
	RoleStudent Role = "student"
	// RoleParent is a guardian account.
	RoleParent Role = "parent"
)

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the Role is a valid value.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	default:
		return false
	}
}

// IsSelfService reports whether the role may be chosen at self-registration.
func (r Role) IsSelfService() bool {
	return r == RoleTeacher || r == RoleStudent || r == RoleParent
}

// Roles is a slice of Role for convenience.
type Roles []Role

// Contains checks if the roles slice contains a specific role.
func (rs Roles) Contains(role Role) bool {
	return slices.Contains(rs, role)
}

// RolesFromStrings converts []string to Roles, filtering out invalid role strings.
func RolesFromStrings(ss []string) Roles {
	result := make(Roles, 0, len(ss))
	for _, s := range ss {
		role := Role(s)
		if role.IsValid() {
			result = append(result, role)
		}
	}

	return result
}
