package domain

import (
	"fmt"
	"strings"
)

// Role is an access level. Higher rank sees more.
type Role struct {
	ID   int
	Name string
}

// Built-in roles, ordered by rank.
var (
	RoleGuest         = Role{ID: 1, Name: "Guest"}
	RoleUser          = Role{ID: 2, Name: "User"}
	RoleLibrarian     = Role{ID: 3, Name: "Librarian"}
	RoleAdministrator = Role{ID: 4, Name: "Administrator"}
)

var roles = []Role{RoleGuest, RoleUser, RoleLibrarian, RoleAdministrator}

// DefaultRole is the role applied to anonymous users.
func DefaultRole() Role { return RoleGuest }

// Rank returns the comparable privilege level of the role.
func (r Role) Rank() int { return r.ID }

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool { return r.ID >= other.ID }

// ParseRole resolves a role by name, case-insensitively.
func ParseRole(name string) (Role, error) {
	for _, r := range roles {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return Role{}, fmt.Errorf("unknown role %q", name)
}

// RoleByID resolves a role by id. Unknown ids fall back to the default role.
func RoleByID(id int) Role {
	for _, r := range roles {
		if r.ID == id {
			return r
		}
	}
	return DefaultRole()
}

// User is an authenticated principal. A nil *User means anonymous.
type User struct {
	Login string
	Role  Role
}

// RoleOf returns the acting role for u, falling back to the default role for anonymous users.
func RoleOf(u *User) Role {
	if u == nil {
		return DefaultRole()
	}
	return u.Role
}
