package domain

import "slices"

// Permission names an action on a resource, in verb:resource form.
type Permission string

// Comment thread permissions.
const (
	PermissionReadThread   Permission = "read:commentThreads"
	PermissionManageThread Permission = "manage:commentThreads"
)

// Policy grants a permission to a set of users and groups.
type Policy struct {
	Permission Permission `json:"permission" validate:"required"`
	Users      []string   `json:"users,omitempty" validate:"dive,required"`
	Groups     []string   `json:"groups,omitempty" validate:"dive,required"`
}

// Clone returns a deep copy of the policy.
func (p Policy) Clone() Policy {
	p.Users = slices.Clone(p.Users)
	p.Groups = slices.Clone(p.Groups)
	return p
}

// AllowsUser reports whether the policy names the given user.
func (p Policy) AllowsUser(username string) bool {
	return username != "" && slices.Contains(p.Users, username)
}

// User is the acting identity used to generate and evaluate policies.
type User struct {
	// Email is the identifier recorded in policy user lists.
	Email string
}
