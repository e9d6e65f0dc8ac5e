// Package policy generates and evaluates access-control policies for comment
// threads and carries the acting user through request contexts.
package policy

import (
	"context"
	"slices"

	"github.com/helixir/comment-thread-store/internal/domain"
)

// lateralPermissions lists the permissions implied by holding another one.
var lateralPermissions = map[domain.Permission][]domain.Permission{
	domain.PermissionManageThread: {domain.PermissionReadThread},
}

// GeneratePolicyFromPermission builds one policy per requested permission,
// plus any permissions they imply, each naming the user's email.
func GeneratePolicyFromPermission(permissions []domain.Permission, user domain.User) map[domain.Permission]domain.Policy {
	policies := make(map[domain.Permission]domain.Policy)
	if user.Email == "" {
		return policies
	}

	var add func(p domain.Permission)
	add = func(p domain.Permission) {
		if _, ok := policies[p]; ok {
			return
		}
		policies[p] = domain.Policy{
			Permission: p,
			Users:      []string{user.Email},
		}
		for _, implied := range lateralPermissions[p] {
			add(implied)
		}
	}
	for _, p := range permissions {
		add(p)
	}
	return policies
}

// Merge folds generated policies into an existing policy set.
// Users of a policy with the same permission are unioned; the result is
// ordered by permission.
func Merge(existing []domain.Policy, generated map[domain.Permission]domain.Policy) []domain.Policy {
	byPermission := make(map[domain.Permission]domain.Policy, len(existing)+len(generated))
	for _, p := range existing {
		byPermission[p.Permission] = mergeOne(byPermission[p.Permission], p)
	}
	for _, p := range generated {
		byPermission[p.Permission] = mergeOne(byPermission[p.Permission], p)
	}

	out := make([]domain.Policy, 0, len(byPermission))
	for _, p := range byPermission {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Policy) int {
		switch {
		case a.Permission < b.Permission:
			return -1
		case a.Permission > b.Permission:
			return 1
		}
		return 0
	})
	return out
}

func mergeOne(into, from domain.Policy) domain.Policy {
	into.Permission = from.Permission
	into.Users = union(into.Users, from.Users)
	into.Groups = union(into.Groups, from.Groups)
	return into
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := append(slices.Clone(a), b...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Grants reports whether any policy gives the permission to the user.
func Grants(policies []domain.Policy, permission domain.Permission, user domain.User) bool {
	for _, p := range policies {
		if p.Permission == permission && p.AllowsUser(user.Email) {
			return true
		}
	}
	return false
}

type contextKey string

const userKey contextKey = "acting_user"

// WithUser attaches the acting user to the context.
func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the acting user, if one was attached.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userKey).(domain.User)
	if !ok || user.Email == "" {
		return domain.User{}, false
	}
	return user, true
}
