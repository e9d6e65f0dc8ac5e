package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/comment-thread-store/internal/domain"
)

func TestGeneratePolicyFromPermission(t *testing.T) {
	user := domain.User{Email: "api_user"}

	t.Run("read permission yields one policy", func(t *testing.T) {
		policies := GeneratePolicyFromPermission([]domain.Permission{domain.PermissionReadThread}, user)
		require.Len(t, policies, 1)

		p := policies[domain.PermissionReadThread]
		assert.Equal(t, domain.PermissionReadThread, p.Permission)
		assert.Equal(t, []string{"api_user"}, p.Users)
		assert.Empty(t, p.Groups)
	})

	t.Run("manage permission implies read", func(t *testing.T) {
		policies := GeneratePolicyFromPermission([]domain.Permission{domain.PermissionManageThread}, user)
		require.Len(t, policies, 2)
		assert.Contains(t, policies, domain.PermissionManageThread)
		assert.Contains(t, policies, domain.PermissionReadThread)
	})

	t.Run("duplicate permissions collapse", func(t *testing.T) {
		policies := GeneratePolicyFromPermission([]domain.Permission{
			domain.PermissionReadThread,
			domain.PermissionManageThread,
			domain.PermissionReadThread,
		}, user)
		assert.Len(t, policies, 2)
	})

	t.Run("anonymous user yields nothing", func(t *testing.T) {
		policies := GeneratePolicyFromPermission([]domain.Permission{domain.PermissionReadThread}, domain.User{})
		assert.Empty(t, policies)
	})
}

func TestMerge(t *testing.T) {
	existing := []domain.Policy{{
		Permission: domain.PermissionReadThread,
		Users:      []string{"owner"},
		Groups:     []string{"admins"},
	}}
	generated := GeneratePolicyFromPermission([]domain.Permission{domain.PermissionManageThread}, domain.User{Email: "api_user"})

	merged := Merge(existing, generated)
	require.Len(t, merged, 2)

	assert.Equal(t, domain.PermissionManageThread, merged[0].Permission)
	assert.Equal(t, []string{"api_user"}, merged[0].Users)

	assert.Equal(t, domain.PermissionReadThread, merged[1].Permission)
	assert.Equal(t, []string{"api_user", "owner"}, merged[1].Users)
	assert.Equal(t, []string{"admins"}, merged[1].Groups)

	// Existing input must not be mutated.
	assert.Equal(t, []string{"owner"}, existing[0].Users)
}

func TestGrants(t *testing.T) {
	policies := []domain.Policy{
		{Permission: domain.PermissionReadThread, Users: []string{"api_user"}},
		{Permission: domain.PermissionManageThread, Users: []string{"api_user2"}},
	}

	assert.True(t, Grants(policies, domain.PermissionReadThread, domain.User{Email: "api_user"}))
	assert.False(t, Grants(policies, domain.PermissionReadThread, domain.User{Email: "api_user2"}))
	assert.True(t, Grants(policies, domain.PermissionManageThread, domain.User{Email: "api_user2"}))
	assert.False(t, Grants(nil, domain.PermissionReadThread, domain.User{Email: "api_user"}))
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()

	_, ok := UserFromContext(ctx)
	assert.False(t, ok)

	ctx = WithUser(ctx, domain.User{Email: "api_user"})
	user, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "api_user", user.Email)

	_, ok = UserFromContext(WithUser(context.Background(), domain.User{}))
	assert.False(t, ok)
}
