package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/policy"
)

// readPolicies grants read access on a thread to the given user.
func readPolicies(email string) []domain.Policy {
	generated := policy.GeneratePolicyFromPermission([]domain.Permission{domain.PermissionReadThread}, domain.User{Email: email})
	return policy.Merge(nil, generated)
}

func uniqueApp() string {
	return "app-" + uuid.NewString()
}

// runThreadRepositoryContract exercises behavior every backend must share.
// newRepo returns a repository over an empty or shared store; subtests use
// unique application ids so they do not interfere.
func runThreadRepositoryContract(t *testing.T, newRepo func(t *testing.T) ThreadRepository) {
	t.Run("add subscribers to thread without subscribers", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		saved, err := repo.Save(ctx, &domain.CommentThread{ApplicationID: uniqueApp()})
		require.NoError(t, err)
		assert.Empty(t, saved.Subscribers)

		require.NoError(t, repo.AddToSubscribers(ctx, saved.ID, []string{"sub1", "sub2", "sub3"}))

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, []string{"sub1", "sub2", "sub3"}, found.Subscribers)
	})

	t.Run("add subscribers to thread with existing subscribers", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		saved, err := repo.Save(ctx, &domain.CommentThread{
			ApplicationID: uniqueApp(),
			Subscribers:   []string{"sub1", "sub2", "sub3"},
		})
		require.NoError(t, err)

		require.NoError(t, repo.AddToSubscribers(ctx, saved.ID, []string{"sub1", "sub2", "sub3", "sub4"}))

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, []string{"sub1", "sub2", "sub3", "sub4"}, found.Subscribers)
		assert.False(t, found.UpdatedAt.Before(saved.UpdatedAt))
	})

	t.Run("add subscribers to unknown thread", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.AddToSubscribers(context.Background(), uuid.NewString(), []string{"sub1"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("empty subscriber list is a no-op", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		assert.NoError(t, repo.AddToSubscribers(ctx, uuid.NewString(), nil))

		saved, err := repo.Save(ctx, &domain.CommentThread{ApplicationID: uniqueApp(), Subscribers: []string{"sub1"}})
		require.NoError(t, err)
		require.NoError(t, repo.AddToSubscribers(ctx, saved.ID, []string{}))

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"sub1"}, found.Subscribers)
	})

	t.Run("concurrent additions converge to the union", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		saved, err := repo.Save(ctx, &domain.CommentThread{ApplicationID: uniqueApp()})
		require.NoError(t, err)

		const workers = 64
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- repo.AddToSubscribers(ctx, saved.ID, []string{"shared", fmt.Sprintf("sub%d", i)})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Len(t, found.Subscribers, workers+1)
		assert.True(t, found.HasSubscriber("shared"))
	})

	t.Run("subscribers keep byte order across case", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		saved, err := repo.Save(ctx, &domain.CommentThread{
			ApplicationID: uniqueApp(),
			Subscribers:   []string{"alice"},
		})
		require.NoError(t, err)

		require.NoError(t, repo.AddToSubscribers(ctx, saved.ID, []string{"carol", "Bob", "_ops"}))

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, []string{"Bob", "_ops", "alice", "carol"}, found.Subscribers)
		for _, id := range []string{"Bob", "_ops", "alice", "carol"} {
			assert.True(t, found.HasSubscriber(id), id)
		}
	})

	t.Run("private thread absent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		app := uniqueApp()

		_, err := repo.Save(ctx, &domain.CommentThread{ApplicationID: app, IsPrivate: false})
		require.NoError(t, err)

		found, err := repo.FindPrivateThread(ctx, app)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("private thread of another application is not returned", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Save(ctx, &domain.CommentThread{ApplicationID: uniqueApp(), IsPrivate: true})
		require.NoError(t, err)

		found, err := repo.FindPrivateThread(ctx, uniqueApp())
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("private thread scoped to acting user", func(t *testing.T) {
		repo := newRepo(t)
		app := uniqueApp()
		ctx := context.Background()

		saved, err := repo.SaveAll(ctx, []*domain.CommentThread{
			{ApplicationID: app, AuthorUsername: "author1", IsPrivate: false, Policies: readPolicies("api_user")},
			{ApplicationID: app, AuthorUsername: "author2", IsPrivate: true, Policies: readPolicies("api_user2")},
			{ApplicationID: app, AuthorUsername: "author3", IsPrivate: true, Policies: readPolicies("api_user")},
		})
		require.NoError(t, err)
		require.Len(t, saved, 3)

		found, err := repo.FindPrivateThread(policy.WithUser(ctx, domain.User{Email: "api_user"}), app)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "author3", found.AuthorUsername)
		assert.Equal(t, saved[2].ID, found.ID)

		found, err = repo.FindPrivateThread(policy.WithUser(ctx, domain.User{Email: "api_user2"}), app)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "author2", found.AuthorUsername)

		found, err = repo.FindPrivateThread(policy.WithUser(ctx, domain.User{Email: "stranger"}), app)
		require.NoError(t, err)
		assert.Nil(t, found)

		found, err = repo.FindPrivateThread(ctx, app)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.True(t, found.IsPrivate)
		assert.Contains(t, []string{"author2", "author3"}, found.AuthorUsername)
	})

	t.Run("save then find round-trips every field", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		saved, err := repo.Save(ctx, &domain.CommentThread{
			ApplicationID:  uniqueApp(),
			AuthorUsername: "author1",
			IsPrivate:      true,
			Subscribers:    []string{"sub2", "sub1", "sub2"},
			Policies:       readPolicies("api_user"),
		})
		require.NoError(t, err)
		require.NotEmpty(t, saved.ID)
		assert.Equal(t, []string{"sub1", "sub2"}, saved.Subscribers)
		assert.False(t, saved.CreatedAt.IsZero())

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved, found)
	})

	t.Run("re-save keeps identity and creation time", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		app := uniqueApp()

		first, err := repo.Save(ctx, &domain.CommentThread{ApplicationID: app, IsPrivate: true, Subscribers: []string{"sub1"}})
		require.NoError(t, err)

		update := first.Clone()
		update.CreatedAt = first.CreatedAt.Add(-24 * time.Hour)
		update.IsPrivate = false
		update.AuthorUsername = "editor"
		update.Subscribers = []string{"sub9"}

		second, err := repo.Save(ctx, update)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
		assert.Equal(t, "editor", second.AuthorUsername)
		assert.Equal(t, []string{"sub9"}, second.Subscribers)

		found, err := repo.FindByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, second, found)

		private, err := repo.FindPrivateThread(ctx, app)
		require.NoError(t, err)
		assert.Nil(t, private)
	})

	t.Run("find unknown id", func(t *testing.T) {
		repo := newRepo(t)

		found, err := repo.FindByID(context.Background(), uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}
