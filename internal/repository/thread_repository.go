package repository

import (
	"context"

	"github.com/helixir/comment-thread-store/internal/domain"
)

// ThreadRepository defines the interface for comment thread persistence.
type ThreadRepository interface {
	// Save inserts or fully replaces a thread.
	// An ID is assigned when the thread has none; timestamps are stamped and
	// subscribers normalized. The stored state is returned.
	Save(ctx context.Context, thread *domain.CommentThread) (*domain.CommentThread, error)

	// SaveAll saves every thread independently, in order.
	// It returns the saved threads and a joined error describing each failed item.
	SaveAll(ctx context.Context, threads []*domain.CommentThread) ([]*domain.CommentThread, error)

	// FindByID returns the thread with the given ID, or nil if there is none.
	FindByID(ctx context.Context, id string) (*domain.CommentThread, error)

	// AddToSubscribers adds ids to the thread's subscriber set atomically.
	// Ids already present are ignored. Returns a NotFoundError when the
	// thread does not exist.
	AddToSubscribers(ctx context.Context, id string, subscriberIDs []string) error

	// FindPrivateThread returns a private thread of the application, or nil.
	// When the context carries an acting user, only threads whose policies
	// grant that user read access are considered.
	FindPrivateThread(ctx context.Context, applicationID string) (*domain.CommentThread, error)
}
