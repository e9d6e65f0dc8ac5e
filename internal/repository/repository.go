// Package repository provides the comment thread store: the ThreadRepository
// interface and its PostgreSQL, MongoDB and Redis implementations.
//
// # Backends
//
//   - PgThreadRepository: PostgreSQL via pgx. Subscriber union is a single
//     UPDATE over a TEXT[] column; viewer filtering uses JSONB containment.
//   - MongoThreadRepository: MongoDB. Subscriber union is $addToSet/$each.
//   - RedisThreadRepository: Redis. Records are JSON strings, subscribers a
//     native set, and saves run in WATCH/MULTI optimistic transactions.
//
// Any backend can be wrapped with NewInstrumentedThreadRepository for logging
// and metrics.
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple goroutines.
//
// # Error Handling
//
// Methods return errors from the domain package:
//
//   - *domain.ValidationError (domain.ErrInvalidInput): the thread or arguments are invalid
//   - *domain.NotFoundError (domain.ErrNotFound): AddToSubscribers on an unknown thread
//   - *domain.StorageError (domain.ErrStorage): the backend failed
//
// Reads of an absent thread return nil with a nil error.
//
// # Usage Pattern
//
//	db, _ := database.New(ctx, &cfg.Database, logger)
//	var repo repository.ThreadRepository = repository.NewPgThreadRepository(db)
//	repo = repository.NewInstrumentedThreadRepository(repo, repository.BackendPostgres, metrics, logger)
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/comment-thread-store/internal/database"
	"github.com/helixir/comment-thread-store/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
// This allows repositories to work with both direct pool connections and transactions.
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    txRepo := repository.NewPgThreadRepository(tx)
//	    _, err := txRepo.Save(ctx, thread)
//	    return err
//	})
type DBTX = database.DBTX

// Backend names, used in errors, metrics labels and configuration.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
)

// entityThread names threads in not-found errors.
const entityThread = "comment_thread"

// newThreadID generates identifiers for threads saved without one.
func newThreadID() string {
	return uuid.New().String()
}

// nowUTC is the clock used for thread timestamps, truncated to the
// microsecond precision PostgreSQL stores. MongoDB keeps milliseconds,
// so the mongo repository truncates further before writing.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// prepareThread validates a thread and returns a normalized copy ready to be
// written. The caller's value is left untouched.
func prepareThread(thread *domain.CommentThread) (*domain.CommentThread, error) {
	if err := thread.Validate(); err != nil {
		return nil, err
	}
	prepared := thread.Clone()
	prepared.PrepareForSave(newThreadID, nowUTC())
	return prepared, nil
}

// saveEach saves threads one at a time. A failed item never prevents the
// others from being saved; its error is joined into the result.
func saveEach(ctx context.Context, threads []*domain.CommentThread,
	save func(context.Context, *domain.CommentThread) (*domain.CommentThread, error)) ([]*domain.CommentThread, error) {
	saved := make([]*domain.CommentThread, 0, len(threads))
	var errs []error
	for i, thread := range threads {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, err := save(ctx, thread)
		if err != nil {
			errs = append(errs, &ItemError{Index: i, Err: err})
			continue
		}
		saved = append(saved, result)
	}
	return saved, errors.Join(errs...)
}

// ItemError reports which element of a SaveAll batch failed.
type ItemError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("thread %d: %v", e.Index, e.Err)
}

// Unwrap returns the item's failure.
func (e *ItemError) Unwrap() error {
	return e.Err
}
