// Package service wraps the thread repository with the behavior callers need
// around persistence: policy enrichment on create and change notifications.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/events"
	"github.com/helixir/comment-thread-store/internal/observability"
	"github.com/helixir/comment-thread-store/internal/policy"
	"github.com/helixir/comment-thread-store/internal/repository"
)

// defaultCreatePermissions are granted to the acting user when CreateThread
// is called without explicit permissions.
var defaultCreatePermissions = []domain.Permission{domain.PermissionManageThread}

// ThreadService coordinates thread persistence with policy generation and
// event publishing.
type ThreadService struct {
	repo      repository.ThreadRepository
	emitter   *events.Emitter
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewThreadService creates a ThreadService. A nil publisher disables events.
func NewThreadService(repo repository.ThreadRepository, emitter *events.Emitter, publisher events.Publisher, logger zerolog.Logger) *ThreadService {
	if emitter == nil {
		emitter = events.NewEmitter(events.EmitterConfig{})
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ThreadService{
		repo:      repo,
		emitter:   emitter,
		publisher: publisher,
		logger:    logger.With().Str("component", "thread_service").Logger(),
	}
}

// CreateThread saves a thread on behalf of the acting user in ctx.
// Policies for the given permissions (manage by default) are generated for the
// user and merged into the thread's policies, and the author defaults to the
// user. Without an acting user the thread is saved as given.
func (s *ThreadService) CreateThread(ctx context.Context, thread *domain.CommentThread, permissions ...domain.Permission) (*domain.CommentThread, error) {
	if thread == nil {
		return nil, domain.NewValidationError("thread", "thread cannot be nil")
	}

	prepared := s.enrich(ctx, thread, permissions)
	saved, err := s.repo.Save(ctx, prepared)
	if err != nil {
		return nil, err
	}

	event, err := s.emitter.EmitThreadSaved(ctx, saved)
	s.publish(ctx, event, err)

	return saved, nil
}

// CreateThreads is CreateThread for a batch. Items are saved independently:
// the returned slice holds the threads that were saved and the error joins
// every per-item failure.
func (s *ThreadService) CreateThreads(ctx context.Context, threads []*domain.CommentThread, permissions ...domain.Permission) ([]*domain.CommentThread, error) {
	prepared := make([]*domain.CommentThread, len(threads))
	for i, t := range threads {
		prepared[i] = s.enrich(ctx, t, permissions)
	}

	saved, saveErr := s.repo.SaveAll(ctx, prepared)
	if len(saved) == 0 {
		return saved, saveErr
	}

	batch := make([]*domain.ThreadEvent, 0, len(saved))
	for _, t := range saved {
		event, err := s.emitter.EmitThreadSaved(ctx, t)
		if err != nil {
			logger := observability.LoggerFromContext(ctx, s.logger)
			logger.Error().Err(err).
				Str("thread_id", t.ID).
				Msg("failed to build thread event")
			continue
		}
		batch = append(batch, event)
	}
	if err := s.publisher.Publish(ctx, batch...); err != nil {
		logger := observability.LoggerFromContext(ctx, s.logger)
		logger.Error().Err(err).
			Int("events", len(batch)).
			Msg("failed to publish thread events")
	}

	return saved, saveErr
}

// enrich returns a copy of thread carrying the acting user's policies.
// nil threads pass through so the repository reports them.
func (s *ThreadService) enrich(ctx context.Context, thread *domain.CommentThread, permissions []domain.Permission) *domain.CommentThread {
	prepared := thread.Clone()
	user, ok := policy.UserFromContext(ctx)
	if prepared == nil || !ok {
		return prepared
	}
	if len(permissions) == 0 {
		permissions = defaultCreatePermissions
	}
	generated := policy.GeneratePolicyFromPermission(permissions, user)
	prepared.Policies = policy.Merge(prepared.Policies, generated)
	if prepared.AuthorUsername == "" {
		prepared.AuthorUsername = user.Email
	}
	return prepared
}

// Subscribe adds subscriber ids to a thread and announces them.
func (s *ThreadService) Subscribe(ctx context.Context, threadID string, subscriberIDs ...string) error {
	ids := domain.UniqueSubscribers(subscriberIDs)
	if len(ids) == 0 {
		return nil
	}

	if err := s.repo.AddToSubscribers(ctx, threadID, ids); err != nil {
		return err
	}

	event, err := s.emitter.EmitSubscribersAdded(ctx, threadID, ids)
	s.publish(ctx, event, err)

	return nil
}

// Thread returns the thread with the given id, or nil.
func (s *ThreadService) Thread(ctx context.Context, id string) (*domain.CommentThread, error) {
	return s.repo.FindByID(ctx, id)
}

// PrivateThread returns the application's private thread visible to the
// acting user, or nil.
func (s *ThreadService) PrivateThread(ctx context.Context, applicationID string) (*domain.CommentThread, error) {
	return s.repo.FindPrivateThread(ctx, applicationID)
}

// publish hands an event to the publisher. The write it describes already
// succeeded, so failures are logged rather than returned.
func (s *ThreadService) publish(ctx context.Context, event *domain.ThreadEvent, emitErr error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	if emitErr != nil {
		logger.Error().Err(emitErr).Msg("failed to build thread event")
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		threadLogger := observability.WithThreadContext(logger, event.AggregateID, event.ApplicationID)
		threadLogger.Error().Err(err).
			Str("event_type", event.EventType).
			Msg("failed to publish thread event")
	}
}
