package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/observability"
)

// Compile-time interface verification.
var _ ThreadRepository = (*InstrumentedThreadRepository)(nil)

// InstrumentedThreadRepository decorates a ThreadRepository with structured
// logging and Prometheus metrics.
type InstrumentedThreadRepository struct {
	next    ThreadRepository
	backend string
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewInstrumentedThreadRepository wraps next. metrics may be nil.
func NewInstrumentedThreadRepository(next ThreadRepository, backend string, metrics *observability.Metrics, logger zerolog.Logger) *InstrumentedThreadRepository {
	return &InstrumentedThreadRepository{
		next:    next,
		backend: backend,
		metrics: metrics,
		logger:  logger.With().Str("component", "thread_repository").Logger(),
	}
}

// outcome classifies an operation result for metrics labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, domain.ErrNotFound):
		return observability.OutcomeNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return observability.OutcomeInvalid
	case errors.Is(err, domain.ErrConflict):
		return observability.OutcomeConflict
	default:
		return observability.OutcomeError
	}
}

func (r *InstrumentedThreadRepository) observe(ctx context.Context, op string, start time.Time, err error, fields func(*zerolog.Event)) {
	elapsed := time.Since(start)
	result := outcome(err)
	if r.metrics != nil {
		r.metrics.RecordOperation(op, r.backend, result, elapsed.Seconds())
	}

	logger := observability.WithStoreContext(observability.LoggerFromContext(ctx, r.logger), op, r.backend)
	var event *zerolog.Event
	switch result {
	case observability.OutcomeSuccess:
		event = logger.Debug()
	case observability.OutcomeError, observability.OutcomeConflict:
		event = logger.Error().Err(err)
	default:
		event = logger.Warn().Err(err)
	}
	event = event.Dur("duration", elapsed).Str("outcome", result)
	if fields != nil {
		fields(event)
	}
	event.Msg("thread repository operation")
}

// Save delegates to the wrapped repository.
func (r *InstrumentedThreadRepository) Save(ctx context.Context, thread *domain.CommentThread) (*domain.CommentThread, error) {
	start := time.Now()
	saved, err := r.next.Save(ctx, thread)
	r.observe(ctx, "save", start, err, func(e *zerolog.Event) {
		if saved != nil {
			e.Str("thread_id", saved.ID).Str("application_id", saved.ApplicationID)
		}
	})
	return saved, err
}

// SaveAll delegates to the wrapped repository.
func (r *InstrumentedThreadRepository) SaveAll(ctx context.Context, threads []*domain.CommentThread) ([]*domain.CommentThread, error) {
	start := time.Now()
	if r.metrics != nil {
		r.metrics.RecordSaveAllBatch(len(threads))
	}
	saved, err := r.next.SaveAll(ctx, threads)
	r.observe(ctx, "save_all", start, err, func(e *zerolog.Event) {
		e.Int("requested", len(threads)).Int("saved", len(saved))
	})
	return saved, err
}

// FindByID delegates to the wrapped repository.
func (r *InstrumentedThreadRepository) FindByID(ctx context.Context, id string) (*domain.CommentThread, error) {
	start := time.Now()
	thread, err := r.next.FindByID(ctx, id)
	r.observe(ctx, "find_by_id", start, err, func(e *zerolog.Event) {
		e.Str("thread_id", id).Bool("found", thread != nil)
	})
	return thread, err
}

// AddToSubscribers delegates to the wrapped repository.
func (r *InstrumentedThreadRepository) AddToSubscribers(ctx context.Context, id string, subscriberIDs []string) error {
	start := time.Now()
	err := r.next.AddToSubscribers(ctx, id, subscriberIDs)
	if err == nil && r.metrics != nil {
		r.metrics.RecordSubscribersAdded(r.backend, len(domain.UniqueSubscribers(subscriberIDs)))
	}
	r.observe(ctx, "add_to_subscribers", start, err, func(e *zerolog.Event) {
		e.Str("thread_id", id).Int("subscribers", len(subscriberIDs))
	})
	return err
}

// FindPrivateThread delegates to the wrapped repository.
func (r *InstrumentedThreadRepository) FindPrivateThread(ctx context.Context, applicationID string) (*domain.CommentThread, error) {
	start := time.Now()
	thread, err := r.next.FindPrivateThread(ctx, applicationID)
	r.observe(ctx, "find_private_thread", start, err, func(e *zerolog.Event) {
		e.Str("application_id", applicationID).Bool("found", thread != nil)
	})
	return thread, err
}
