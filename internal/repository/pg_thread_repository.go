package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/policy"
)

// Compile-time interface verification.
var _ ThreadRepository = (*PgThreadRepository)(nil)

// PostgreSQL error codes mapped to domain errors.
const (
	pgCodeCheckViolation     = "23514"
	pgCodeStringDataTooLong  = "22001"
	pgCodeInvalidTextForType = "22P02"
)

const threadColumns = `id, application_id, author_username, is_private, subscribers, policies, created_at, updated_at`

// PgThreadRepository is a PostgreSQL implementation of ThreadRepository.
type PgThreadRepository struct {
	db DBTX
}

// NewPgThreadRepository creates a new PostgreSQL thread repository.
func NewPgThreadRepository(db DBTX) *PgThreadRepository {
	return &PgThreadRepository{db: db}
}

// Save upserts the full thread record. created_at is kept from the first insert.
func (r *PgThreadRepository) Save(ctx context.Context, thread *domain.CommentThread) (*domain.CommentThread, error) {
	t, err := prepareThread(thread)
	if err != nil {
		return nil, err
	}

	policies, err := json.Marshal(t.Policies)
	if err != nil {
		return nil, domain.NewStorageError(BackendPostgres, "save", fmt.Errorf("failed to encode policies: %w", err))
	}

	query := `
		INSERT INTO comment_threads (` + threadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			application_id = EXCLUDED.application_id,
			author_username = EXCLUDED.author_username,
			is_private = EXCLUDED.is_private,
			subscribers = EXCLUDED.subscribers,
			policies = EXCLUDED.policies,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + threadColumns

	row := r.db.QueryRow(ctx, query,
		t.ID,
		t.ApplicationID,
		t.AuthorUsername,
		t.IsPrivate,
		t.Subscribers,
		string(policies),
		t.CreatedAt,
		t.UpdatedAt,
	)

	saved, err := scanThread(row)
	if err != nil {
		return nil, pgError("save", err)
	}

	return saved, nil
}

// SaveAll saves each thread with its own statement so one failure does not
// abort the rest.
func (r *PgThreadRepository) SaveAll(ctx context.Context, threads []*domain.CommentThread) ([]*domain.CommentThread, error) {
	return saveEach(ctx, threads, r.Save)
}

// FindByID retrieves a thread by its ID.
func (r *PgThreadRepository) FindByID(ctx context.Context, id string) (*domain.CommentThread, error) {
	if id == "" {
		return nil, nil
	}

	query := `
		SELECT ` + threadColumns + `
		FROM comment_threads
		WHERE id = $1`

	thread, err := scanThread(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pgError("find_by_id", err)
	}

	return thread, nil
}

// AddToSubscribers merges ids into the subscriber array in a single statement,
// so concurrent callers cannot lose each other's additions.
func (r *PgThreadRepository) AddToSubscribers(ctx context.Context, id string, subscriberIDs []string) error {
	ids := domain.UniqueSubscribers(subscriberIDs)
	if len(ids) == 0 {
		return nil
	}
	if id == "" {
		return domain.NewNotFoundError(entityThread, id)
	}

	query := `
		UPDATE comment_threads
		SET subscribers = ARRAY(
				SELECT DISTINCT s COLLATE "C" FROM unnest(subscribers || $2::text[]) AS s ORDER BY 1
			),
			updated_at = $3
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, ids, nowUTC())
	if err != nil {
		return pgError("add_to_subscribers", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError(entityThread, id)
	}

	return nil
}

// FindPrivateThread returns the oldest private thread of the application
// visible to the acting user.
func (r *PgThreadRepository) FindPrivateThread(ctx context.Context, applicationID string) (*domain.CommentThread, error) {
	if applicationID == "" {
		return nil, domain.NewValidationError("application_id", "application id is required")
	}

	query := `
		SELECT ` + threadColumns + `
		FROM comment_threads
		WHERE application_id = $1 AND is_private`
	args := []interface{}{applicationID}

	if user, ok := policy.UserFromContext(ctx); ok {
		filter, err := readPolicyFilter(user)
		if err != nil {
			return nil, domain.NewStorageError(BackendPostgres, "find_private_thread", err)
		}
		query += ` AND policies @> $2::jsonb`
		args = append(args, filter)
	}

	query += `
		ORDER BY created_at, id
		LIMIT 1`

	thread, err := scanThread(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pgError("find_private_thread", err)
	}

	return thread, nil
}

// readPolicyFilter builds the JSONB document a policies column must contain
// to grant read access to the user.
func readPolicyFilter(user domain.User) (string, error) {
	filter, err := json.Marshal([]domain.Policy{{
		Permission: domain.PermissionReadThread,
		Users:      []string{user.Email},
	}})
	if err != nil {
		return "", fmt.Errorf("failed to encode policy filter: %w", err)
	}
	return string(filter), nil
}

// scanThread scans a single row into a CommentThread.
func scanThread(row pgx.Row) (*domain.CommentThread, error) {
	var t domain.CommentThread
	var policies []byte

	err := row.Scan(
		&t.ID,
		&t.ApplicationID,
		&t.AuthorUsername,
		&t.IsPrivate,
		&t.Subscribers,
		&policies,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Rows written before the byte-ordered union may follow the column collation.
	t.Subscribers = domain.UniqueSubscribers(t.Subscribers)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.Policies = []domain.Policy{}
	if len(policies) > 0 {
		if err := json.Unmarshal(policies, &t.Policies); err != nil {
			return nil, fmt.Errorf("failed to decode policies: %w", err)
		}
	}

	return &t, nil
}

// pgError maps a PostgreSQL failure onto a domain error.
func pgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeCheckViolation:
			return domain.NewValidationError(pgErr.ConstraintName, pgErr.Message)
		case pgCodeStringDataTooLong, pgCodeInvalidTextForType:
			return domain.NewValidationError(pgErr.ColumnName, pgErr.Message)
		}
	}
	return domain.NewStorageError(BackendPostgres, op, err)
}
