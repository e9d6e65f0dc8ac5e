package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/policy"
)

// Compile-time interface verification.
var _ ThreadRepository = (*RedisThreadRepository)(nil)

// DefaultRedisMaxRetries bounds how often an optimistic transaction is
// retried after losing a WATCH race.
const DefaultRedisMaxRetries = 5

// RedisThreadRepository is a Redis implementation of ThreadRepository.
//
// Keys:
//
//	{prefix}thread:{id}                  JSON record without subscribers
//	{prefix}thread:{id}:subscribers      set of subscriber ids
//	{prefix}threads:private:{appId}      sorted set of private thread ids, scored by creation time
type RedisThreadRepository struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// NewRedisThreadRepository creates a Redis thread repository.
// A negative maxRetries disables retries.
func NewRedisThreadRepository(client redis.UniversalClient, keyPrefix string, maxRetries int) *RedisThreadRepository {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RedisThreadRepository{
		client:     client,
		prefix:     keyPrefix,
		maxRetries: maxRetries,
	}
}

func (r *RedisThreadRepository) threadKey(id string) string {
	return r.prefix + "thread:" + id
}

func (r *RedisThreadRepository) subscribersKey(id string) string {
	return r.prefix + "thread:" + id + ":subscribers"
}

func (r *RedisThreadRepository) privateKey(applicationID string) string {
	return r.prefix + "threads:private:" + applicationID
}

// redisThreadRecord is the JSON stored under the thread key.
type redisThreadRecord struct {
	ID             string          `json:"id"`
	ApplicationID  string          `json:"application_id"`
	AuthorUsername string          `json:"author_username"`
	IsPrivate      bool            `json:"is_private"`
	Policies       []domain.Policy `json:"policies"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toRedisRecord(t *domain.CommentThread) *redisThreadRecord {
	return &redisThreadRecord{
		ID:             t.ID,
		ApplicationID:  t.ApplicationID,
		AuthorUsername: t.AuthorUsername,
		IsPrivate:      t.IsPrivate,
		Policies:       t.Policies,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func (rec *redisThreadRecord) toDomain(subscribers []string) *domain.CommentThread {
	t := &domain.CommentThread{
		ID:             rec.ID,
		ApplicationID:  rec.ApplicationID,
		AuthorUsername: rec.AuthorUsername,
		IsPrivate:      rec.IsPrivate,
		Subscribers:    domain.UniqueSubscribers(subscribers),
		Policies:       rec.Policies,
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      rec.UpdatedAt.UTC(),
	}
	if t.Policies == nil {
		t.Policies = []domain.Policy{}
	}
	return t
}

// loadRecord reads a thread record. It returns nil when the key is absent.
func loadRecord(ctx context.Context, c redis.Cmdable, key string) (*redisThreadRecord, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec redisThreadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode thread record %s: %w", key, err)
	}
	return &rec, nil
}

// watch runs fn in an optimistic transaction over keys, retrying when a
// concurrent writer touches a watched key. Domain errors returned by fn pass
// through unchanged.
func (r *RedisThreadRepository) watch(ctx context.Context, op string, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, fn, keys...)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidInput):
			return err
		default:
			return domain.NewStorageError(BackendRedis, op, err)
		}
	}
	return domain.NewStorageError(BackendRedis, op, domain.ErrConflict)
}

// Save writes the record, replaces the subscriber set and maintains the
// private index in one MULTI/EXEC.
func (r *RedisThreadRepository) Save(ctx context.Context, thread *domain.CommentThread) (*domain.CommentThread, error) {
	t, err := prepareThread(thread)
	if err != nil {
		return nil, err
	}

	key := r.threadKey(t.ID)
	subsKey := r.subscribersKey(t.ID)

	var saved *domain.CommentThread
	err = r.watch(ctx, "save", func(tx *redis.Tx) error {
		existing, err := loadRecord(ctx, tx, key)
		if err != nil {
			return err
		}

		rec := toRedisRecord(t)
		if existing != nil {
			rec.CreatedAt = existing.CreatedAt
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode thread record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Del(ctx, subsKey)
			if len(t.Subscribers) > 0 {
				pipe.SAdd(ctx, subsKey, stringArgs(t.Subscribers)...)
			}
			if existing != nil && existing.IsPrivate {
				pipe.ZRem(ctx, r.privateKey(existing.ApplicationID), t.ID)
			}
			if rec.IsPrivate {
				pipe.ZAdd(ctx, r.privateKey(rec.ApplicationID), redis.Z{
					Score:  float64(rec.CreatedAt.UnixMicro()),
					Member: t.ID,
				})
			}
			return nil
		})
		if err != nil {
			return err
		}

		saved = rec.toDomain(t.Subscribers)
		return nil
	}, key)
	if err != nil {
		return nil, err
	}

	return saved, nil
}

// SaveAll saves each thread in its own transaction.
func (r *RedisThreadRepository) SaveAll(ctx context.Context, threads []*domain.CommentThread) ([]*domain.CommentThread, error) {
	return saveEach(ctx, threads, r.Save)
}

// FindByID reads the record and subscriber set atomically.
func (r *RedisThreadRepository) FindByID(ctx context.Context, id string) (*domain.CommentThread, error) {
	if id == "" {
		return nil, nil
	}

	thread, err := r.load(ctx, id)
	if err != nil {
		return nil, domain.NewStorageError(BackendRedis, "find_by_id", err)
	}
	return thread, nil
}

func (r *RedisThreadRepository) load(ctx context.Context, id string) (*domain.CommentThread, error) {
	var getCmd *redis.StringCmd
	var membersCmd *redis.StringSliceCmd

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, r.threadKey(id))
		membersCmd = pipe.SMembers(ctx, r.subscribersKey(id))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec redisThreadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode thread record %s: %w", id, err)
	}

	members, err := membersCmd.Result()
	if err != nil {
		return nil, err
	}

	return rec.toDomain(members), nil
}

// addSubscribersScript adds ARGV[2:] to the subscriber set KEYS[2] and stamps
// ARGV[1] into the record's updated_at, all in one server-side step. It
// returns 0 when the record KEYS[1] does not exist.
var addSubscribersScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('SADD', KEYS[2], unpack(ARGV, 2))
local rec = redis.call('GET', KEYS[1])
local updated = string.gsub(rec, '"updated_at":"[^"]*"', '"updated_at":"' .. ARGV[1] .. '"', 1)
redis.call('SET', KEYS[1], updated)
return 1
`)

// AddToSubscribers adds ids with SADD and bumps the record's updated_at.
// The script runs atomically on the server, so concurrent callers never
// conflict with each other.
func (r *RedisThreadRepository) AddToSubscribers(ctx context.Context, id string, subscriberIDs []string) error {
	ids := domain.UniqueSubscribers(subscriberIDs)
	if len(ids) == 0 {
		return nil
	}
	if id == "" {
		return domain.NewNotFoundError(entityThread, id)
	}

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, nowUTC().Format(time.RFC3339Nano))
	args = append(args, stringArgs(ids)...)

	added, err := addSubscribersScript.Run(ctx, r.client,
		[]string{r.threadKey(id), r.subscribersKey(id)}, args...).Int()
	if err != nil {
		return domain.NewStorageError(BackendRedis, "add_to_subscribers", err)
	}
	if added == 0 {
		return domain.NewNotFoundError(entityThread, id)
	}
	return nil
}

// FindPrivateThread walks the application's private index oldest first and
// returns the first thread the acting user may read.
func (r *RedisThreadRepository) FindPrivateThread(ctx context.Context, applicationID string) (*domain.CommentThread, error) {
	if applicationID == "" {
		return nil, domain.NewValidationError("application_id", "application id is required")
	}

	ids, err := r.client.ZRange(ctx, r.privateKey(applicationID), 0, -1).Result()
	if err != nil {
		return nil, domain.NewStorageError(BackendRedis, "find_private_thread", err)
	}

	user, scoped := policy.UserFromContext(ctx)
	for _, id := range ids {
		thread, err := r.load(ctx, id)
		if err != nil {
			return nil, domain.NewStorageError(BackendRedis, "find_private_thread", err)
		}
		if thread == nil || !thread.IsPrivate || thread.ApplicationID != applicationID {
			continue
		}
		if scoped && !policy.Grants(thread.Policies, domain.PermissionReadThread, user) {
			continue
		}
		return thread, nil
	}

	return nil, nil
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
