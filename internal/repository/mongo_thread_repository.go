package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/policy"
)

// Compile-time interface verification.
var _ ThreadRepository = (*MongoThreadRepository)(nil)

// ThreadCollection is the MongoDB collection holding comment threads.
const ThreadCollection = "comment_threads"

// MongoThreadRepository is a MongoDB implementation of ThreadRepository.
type MongoThreadRepository struct {
	coll *mongo.Collection
}

// NewMongoThreadRepository creates a thread repository over the database's
// comment_threads collection.
func NewMongoThreadRepository(db *mongo.Database) *MongoThreadRepository {
	return &MongoThreadRepository{coll: db.Collection(ThreadCollection)}
}

// EnsureIndexes creates the indexes the repository's queries rely on.
func (r *MongoThreadRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "application_id", Value: 1},
				{Key: "is_private", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("application_private_created"),
		},
	})
	if err != nil {
		return domain.NewStorageError(BackendMongo, "ensure_indexes", err)
	}
	return nil
}

// threadDoc is the stored form of a comment thread.
type threadDoc struct {
	ID             string      `bson:"_id"`
	ApplicationID  string      `bson:"application_id"`
	AuthorUsername string      `bson:"author_username"`
	IsPrivate      bool        `bson:"is_private"`
	Subscribers    []string    `bson:"subscribers"`
	Policies       []policyDoc `bson:"policies"`
	CreatedAt      time.Time   `bson:"created_at"`
	UpdatedAt      time.Time   `bson:"updated_at"`
}

type policyDoc struct {
	Permission string   `bson:"permission"`
	Users      []string `bson:"users,omitempty"`
	Groups     []string `bson:"groups,omitempty"`
}

// bsonTime truncates to the millisecond precision of a BSON datetime.
func bsonTime(t time.Time) time.Time {
	return t.Truncate(time.Millisecond)
}

func toThreadDoc(t *domain.CommentThread) threadDoc {
	doc := threadDoc{
		ID:             t.ID,
		ApplicationID:  t.ApplicationID,
		AuthorUsername: t.AuthorUsername,
		IsPrivate:      t.IsPrivate,
		Subscribers:    domain.UniqueSubscribers(t.Subscribers),
		Policies:       make([]policyDoc, 0, len(t.Policies)),
		CreatedAt:      bsonTime(t.CreatedAt),
		UpdatedAt:      bsonTime(t.UpdatedAt),
	}
	for _, p := range t.Policies {
		doc.Policies = append(doc.Policies, policyDoc{
			Permission: string(p.Permission),
			Users:      p.Users,
			Groups:     p.Groups,
		})
	}
	return doc
}

func (d threadDoc) toDomain() *domain.CommentThread {
	t := &domain.CommentThread{
		ID:             d.ID,
		ApplicationID:  d.ApplicationID,
		AuthorUsername: d.AuthorUsername,
		IsPrivate:      d.IsPrivate,
		// $addToSet appends in arrival order.
		Subscribers: domain.UniqueSubscribers(d.Subscribers),
		Policies:    make([]domain.Policy, 0, len(d.Policies)),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	for _, p := range d.Policies {
		t.Policies = append(t.Policies, domain.Policy{
			Permission: domain.Permission(p.Permission),
			Users:      p.Users,
			Groups:     p.Groups,
		})
	}
	return t
}

// saveUpdate replaces every mutable field and sets created_at only on insert.
func saveUpdate(doc threadDoc) bson.M {
	return bson.M{
		"$set": bson.M{
			"application_id":  doc.ApplicationID,
			"author_username": doc.AuthorUsername,
			"is_private":      doc.IsPrivate,
			"subscribers":     doc.Subscribers,
			"policies":        doc.Policies,
			"updated_at":      doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": doc.CreatedAt,
		},
	}
}

// addSubscribersUpdate unions ids into the subscriber array.
func addSubscribersUpdate(ids []string, now time.Time) bson.M {
	return bson.M{
		"$addToSet": bson.M{"subscribers": bson.M{"$each": ids}},
		"$set":      bson.M{"updated_at": bsonTime(now)},
	}
}

// privateThreadFilter selects the application's private threads, restricted
// to those readable by the acting user when there is one.
func privateThreadFilter(ctx context.Context, applicationID string) bson.M {
	filter := bson.M{
		"application_id": applicationID,
		"is_private":     true,
	}
	if user, ok := policy.UserFromContext(ctx); ok {
		filter["policies"] = bson.M{"$elemMatch": bson.M{
			"permission": string(domain.PermissionReadThread),
			"users":      user.Email,
		}}
	}
	return filter
}

// Save upserts the thread and returns the stored document.
func (r *MongoThreadRepository) Save(ctx context.Context, thread *domain.CommentThread) (*domain.CommentThread, error) {
	t, err := prepareThread(thread)
	if err != nil {
		return nil, err
	}

	doc := toThreadDoc(t)
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored threadDoc
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": doc.ID}, saveUpdate(doc), opts).Decode(&stored)
	if err != nil {
		return nil, domain.NewStorageError(BackendMongo, "save", err)
	}

	return stored.toDomain(), nil
}

// SaveAll saves each thread independently.
func (r *MongoThreadRepository) SaveAll(ctx context.Context, threads []*domain.CommentThread) ([]*domain.CommentThread, error) {
	return saveEach(ctx, threads, r.Save)
}

// FindByID retrieves a thread by its ID.
func (r *MongoThreadRepository) FindByID(ctx context.Context, id string) (*domain.CommentThread, error) {
	if id == "" {
		return nil, nil
	}

	var doc threadDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, domain.NewStorageError(BackendMongo, "find_by_id", err)
	}

	return doc.toDomain(), nil
}

// AddToSubscribers unions ids into the thread's subscriber array with $addToSet.
func (r *MongoThreadRepository) AddToSubscribers(ctx context.Context, id string, subscriberIDs []string) error {
	ids := domain.UniqueSubscribers(subscriberIDs)
	if len(ids) == 0 {
		return nil
	}
	if id == "" {
		return domain.NewNotFoundError(entityThread, id)
	}

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, addSubscribersUpdate(ids, nowUTC()))
	if err != nil {
		return domain.NewStorageError(BackendMongo, "add_to_subscribers", err)
	}
	if result.MatchedCount == 0 {
		return domain.NewNotFoundError(entityThread, id)
	}

	return nil
}

// FindPrivateThread returns the oldest private thread of the application
// visible to the acting user.
func (r *MongoThreadRepository) FindPrivateThread(ctx context.Context, applicationID string) (*domain.CommentThread, error) {
	if applicationID == "" {
		return nil, domain.NewValidationError("application_id", "application id is required")
	}

	opts := options.FindOne().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})

	var doc threadDoc
	err := r.coll.FindOne(ctx, privateThreadFilter(ctx, applicationID), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, domain.NewStorageError(BackendMongo, "find_private_thread", err)
	}

	return doc.toDomain(), nil
}
