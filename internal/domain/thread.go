package domain

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// threadValidator checks struct-level constraints on threads before they are persisted.
var threadValidator = newThreadValidator()

func newThreadValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names so errors match what clients see.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CommentThread is a comment discussion scoped to an application.
type CommentThread struct {
	// ID is assigned on first save and never changes afterwards.
	ID string `json:"id"`

	// ApplicationID identifies the owning application.
	ApplicationID string `json:"application_id" validate:"max=255"`

	// AuthorUsername identifies the creator.
	AuthorUsername string `json:"author_username" validate:"max=255"`

	// IsPrivate marks the thread as visible only to its owning context.
	IsPrivate bool `json:"is_private"`

	// Subscribers is a set of opaque subscriber identifiers.
	// Stores keep it deduplicated and sorted.
	Subscribers []string `json:"subscribers" validate:"dive,required"`

	// Policies are access-control entries produced by the policy collaborator.
	Policies []Policy `json:"policies" validate:"dive"`

	// CreatedAt records when the thread was first saved.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt records the last save or subscriber mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the thread's field constraints.
// Returns a *ValidationError naming the first offending field.
func (t *CommentThread) Validate() error {
	if t == nil {
		return NewValidationError("thread", "thread cannot be nil")
	}
	if err := threadValidator.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewValidationError(fieldPath(fe.Namespace()), "failed on '"+fe.Tag()+"'")
		}
		return NewValidationError("thread", err.Error())
	}
	return nil
}

// fieldPath drops the struct name prefix from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// HasSubscriber reports whether id is in the subscriber set.
func (t *CommentThread) HasSubscriber(id string) bool {
	_, found := slices.BinarySearch(t.Subscribers, id)
	return found
}

// Clone returns a deep copy of the thread.
func (t *CommentThread) Clone() *CommentThread {
	if t == nil {
		return nil
	}
	c := *t
	c.Subscribers = slices.Clone(t.Subscribers)
	if t.Policies != nil {
		c.Policies = make([]Policy, len(t.Policies))
		for i, p := range t.Policies {
			c.Policies[i] = p.Clone()
		}
	}
	return &c
}

// PrepareForSave assigns the identity and timestamps of a thread about to be written.
// newID is called only when the thread has no ID yet.
func (t *CommentThread) PrepareForSave(newID func() string, now time.Time) {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Subscribers = UniqueSubscribers(t.Subscribers)
	if t.Policies == nil {
		t.Policies = []Policy{}
	}
}

// UniqueSubscribers returns the sorted set of non-blank ids.
// The result is never nil, so it encodes as an empty array.
func UniqueSubscribers(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// MergeSubscribers returns the set union of existing and added ids.
func MergeSubscribers(existing, added []string) []string {
	merged := make([]string, 0, len(existing)+len(added))
	merged = append(merged, existing...)
	merged = append(merged, added...)
	return UniqueSubscribers(merged)
}
