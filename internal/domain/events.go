package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for thread events.
const (
	EventTypeThreadSaved            = "thread.saved"
	EventTypeThreadSubscribersAdded = "thread.subscribers_added"
)

// AggregateTypeCommentThread is the aggregate type carried by thread events.
const AggregateTypeCommentThread = "comment_thread"

// ThreadEvent is a notification about a change to a comment thread.
type ThreadEvent struct {
	EventID       string            `json:"event_id"`
	EventVersion  int               `json:"event_version"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	EventType     string            `json:"event_type"`
	ApplicationID string            `json:"application_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// NewThreadEvent creates a new thread event with the given parameters.
// The payload is JSON-serialized automatically.
func NewThreadEvent(eventType, threadID string, payload interface{}) (*ThreadEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &ThreadEvent{
		EventID:       uuid.New().String(),
		EventVersion:  1,
		AggregateID:   threadID,
		AggregateType: AggregateTypeCommentThread,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// WithApplication sets the owning application on the event.
func (e *ThreadEvent) WithApplication(applicationID string) *ThreadEvent {
	e.ApplicationID = applicationID
	return e
}

// WithMetadata sets the metadata on the event.
func (e *ThreadEvent) WithMetadata(metadata map[string]string) *ThreadEvent {
	e.Metadata = metadata
	return e
}

// ThreadSavedPayload is the payload for thread.saved events.
type ThreadSavedPayload struct {
	ThreadID       string `json:"thread_id"`
	ApplicationID  string `json:"application_id"`
	AuthorUsername string `json:"author_username"`
	IsPrivate      bool   `json:"is_private"`
}

// SubscribersAddedPayload is the payload for thread.subscribers_added events.
type SubscribersAddedPayload struct {
	ThreadID      string   `json:"thread_id"`
	SubscriberIDs []string `json:"subscriber_ids"`
}
