package events

import (
	"context"
	"fmt"

	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/observability"
)

// defaultServiceName is recorded as the event source when none is configured.
const defaultServiceName = "comment-thread-store"

// Metadata keys attached to every emitted event.
const (
	MetadataSource    = "source"
	MetadataRequestID = "request_id"
	MetadataTraceID   = "trace_id"
)

// EmitterConfig configures the Emitter with service context.
type EmitterConfig struct {
	// ServiceName identifies the source service.
	ServiceName string
}

// EmitParams contains the parameters for emitting an event.
type EmitParams struct {
	// ThreadID is the aggregate ID.
	ThreadID string
	// ApplicationID is the owning application (optional).
	ApplicationID string
	// EventType is the type of event (e.g., "thread.saved").
	EventType string
	// Payload is the event payload that will be JSON-serialized.
	Payload interface{}
}

// Emitter creates thread events enriched with service and request context.
type Emitter struct {
	config EmitterConfig
}

// NewEmitter creates a new Emitter with the given service configuration.
func NewEmitter(config EmitterConfig) *Emitter {
	if config.ServiceName == "" {
		config.ServiceName = defaultServiceName
	}
	return &Emitter{config: config}
}

// Emit creates a ThreadEvent from the given parameters. Request and trace
// identifiers carried by ctx are copied into the event metadata.
func (e *Emitter) Emit(ctx context.Context, params EmitParams) (*domain.ThreadEvent, error) {
	if params.ThreadID == "" {
		return nil, fmt.Errorf("thread_id is required")
	}
	if params.EventType == "" {
		return nil, fmt.Errorf("event_type is required")
	}

	event, err := domain.NewThreadEvent(params.EventType, params.ThreadID, params.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	metadata := map[string]string{MetadataSource: e.config.ServiceName}
	if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
		metadata[MetadataRequestID] = requestID
	}
	if traceID, _ := observability.TraceSpanFromContext(ctx); traceID != "" {
		metadata[MetadataTraceID] = traceID
	}

	return event.WithApplication(params.ApplicationID).WithMetadata(metadata), nil
}

// EmitThreadSaved is a convenience method for emitting thread.saved events.
func (e *Emitter) EmitThreadSaved(ctx context.Context, thread *domain.CommentThread) (*domain.ThreadEvent, error) {
	if thread == nil {
		return nil, fmt.Errorf("thread is required")
	}
	return e.Emit(ctx, EmitParams{
		ThreadID:      thread.ID,
		ApplicationID: thread.ApplicationID,
		EventType:     domain.EventTypeThreadSaved,
		Payload: domain.ThreadSavedPayload{
			ThreadID:       thread.ID,
			ApplicationID:  thread.ApplicationID,
			AuthorUsername: thread.AuthorUsername,
			IsPrivate:      thread.IsPrivate,
		},
	})
}

// EmitSubscribersAdded is a convenience method for emitting
// thread.subscribers_added events.
func (e *Emitter) EmitSubscribersAdded(ctx context.Context, threadID string, subscriberIDs []string) (*domain.ThreadEvent, error) {
	return e.Emit(ctx, EmitParams{
		ThreadID:  threadID,
		EventType: domain.EventTypeThreadSubscribersAdded,
		Payload: domain.SubscribersAddedPayload{
			ThreadID:      threadID,
			SubscriberIDs: domain.UniqueSubscribers(subscriberIDs),
		},
	})
}
