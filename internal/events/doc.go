// Package events publishes comment thread change notifications.
//
// # Components
//
//   - Emitter: builds domain.ThreadEvent values enriched with service and request context
//   - KafkaPublisher: writes events to a Kafka topic, keyed by thread id
//   - NopPublisher: discards events when Kafka is disabled
//
// # Event Types
//
//   - thread.saved: a thread was created or replaced
//   - thread.subscribers_added: subscriber ids were added to a thread
//
// # Usage
//
//	emitter := events.NewEmitter(events.EmitterConfig{ServiceName: "comment-thread-store"})
//	event, err := emitter.EmitThreadSaved(ctx, thread)
//	if err == nil {
//	    err = publisher.Publish(ctx, event)
//	}
package events
