// Package pubsub provides a small generic publish/subscribe broker used to
// fan out the daemon's diagnostic streams.
package pubsub

import "time"

// EventType classifies a published event.
type EventType string

// EmittedEvent marks a freshly produced payload, such as a log entry.
const EmittedEvent EventType = "emitted"

// Event carries a typed payload with its publication time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}
