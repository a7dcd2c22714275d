package pubsub

import "context"

const (
	// IngestStartedEvent is published when a file begins processing
	IngestStartedEvent EventType = "ingest_started"
	// IngestedEvent is published when a file is indexed successfully
	IngestedEvent EventType = "ingested"
	// IngestFailedEvent is published when a file fails to process
	IngestFailedEvent EventType = "ingest_failed"
	// IngestSkippedEvent is published when an unchanged file is skipped
	IngestSkippedEvent EventType = "ingest_skipped"
	// StoreClearedEvent is published when the index is cleared for a rebuild
	StoreClearedEvent EventType = "store_cleared"
)

// Subscriber yields a read-only event channel that closes with the context
type Subscriber[T any] interface {
	Subscribe(context.Context) <-chan Event[T]
}

type (
	// EventType identifies the kind of event
	EventType string

	// Event is a single occurrence in a resource's lifecycle
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Publisher delivers events to all subscribers
	Publisher[T any] interface {
		Publish(EventType, T)
	}
)
