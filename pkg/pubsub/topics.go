// Package pubsub provides topic names and event type definitions for the
// clinic's cache-coordination events.
//
// Topic Naming Convention:
//   - snapshot-changed: entity snapshot mutation signals
//   - cache-swept: periodic sweep completion reports
//
// Design Notes:
//   - Topics are defined as constants to avoid typos and enable compile-time checks
//   - Version field in events enables schema evolution without breaking consumers
//   - No direct Encore dependencies to keep pkg/ reusable across services
package pubsub

// Topic name constants for Encore Pub/Sub integration.
// These should be used when defining pubsub.Topic[T] in service code.
const (
	// TopicSnapshotChanged is published when an entity snapshot changes.
	// Event type: SnapshotChangedEvent
	// Publishers: invalidation service
	// Subscribers: dashboard, appointments
	TopicSnapshotChanged = "snapshot-changed"

	// TopicCacheSwept is published after a periodic cache sweep.
	// Event type: CacheSweptEvent
	// Publishers: dashboard, appointments
	// Subscribers: monitoring
	TopicCacheSwept = "cache-swept"
)

// AllTopics returns all defined topic names.
// Useful for validation, testing, and administrative tools.
func AllTopics() []string {
	return []string{
		TopicSnapshotChanged,
		TopicCacheSwept,
	}
}

// IsValidTopic checks if the given topic name is recognized.
func IsValidTopic(topic string) bool {
	for _, t := range AllTopics() {
		if t == topic {
			return true
		}
	}
	return false
}

// TopicMetadata provides descriptive information about topics.
type TopicMetadata struct {
	Name        string
	Description string
	EventType   string
}

// GetTopicMetadata returns metadata for all topics.
// Useful for documentation generation and admin UIs.
func GetTopicMetadata() []TopicMetadata {
	return []TopicMetadata{
		{
			Name:        TopicSnapshotChanged,
			Description: "Entity snapshot mutation signals driving cache invalidation",
			EventType:   "SnapshotChangedEvent",
		},
		{
			Name:        TopicCacheSwept,
			Description: "Periodic sweep completion reports for cache health tracking",
			EventType:   "CacheSweptEvent",
		},
	}
}
