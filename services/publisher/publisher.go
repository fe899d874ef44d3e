package publisher

// Publisher mirrors accepted product records to an external feed for
// downstream consumers. The persistence layer remains the JSONL log; this
// is an optional side channel.
type Publisher interface {
	// PublishRecord publishes one serialized record for a site
	PublishRecord(site string, data []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
