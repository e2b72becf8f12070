package ports

// EventSource delivers inbound platform events to the sentinel service
type EventSource interface {
	// Start begins delivering events
	Start() error

	// Stop stops delivering events and releases the connection
	Stop() error
}
