package rpcclient

import "time"

// Config governs the serialized RPC client's queueing and handshake
// behaviour.
type Config struct {
	// QueueCapacity bounds the number of in-flight calls the client accepts
	// before Call blocks. The controller drains one at a time.
	QueueCapacity int

	// HandshakeTimeout is carried in the configuration, but Client does not
	// apply it: handshake writes are bounded only by the context passed to
	// Call.
	HandshakeTimeout time.Duration
}

// DefaultConfig matches the capacity and timeout named in the serialized
// RPC client's design.
var DefaultConfig = &Config{
	QueueCapacity:    10,
	HandshakeTimeout: 30 * time.Second,
}
