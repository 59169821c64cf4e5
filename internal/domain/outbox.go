package domain

// OutboxEntry is one envelope recorded in the Postgres outbox.
// Corresponds to event_outbox table in PostgreSQL.
type OutboxEntry struct {
	EnvelopeID  string // PRIMARY KEY, hash of (signature, topic)
	Signature   string // originating event signature
	Topic       string // fan-out topic
	Payload     []byte // JSON document
	CreatedAt   int64  // Unix timestamp in milliseconds
	DeliveredAt *int64 // set by the relay once forwarded (nullable)
}
