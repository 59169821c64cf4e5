package domain

// PublishEnvelope is one delivery of an admitted event to one topic.
type PublishEnvelope struct {
	Topic     string
	Payload   []byte
	Signature string // originating event signature
}
