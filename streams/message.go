package streams

import "github.com/samber/lo"

// Message is the opaque unit of delivery: a payload plus string metadata.
// Messages are immutable once constructed; accessors return copies of the
// metadata so holders cannot mutate each other's view.
type Message struct {
	payload  any
	metadata map[string]string
}

// MessageOption configures a message at construction time.
type MessageOption func(*Message)

// WithMetadata merges the given metadata into the message. Later options
// win on key collisions.
func WithMetadata(metadata map[string]string) MessageOption {
	return func(m *Message) {
		if len(metadata) == 0 {
			return
		}
		m.metadata = lo.Assign(m.metadata, metadata)
	}
}

// WithMeta sets a single metadata entry.
func WithMeta(key, value string) MessageOption {
	return func(m *Message) {
		m.metadata = lo.Assign(m.metadata, map[string]string{key: value})
	}
}

// NewMessage builds a message around an opaque payload.
func NewMessage(payload any, opts ...MessageOption) *Message {
	m := &Message{payload: payload}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Payload returns the payload as supplied at construction.
func (m *Message) Payload() any { return m.payload }

// Metadata returns a copy of the message metadata, nil when empty.
func (m *Message) Metadata() map[string]string {
	if len(m.metadata) == 0 {
		return nil
	}
	return lo.Assign(m.metadata)
}

// Meta returns one metadata value, or the empty string when absent.
func (m *Message) Meta(key string) string { return m.metadata[key] }
