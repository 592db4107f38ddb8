package miniac

// Message is an immutable unit of data published on a topic. The payload is
// an opaque byte slice; gateways and data items agree out of band on how to
// interpret it (text, JSON, a gateway-specific binary frame).
type Message struct {
	topic   string
	payload []byte
}

// NewMessage constructs a message for topic with the given payload. The
// payload slice is retained, not copied; callers must not mutate it afterward.
func NewMessage(topic string, payload []byte) *Message {
	return &Message{topic: topic, payload: payload}
}

// NewTextMessage constructs a message whose payload is the UTF-8 encoding of text.
func NewTextMessage(topic, text string) *Message {
	return &Message{topic: topic, payload: []byte(text)}
}

// Topic returns the message's topic name.
func (m *Message) Topic() string { return m.topic }

// Payload returns the message's raw payload.
func (m *Message) Payload() []byte { return m.payload }

// Text returns the payload decoded as UTF-8 text.
func (m *Message) Text() string { return string(m.payload) }

// MessageListener receives messages delivered through a Subscription. It is
// invoked only on the dispatch thread; OnMessage must not block.
type MessageListener interface {
	OnMessage(msg *Message)
}

// MessageListenerFunc adapts a function to a MessageListener.
type MessageListenerFunc func(msg *Message)

// OnMessage implements MessageListener.
func (f MessageListenerFunc) OnMessage(msg *Message) { f(msg) }

// TopicFilterListener is notified when a topic filter transitions between
// having zero and having at least one active subscriber for a gateway.
type TopicFilterListener interface {
	OnTopicFilterAdded(filter string)
	OnTopicFilterRemoved(filter string)
}
