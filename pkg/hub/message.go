// Package hub fans dashboard events out to browser WebSocket clients. One
// goroutine owns the client set; everything else talks to it over channels.
package hub

// Kind is the WebSocket frame kind a message is written as.
type Kind int

const (
	KindText Kind = iota
	KindBinary
)

// Message is one queued event. Topic is empty for messages every client
// receives.
type Message struct {
	Kind  Kind
	Topic string
	Data  []byte
}

// Text returns a text message for every client.
func Text(data []byte) Message {
	return Message{Kind: KindText, Data: data}
}

// Binary returns a binary message on topic.
func Binary(topic string, data []byte) Message {
	return Message{Kind: KindBinary, Topic: topic, Data: data}
}
