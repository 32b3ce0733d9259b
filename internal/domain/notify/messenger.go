package notify

import "context"

// Message is one outward chat notification. Delivery is best-effort:
// a failed send is logged by the caller and never retried here, and
// never rolls back the state transition that produced it.
type Message struct {
	ChatID   int64
	Text     string
	PhotoRef string
}

// Messenger delivers notifications over the chat transport.
type Messenger interface {
	Deliver(ctx context.Context, msg Message) error
}
