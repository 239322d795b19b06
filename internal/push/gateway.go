package push

import "context"

// Message is the notification payload handed to the delivery gateway.
// Producing services own the content; this service only carries it.
type Message struct {
	Title string
	Body  string
	Data  map[string]interface{}
}

// Gateway delivers a message to a list of device tokens. Delivery is
// best-effort: per-token failures and retries are the gateway provider's
// responsibility, not this service's.
type Gateway interface {
	Send(ctx context.Context, tokens []string, msg Message) error
}
