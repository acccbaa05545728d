package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_publisher.go -package=mocks . Publisher,Hub

// Hub is the registry of open real-time connections.
type Hub interface {
	Register(client *Client)
	// Unregister closes client and removes it unless a newer client has taken its ID.
	Unregister(client *Client)
	// Broadcast pushes msg to every open client. Closed clients are dropped from the
	// registry; clients with a full buffer miss the message.
	Broadcast(msg *Message)
	ClientCount() int
}

// Publisher emits domain events to real-time subscribers. Publishing is best-effort
// and never fails the caller.
type Publisher interface {
	Publish(eventType EventType, data any)
}
