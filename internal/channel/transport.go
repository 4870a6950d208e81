package channel

import "context"

// Sender delivers and edits messages in the operator chat.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, msg OutboundMessage) error
}

// Acknowledger answers a button press with a short confirmation.
type Acknowledger interface {
	Acknowledge(ctx context.Context, callbackID string, ack Ack) error
}

// EventSource yields pending button presses after the persisted cursor.
// Commit persists the cursor so events at or below it are never delivered again.
type EventSource interface {
	Poll(ctx context.Context) (Batch, error)
	Commit(ctx context.Context, cursor int64) error
}

// Responder is what the reconciler needs to answer presses.
type Responder interface {
	Sender
	Acknowledger
}

// Transport is a full chat transport.
type Transport interface {
	Responder
	EventSource
}
