package chat

import "context"

// ChannelState mirrors the lifecycle of a single realtime channel as
// reported by the transport layer.
type ChannelState string

const (
	ChannelStateInitialized ChannelState = "initialized"
	ChannelStateAttaching   ChannelState = "attaching"
	ChannelStateAttached    ChannelState = "attached"
	ChannelStateDetaching   ChannelState = "detaching"
	ChannelStateDetached    ChannelState = "detached"
	ChannelStateSuspended   ChannelState = "suspended"
	ChannelStateFailed      ChannelState = "failed"
)

// ChannelStateChange describes one transition of a channel. Resumed reports
// whether the transport preserved continuity across the transition; a false
// value on an attached event after the first attach means events may have
// been missed.
type ChannelStateChange struct {
	Previous ChannelState
	Current  ChannelState
	Resumed  bool
	Reason   *ErrorInfo
}

// ChannelMessage is a single event delivered on a channel.
type ChannelMessage struct {
	Event string
	Data  []byte
}

// Subscription is a handle to a registered listener. Off deregisters
// exactly the registration that produced it; registering the same function
// twice yields two independent subscriptions.
type Subscription interface {
	Off()
}

// Channel is the transport-level channel abstraction the room layer is
// built on. Implementations live in the transport packages; tests provide
// their own mocks.
type Channel interface {
	Name() string
	State() ChannelState
	ErrorReason() *ErrorInfo

	Attach(ctx context.Context) error
	Detach(ctx context.Context) error

	// On registers a listener for lifecycle state changes.
	On(listener func(ChannelStateChange)) Subscription
	// OnUpdate registers a listener for update events: notifications
	// emitted while the channel stays attached, typically a resume that
	// did or did not preserve continuity.
	OnUpdate(listener func(ChannelStateChange)) Subscription

	Publish(ctx context.Context, event string, data []byte) error
	Subscribe(listener func(ChannelMessage)) Subscription
}

// ChannelClient hands out named channels and takes them back once a room
// is done with them. Implemented by the websocket transport client.
type ChannelClient interface {
	Channel(name string) Channel
	ReleaseChannel(name string)
}
