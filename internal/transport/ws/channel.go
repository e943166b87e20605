package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/lanternchat/lantern/internal/chat"
	"github.com/lanternchat/lantern/internal/wire"
)

// Channel is one named channel over the shared client connection. It
// implements chat.Channel.
type Channel struct {
	client *Client
	name   string

	mu        sync.Mutex
	state     chat.ChannelState
	reason    *chat.ErrorInfo
	lifecycle map[int]func(chat.ChannelStateChange)
	updates   map[int]func(chat.ChannelStateChange)
	messages  map[int]func(chat.ChannelMessage)
	nextID    int
}

func newChannel(client *Client, name string) *Channel {
	return &Channel{
		client:    client,
		name:      name,
		state:     chat.ChannelStateInitialized,
		lifecycle: make(map[int]func(chat.ChannelStateChange)),
		updates:   make(map[int]func(chat.ChannelStateChange)),
		messages:  make(map[int]func(chat.ChannelMessage)),
	}
}

func (ch *Channel) Name() string { return ch.name }

func (ch *Channel) State() chat.ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *Channel) ErrorReason() *chat.ErrorInfo {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.reason
}

// setState transitions the channel and notifies listeners. An attached to
// attached transition is delivered to update listeners instead of
// lifecycle listeners.
func (ch *Channel) setState(state chat.ChannelState, resumed bool, reason *chat.ErrorInfo) {
	ch.mu.Lock()
	previous := ch.state
	ch.state = state
	ch.reason = reason
	change := chat.ChannelStateChange{Previous: previous, Current: state, Resumed: resumed, Reason: reason}
	var listeners []func(chat.ChannelStateChange)
	if previous == chat.ChannelStateAttached && state == chat.ChannelStateAttached {
		for _, l := range ch.updates {
			listeners = append(listeners, l)
		}
	} else {
		for _, l := range ch.lifecycle {
			listeners = append(listeners, l)
		}
	}
	ch.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}

func (ch *Channel) suspend(reason *chat.ErrorInfo) {
	ch.mu.Lock()
	attached := ch.state == chat.ChannelStateAttached || ch.state == chat.ChannelStateAttaching
	ch.mu.Unlock()
	if attached {
		ch.setState(chat.ChannelStateSuspended, false, reason)
	}
}

// Attach subscribes the channel on the server and waits for the ack.
func (ch *Channel) Attach(ctx context.Context) error {
	ch.mu.Lock()
	if ch.state == chat.ChannelStateAttached {
		ch.mu.Unlock()
		return nil
	}
	ch.mu.Unlock()

	ch.setState(chat.ChannelStateAttaching, false, nil)
	ack, err := ch.client.request(ctx, wire.Frame{Action: wire.ActionAttach, Channel: ch.name})
	if err != nil {
		reason := chat.WrapError(chat.ErrCodeInternal, "channel attach failed", err)
		if ack.Action == wire.ActionError {
			ch.setState(chat.ChannelStateFailed, false, reason)
		} else {
			ch.setState(chat.ChannelStateSuspended, false, reason)
		}
		return reason
	}
	ch.setState(chat.ChannelStateAttached, ack.Resumed, nil)
	return nil
}

// Detach unsubscribes the channel. When the transport is disconnected the
// server has already dropped the subscription, so the channel just settles
// into detached locally.
func (ch *Channel) Detach(ctx context.Context) error {
	ch.mu.Lock()
	if ch.state == chat.ChannelStateDetached || ch.state == chat.ChannelStateInitialized {
		ch.mu.Unlock()
		return nil
	}
	ch.mu.Unlock()

	ch.setState(chat.ChannelStateDetaching, false, nil)
	_, err := ch.client.request(ctx, wire.Frame{Action: wire.ActionDetach, Channel: ch.name})
	if err != nil && !errors.Is(err, ErrNotConnected) && !errors.Is(err, ErrClosed) {
		reason := chat.WrapError(chat.ErrCodeInternal, "channel detach failed", err)
		ch.setState(chat.ChannelStateFailed, false, reason)
		return reason
	}
	ch.setState(chat.ChannelStateDetached, false, nil)
	return nil
}

// Publish sends an event on the channel and waits for the server ack.
func (ch *Channel) Publish(ctx context.Context, event string, data []byte) error {
	_, err := ch.client.request(ctx, wire.Frame{
		Action:  wire.ActionPublish,
		Channel: ch.name,
		Event:   event,
		Data:    data,
	})
	return err
}

type channelSubscription struct {
	off func()
}

func (s *channelSubscription) Off() { s.off() }

func (ch *Channel) On(listener func(chat.ChannelStateChange)) chat.Subscription {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	id := ch.nextID
	ch.nextID++
	ch.lifecycle[id] = listener
	return &channelSubscription{off: func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		delete(ch.lifecycle, id)
	}}
}

func (ch *Channel) OnUpdate(listener func(chat.ChannelStateChange)) chat.Subscription {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	id := ch.nextID
	ch.nextID++
	ch.updates[id] = listener
	return &channelSubscription{off: func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		delete(ch.updates, id)
	}}
}

func (ch *Channel) Subscribe(listener func(chat.ChannelMessage)) chat.Subscription {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	id := ch.nextID
	ch.nextID++
	ch.messages[id] = listener
	return &channelSubscription{off: func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		delete(ch.messages, id)
	}}
}

func (ch *Channel) dispatchMessage(msg chat.ChannelMessage) {
	ch.mu.Lock()
	listeners := make([]func(chat.ChannelMessage), 0, len(ch.messages))
	for _, l := range ch.messages {
		listeners = append(listeners, l)
	}
	ch.mu.Unlock()
	for _, l := range listeners {
		l(msg)
	}
}
