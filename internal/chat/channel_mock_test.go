package chat

import (
	"context"
	"sync"
)

// mockChannel is a scriptable Channel for lifecycle tests. Attach/detach
// outcomes are driven by the attachFunc/detachFunc hooks, keyed by call
// number (1-based). State-change events are emitted manually by tests.
type mockChannel struct {
	name string

	mu        sync.Mutex
	state     ChannelState
	reason    *ErrorInfo
	lifecycle map[int]func(ChannelStateChange)
	updates   map[int]func(ChannelStateChange)
	messages  map[int]func(ChannelMessage)
	nextID    int

	attachCalls int
	detachCalls int
	attachFunc  func(call int) error
	detachFunc  func(call int) error
	// stateAfterFailedAttach is what State() reports after attachFunc
	// returns an error. Defaults to detached.
	stateAfterFailedAttach ChannelState

	published []ChannelMessage
}

func newMockChannel(name string) *mockChannel {
	return &mockChannel{
		name:                   name,
		state:                  ChannelStateInitialized,
		lifecycle:              make(map[int]func(ChannelStateChange)),
		updates:                make(map[int]func(ChannelStateChange)),
		messages:               make(map[int]func(ChannelMessage)),
		stateAfterFailedAttach: ChannelStateDetached,
	}
}

func (c *mockChannel) Name() string { return c.name }

func (c *mockChannel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *mockChannel) setState(s ChannelState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *mockChannel) ErrorReason() *ErrorInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *mockChannel) Attach(ctx context.Context) error {
	c.mu.Lock()
	c.attachCalls++
	call := c.attachCalls
	hook := c.attachFunc
	c.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			c.mu.Lock()
			c.state = c.stateAfterFailedAttach
			if ei, ok := err.(*ErrorInfo); ok {
				c.reason = ei
			}
			c.mu.Unlock()
			return err
		}
	}
	c.setState(ChannelStateAttached)
	return nil
}

func (c *mockChannel) Detach(ctx context.Context) error {
	c.mu.Lock()
	c.detachCalls++
	call := c.detachCalls
	hook := c.detachFunc
	c.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return err
		}
	}
	c.setState(ChannelStateDetached)
	return nil
}

func (c *mockChannel) attachCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachCalls
}

func (c *mockChannel) detachCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detachCalls
}

// emit delivers a lifecycle event to the channel's listeners, updating the
// current state to the event's Current value first.
func (c *mockChannel) emit(change ChannelStateChange) {
	c.mu.Lock()
	c.state = change.Current
	if change.Reason != nil {
		c.reason = change.Reason
	}
	listeners := make([]func(ChannelStateChange), 0, len(c.lifecycle))
	for _, l := range c.lifecycle {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l(change)
	}
}

// emitUpdate delivers an update event without touching state.
func (c *mockChannel) emitUpdate(change ChannelStateChange) {
	c.mu.Lock()
	listeners := make([]func(ChannelStateChange), 0, len(c.updates))
	for _, l := range c.updates {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l(change)
	}
}

type mockSubscription struct{ off func() }

func (s *mockSubscription) Off() { s.off() }

func (c *mockChannel) On(listener func(ChannelStateChange)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.lifecycle[id] = listener
	return &mockSubscription{off: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.lifecycle, id)
	}}
}

func (c *mockChannel) OnUpdate(listener func(ChannelStateChange)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.updates[id] = listener
	return &mockSubscription{off: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.updates, id)
	}}
}

func (c *mockChannel) Publish(ctx context.Context, event string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, ChannelMessage{Event: event, Data: data})
	return nil
}

func (c *mockChannel) Subscribe(listener func(ChannelMessage)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.messages[id] = listener
	return &mockSubscription{off: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.messages, id)
	}}
}

func (c *mockChannel) publishedMessages() []ChannelMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChannelMessage, len(c.published))
	copy(out, c.published)
	return out
}

// deliver pushes a message to channel subscribers, for feature tests.
func (c *mockChannel) deliver(msg ChannelMessage) {
	c.mu.Lock()
	listeners := make([]func(ChannelMessage), 0, len(c.messages))
	for _, l := range c.messages {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l(msg)
	}
}

// mockClient implements ChannelClient over mockChannels for registry and
// room tests.
type mockClient struct {
	mu       sync.Mutex
	channels map[string]*mockChannel
	released []string
}

func newMockClient() *mockClient {
	return &mockClient{channels: make(map[string]*mockChannel)}
}

func (m *mockClient) Channel(name string) Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[name]; ok {
		return ch
	}
	ch := newMockChannel(name)
	m.channels[name] = ch
	return ch
}

func (m *mockClient) ReleaseChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
	m.released = append(m.released, name)
}

func (m *mockClient) releasedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.released))
	copy(out, m.released)
	return out
}
