package chat

import (
	"context"
	"encoding/json"
)

const (
	eventTypingStart = "typing.start"
	eventTypingStop  = "typing.stop"
)

// TypingEvent reports a client starting or stopping typing.
type TypingEvent struct {
	ClientID string `json:"clientId"`
	Typing   bool   `json:"typing"`
}

// Typing is the room's typing-indicator feature.
type Typing struct {
	featureClient
	clientID string
}

func newTyping(channel Channel, clientID string) *Typing {
	return &Typing{featureClient: newFeatureClient(FeatureTyping, channel), clientID: clientID}
}

// Start signals that this client began typing.
func (t *Typing) Start(ctx context.Context) error {
	return t.publish(ctx, eventTypingStart, true)
}

// Stop signals that this client stopped typing.
func (t *Typing) Stop(ctx context.Context) error {
	return t.publish(ctx, eventTypingStop, false)
}

func (t *Typing) publish(ctx context.Context, event string, typing bool) error {
	data, err := json.Marshal(TypingEvent{ClientID: t.clientID, Typing: typing})
	if err != nil {
		return err
	}
	return t.channel.Publish(ctx, event, data)
}

// Subscribe registers a listener for typing events from other clients.
func (t *Typing) Subscribe(listener func(TypingEvent)) Subscription {
	return t.channel.Subscribe(func(cm ChannelMessage) {
		if cm.Event != eventTypingStart && cm.Event != eventTypingStop {
			return
		}
		var ev TypingEvent
		if err := json.Unmarshal(cm.Data, &ev); err != nil {
			return
		}
		listener(ev)
	})
}
