package chat

import (
	"context"
	"encoding/json"
	"time"
)

const eventChatMessage = "chat.message"

// Message is a single chat message as carried on the messages channel.
type Message struct {
	ClientID string    `json:"clientId"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

// Messages is the room's message feature. Always enabled.
type Messages struct {
	featureClient
	clientID string
}

func newMessages(channel Channel, clientID string) *Messages {
	return &Messages{featureClient: newFeatureClient(FeatureMessages, channel), clientID: clientID}
}

// Send publishes a chat message on the room's messages channel.
func (m *Messages) Send(ctx context.Context, text string) error {
	data, err := json.Marshal(Message{ClientID: m.clientID, Text: text, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return m.channel.Publish(ctx, eventChatMessage, data)
}

// Subscribe registers a listener for incoming chat messages. Malformed
// payloads are dropped.
func (m *Messages) Subscribe(listener func(Message)) Subscription {
	return m.channel.Subscribe(func(cm ChannelMessage) {
		if cm.Event != eventChatMessage {
			return
		}
		var msg Message
		if err := json.Unmarshal(cm.Data, &msg); err != nil {
			return
		}
		listener(msg)
	})
}
