package chat

import (
	"context"
	"encoding/json"
)

const eventRoomReaction = "reaction"

// Reaction is an ephemeral room-level reaction (not tied to a message).
type Reaction struct {
	ClientID string `json:"clientId"`
	Type     string `json:"type"`
}

// Reactions is the room's ephemeral reactions feature.
type Reactions struct {
	featureClient
	clientID string
}

func newReactions(channel Channel, clientID string) *Reactions {
	return &Reactions{featureClient: newFeatureClient(FeatureReactions, channel), clientID: clientID}
}

// Send publishes a reaction of the given type, e.g. "like".
func (r *Reactions) Send(ctx context.Context, reactionType string) error {
	if reactionType == "" {
		return NewErrorInfo(ErrCodeBadRequest, "reaction type must not be empty")
	}
	data, err := json.Marshal(Reaction{ClientID: r.clientID, Type: reactionType})
	if err != nil {
		return err
	}
	return r.channel.Publish(ctx, eventRoomReaction, data)
}

// Subscribe registers a listener for incoming reactions.
func (r *Reactions) Subscribe(listener func(Reaction)) Subscription {
	return r.channel.Subscribe(func(cm ChannelMessage) {
		if cm.Event != eventRoomReaction {
			return
		}
		var reaction Reaction
		if err := json.Unmarshal(cm.Data, &reaction); err != nil {
			return
		}
		listener(reaction)
	})
}
