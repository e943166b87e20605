package chat

import (
	"context"
	"encoding/json"
	"sync"
)

const (
	eventPresenceEnter = "presence.enter"
	eventPresenceLeave = "presence.leave"
)

// PresenceMember is one client currently present in the room.
type PresenceMember struct {
	ClientID string `json:"clientId"`
	Data     string `json:"data,omitempty"`
}

// Presence tracks who is in the room. The member set is rebuilt from
// enter/leave events; a discontinuity means it may be stale and consumers
// should re-enter.
type Presence struct {
	featureClient
	clientID string

	mu      sync.RWMutex
	members map[string]PresenceMember
}

func newPresence(channel Channel, clientID string) *Presence {
	p := &Presence{
		featureClient: newFeatureClient(FeaturePresence, channel),
		clientID:      clientID,
		members:       make(map[string]PresenceMember),
	}
	p.channel.Subscribe(p.handleEvent)
	return p
}

func (p *Presence) handleEvent(cm ChannelMessage) {
	var member PresenceMember
	if err := json.Unmarshal(cm.Data, &member); err != nil || member.ClientID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch cm.Event {
	case eventPresenceEnter:
		p.members[member.ClientID] = member
	case eventPresenceLeave:
		delete(p.members, member.ClientID)
	}
}

// Enter announces this client's presence, optionally with profile data.
func (p *Presence) Enter(ctx context.Context, data string) error {
	payload, err := json.Marshal(PresenceMember{ClientID: p.clientID, Data: data})
	if err != nil {
		return err
	}
	return p.channel.Publish(ctx, eventPresenceEnter, payload)
}

// Leave withdraws this client's presence.
func (p *Presence) Leave(ctx context.Context) error {
	payload, err := json.Marshal(PresenceMember{ClientID: p.clientID})
	if err != nil {
		return err
	}
	return p.channel.Publish(ctx, eventPresenceLeave, payload)
}

// Get returns a snapshot of the currently known members.
func (p *Presence) Get() []PresenceMember {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PresenceMember, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m)
	}
	return out
}
