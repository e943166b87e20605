package chat

import (
	"encoding/json"
	"sync"
)

const eventOccupancy = "occupancy"

// OccupancyEvent carries the server-reported subscriber counts for the
// room's channels.
type OccupancyEvent struct {
	Connections int `json:"connections"`
	Presence    int `json:"presenceMembers"`
}

// Occupancy surfaces the room's occupancy metrics as pushed by the server.
type Occupancy struct {
	featureClient

	mu   sync.RWMutex
	last OccupancyEvent
}

func newOccupancy(channel Channel) *Occupancy {
	o := &Occupancy{featureClient: newFeatureClient(FeatureOccupancy, channel)}
	o.channel.Subscribe(func(cm ChannelMessage) {
		if cm.Event != eventOccupancy {
			return
		}
		var ev OccupancyEvent
		if err := json.Unmarshal(cm.Data, &ev); err != nil {
			return
		}
		o.mu.Lock()
		o.last = ev
		o.mu.Unlock()
	})
	return o
}

// Current returns the most recent occupancy metrics seen on the channel.
func (o *Occupancy) Current() OccupancyEvent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// Subscribe registers a listener for occupancy updates.
func (o *Occupancy) Subscribe(listener func(OccupancyEvent)) Subscription {
	return o.channel.Subscribe(func(cm ChannelMessage) {
		if cm.Event != eventOccupancy {
			return
		}
		var ev OccupancyEvent
		if err := json.Unmarshal(cm.Data, &ev); err != nil {
			return
		}
		listener(ev)
	})
}
