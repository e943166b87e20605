// Package hub is the server side of the demo deployment: named channels
// with subscriber sets and broadcast fan-out. It knows nothing about rooms;
// the chat layer's room-to-channel mapping happens client-side.
package hub

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

// Sender is a subscriber's outbound endpoint. TrySend must not block.
type Sender interface {
	TrySend(data []byte) error
}

type channel struct {
	name string
	mu   sync.RWMutex
	subs map[string]Sender
}

func (ch *channel) add(connID string, s Sender) int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.subs[connID] = s
	return len(ch.subs)
}

func (ch *channel) remove(connID string) int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.subs, connID)
	return len(ch.subs)
}

// broadcast fans data out to every subscriber except from. Slow consumers
// are dropped from the result, not retried.
func (ch *channel) broadcast(from string, data []byte) (sent int, dropped []string) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	for id, s := range ch.subs {
		if id == from {
			continue
		}
		if err := s.TrySend(data); err != nil {
			dropped = append(dropped, id)
			continue
		}
		sent++
	}
	return sent, dropped
}

// Hub owns the channel map. One per server process.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*channel
}

func New() *Hub {
	return &Hub{channels: make(map[string]*channel)}
}

func (h *Hub) get(name string) *channel {
	h.mu.RLock()
	ch, ok := h.channels[name]
	h.mu.RUnlock()
	if ok {
		return ch
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok = h.channels[name]; ok {
		return ch
	}
	ch = &channel{name: name, subs: make(map[string]Sender)}
	h.channels[name] = ch
	return ch
}

// Subscribe adds connID to the named channel and returns the new
// subscriber count.
func (h *Hub) Subscribe(name, connID string, s Sender) int {
	n := h.get(name).add(connID, s)
	log.Debug().Str("module", "hub").Str("channel", name).Str("conn", connID).Int("subs", n).Msg("subscribed")
	return n
}

// Unsubscribe removes connID from the named channel and returns the
// remaining subscriber count.
func (h *Hub) Unsubscribe(name, connID string) int {
	h.mu.RLock()
	ch, ok := h.channels[name]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	n := ch.remove(connID)
	log.Debug().Str("module", "hub").Str("channel", name).Str("conn", connID).Int("subs", n).Msg("unsubscribed")
	return n
}

// DropConn removes connID from every channel it is subscribed to and
// returns the names of the channels it was removed from.
func (h *Hub) DropConn(connID string) []string {
	h.mu.RLock()
	channels := make([]*channel, 0, len(h.channels))
	for _, ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	var affected []string
	for _, ch := range channels {
		ch.mu.Lock()
		if _, ok := ch.subs[connID]; ok {
			delete(ch.subs, connID)
			affected = append(affected, ch.name)
		}
		ch.mu.Unlock()
	}
	return affected
}

// Publish broadcasts data to the named channel's subscribers, excluding
// from. Returns the ids of subscribers dropped for backpressure.
func (h *Hub) Publish(name, from string, data []byte) (int, []string) {
	h.mu.RLock()
	ch, ok := h.channels[name]
	h.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	sent, dropped := ch.broadcast(from, data)
	log.Debug().Str("module", "hub").Str("channel", name).Int("sent_to", sent).Int("dropped", len(dropped)).Msg("broadcast")
	return sent, dropped
}

// Occupancy returns the current subscriber count of the named channel.
func (h *Hub) Occupancy(name string) int {
	h.mu.RLock()
	ch, ok := h.channels[name]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.subs)
}
