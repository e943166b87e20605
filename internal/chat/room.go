package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RoomOptions selects the optional features of a room. Messages are always
// enabled. Options are compared for equality by the rooms registry, so the
// struct must stay comparable.
type RoomOptions struct {
	Presence  bool
	Typing    bool
	Reactions bool
	Occupancy bool
}

// Room is one logical chat room: a fixed set of feature clients, each on
// its own channel, coordinated by a lifecycle manager. Rooms are obtained
// from the Rooms registry, never constructed directly.
type Room struct {
	name     string
	options  RoomOptions
	client   ChannelClient
	status   *statusTracker
	manager  *lifecycleManager
	features []contributor

	messages  *Messages
	presence  *Presence
	typing    *Typing
	reactions *Reactions
	occupancy *Occupancy
}

func newRoom(client ChannelClient, clientID, name string, options RoomOptions, transientTimeout, retryInterval time.Duration) *Room {
	r := &Room{
		name:    name,
		options: options,
		client:  client,
		status:  newStatusTracker(),
	}

	r.messages = newMessages(client.Channel(r.channelName(FeatureMessages)), clientID)
	r.features = append(r.features, r.messages)
	if options.Presence {
		r.presence = newPresence(client.Channel(r.channelName(FeaturePresence)), clientID)
		r.features = append(r.features, r.presence)
	}
	if options.Typing {
		r.typing = newTyping(client.Channel(r.channelName(FeatureTyping)), clientID)
		r.features = append(r.features, r.typing)
	}
	if options.Reactions {
		r.reactions = newReactions(client.Channel(r.channelName(FeatureReactions)), clientID)
		r.features = append(r.features, r.reactions)
	}
	if options.Occupancy {
		r.occupancy = newOccupancy(client.Channel(r.channelName(FeatureOccupancy)))
		r.features = append(r.features, r.occupancy)
	}

	logger := log.With().Str("module", "chat.lifecycle").Str("room", name).Logger()
	r.manager = newLifecycleManager(r.status, r.features, logger, transientTimeout, retryInterval)
	return r
}

func (r *Room) channelName(f Feature) string {
	return fmt.Sprintf("%s::%s", r.name, f)
}

// Name returns the room's name.
func (r *Room) Name() string { return r.name }

// Options returns the options the room was created with.
func (r *Room) Options() RoomOptions { return r.options }

// Status returns the room's current lifecycle status.
func (r *Room) Status() RoomStatus { return r.status.Current() }

// Error returns the error associated with the current status, if any.
func (r *Room) Error() *ErrorInfo { return r.status.Error() }

// OnStatusChange registers a listener for room status changes.
func (r *Room) OnStatusChange(listener func(StatusChange)) Subscription {
	return r.status.OnChange(listener)
}

// OnStatusChangeOnce registers a listener for the next status change only.
func (r *Room) OnStatusChangeOnce(listener func(StatusChange)) Subscription {
	return r.status.OnChangeOnce(listener)
}

// Attach attaches every feature channel of the room.
func (r *Room) Attach(ctx context.Context) error {
	return r.manager.Attach(ctx)
}

// Detach detaches every feature channel of the room.
func (r *Room) Detach(ctx context.Context) error {
	return r.manager.Detach(ctx)
}

// Release tears the room down permanently and hands its channels back to
// the transport layer. Idempotent.
func (r *Room) Release(ctx context.Context) error {
	if err := r.manager.Release(ctx); err != nil {
		return err
	}
	for _, c := range r.features {
		r.client.ReleaseChannel(c.Channel().Name())
	}
	return nil
}

// Messages returns the always-enabled messages feature.
func (r *Room) Messages() *Messages { return r.messages }

// Presence returns the presence feature, or an error if the room was not
// created with presence enabled.
func (r *Room) Presence() (*Presence, error) {
	if r.presence == nil {
		return nil, NewErrorInfo(ErrCodeFeatureNotEnabled, "presence is not enabled for this room")
	}
	return r.presence, nil
}

// Typing returns the typing feature, or an error if not enabled.
func (r *Room) Typing() (*Typing, error) {
	if r.typing == nil {
		return nil, NewErrorInfo(ErrCodeFeatureNotEnabled, "typing is not enabled for this room")
	}
	return r.typing, nil
}

// Reactions returns the reactions feature, or an error if not enabled.
func (r *Room) Reactions() (*Reactions, error) {
	if r.reactions == nil {
		return nil, NewErrorInfo(ErrCodeFeatureNotEnabled, "reactions is not enabled for this room")
	}
	return r.reactions, nil
}

// Occupancy returns the occupancy feature, or an error if not enabled.
func (r *Room) Occupancy() (*Occupancy, error) {
	if r.occupancy == nil {
		return nil, NewErrorInfo(ErrCodeFeatureNotEnabled, "occupancy is not enabled for this room")
	}
	return r.occupancy, nil
}

type multiSubscription []Subscription

func (m multiSubscription) Off() {
	for _, s := range m {
		s.Off()
	}
}

// OnDiscontinuity registers a handler fired when any of the room's feature
// channels loses continuity.
func (r *Room) OnDiscontinuity(listener func(*ErrorInfo)) Subscription {
	subs := make(multiSubscription, 0, len(r.features))
	for _, c := range r.features {
		if fc, ok := c.(interface {
			OnDiscontinuity(func(*ErrorInfo)) Subscription
		}); ok {
			subs = append(subs, fc.OnDiscontinuity(listener))
		}
	}
	return subs
}
