package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTransientDetachTimeout is the grace window within which a
	// detached channel may recover without triggering room recovery.
	DefaultTransientDetachTimeout = 5 * time.Second
	// DefaultRetryInterval paces release detach retries and related
	// retry loops.
	DefaultRetryInterval = 250 * time.Millisecond
)

// pendingGet is a Get call parked behind an in-flight release of the same
// room name. It resolves once the release completes, or aborts if another
// release arrives first.
type pendingGet struct {
	options RoomOptions
	ready   chan struct{}
	abort   chan struct{}
	room    *Room
	err     error
}

// Rooms is the registry of named room instances: one live room per name,
// with get/release reference semantics.
type Rooms struct {
	client           ChannelClient
	clientID         string
	transientTimeout time.Duration
	retryInterval    time.Duration

	mu        sync.Mutex
	rooms     map[string]*Room
	releasing map[string]chan struct{}
	pending   map[string]*pendingGet
}

// NewRooms builds a registry over the given channel client. Zero durations
// fall back to the package defaults.
func NewRooms(client ChannelClient, clientID string, transientTimeout, retryInterval time.Duration) *Rooms {
	if transientTimeout <= 0 {
		transientTimeout = DefaultTransientDetachTimeout
	}
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &Rooms{
		client:           client,
		clientID:         clientID,
		transientTimeout: transientTimeout,
		retryInterval:    retryInterval,
		rooms:            make(map[string]*Room),
		releasing:        make(map[string]chan struct{}),
		pending:          make(map[string]*pendingGet),
	}
}

// Get returns the room registered under name, creating it if needed. A get
// with options differing from the existing room's fails. If a release of
// the same name is in flight the get is chained behind it; a further
// release arriving in the meantime aborts the chained get.
func (rs *Rooms) Get(ctx context.Context, name string, options RoomOptions) (*Room, error) {
	rs.mu.Lock()
	if room, ok := rs.rooms[name]; ok {
		defer rs.mu.Unlock()
		if room.Options() != options {
			return nil, NewErrorInfo(ErrCodeRoomExistsWithDifferentOptions,
				"room already exists with different options")
		}
		return room, nil
	}
	if p, ok := rs.pending[name]; ok {
		rs.mu.Unlock()
		if p.options != options {
			return nil, NewErrorInfo(ErrCodeRoomExistsWithDifferentOptions,
				"room requested with different options is pending")
		}
		select {
		case <-p.ready:
			return p.room, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	rel, inFlight := rs.releasing[name]
	if !inFlight {
		room := rs.newRoomLocked(name, options)
		rs.mu.Unlock()
		return room, nil
	}

	p := &pendingGet{
		options: options,
		ready:   make(chan struct{}),
		abort:   make(chan struct{}),
	}
	rs.pending[name] = p
	rs.mu.Unlock()

	log.Debug().Str("module", "chat.rooms").Str("room", name).Msg("get chained behind in-flight release")

	select {
	case <-p.abort:
		p.err = NewErrorInfo(ErrCodeRoomReleasedBeforeOperationCompleted,
			"room released before get operation could complete")
		close(p.ready)
		return nil, p.err
	case <-rel:
		rs.mu.Lock()
		select {
		case <-p.abort:
			rs.mu.Unlock()
			p.err = NewErrorInfo(ErrCodeRoomReleasedBeforeOperationCompleted,
				"room released before get operation could complete")
			close(p.ready)
			return nil, p.err
		default:
		}
		delete(rs.pending, name)
		room := rs.newRoomLocked(name, options)
		p.room = room
		close(p.ready)
		rs.mu.Unlock()
		return room, nil
	case <-ctx.Done():
		rs.mu.Lock()
		if rs.pending[name] == p {
			delete(rs.pending, name)
		}
		rs.mu.Unlock()
		p.err = ctx.Err()
		close(p.ready)
		return nil, ctx.Err()
	}
}

func (rs *Rooms) newRoomLocked(name string, options RoomOptions) *Room {
	room := newRoom(rs.client, rs.clientID, name, options, rs.transientTimeout, rs.retryInterval)
	rs.rooms[name] = room
	log.Info().Str("module", "chat.rooms").Str("room", name).Msg("room created")
	return room
}

// Release tears down the room registered under name. A pending get for the
// name is aborted; a release already in flight is awaited rather than
// duplicated. Releasing an unknown name is a no-op.
func (rs *Rooms) Release(ctx context.Context, name string) error {
	rs.mu.Lock()
	if p, ok := rs.pending[name]; ok {
		delete(rs.pending, name)
		close(p.abort)
	}
	room, ok := rs.rooms[name]
	if !ok {
		if rel, inFlight := rs.releasing[name]; inFlight {
			rs.mu.Unlock()
			select {
			case <-rel:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		rs.mu.Unlock()
		return nil
	}
	delete(rs.rooms, name)
	done := make(chan struct{})
	rs.releasing[name] = done
	rs.mu.Unlock()

	err := room.Release(ctx)

	rs.mu.Lock()
	delete(rs.releasing, name)
	rs.mu.Unlock()
	close(done)
	if err != nil {
		return err
	}
	log.Info().Str("module", "chat.rooms").Str("room", name).Msg("room released")
	return nil
}

// Dispose releases every currently-tracked room concurrently. Safe to call
// with zero rooms and safe to call more than once.
func (rs *Rooms) Dispose(ctx context.Context) error {
	rs.mu.Lock()
	names := make([]string, 0, len(rs.rooms))
	for name := range rs.rooms {
		names = append(names, name)
	}
	rs.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return rs.Release(ctx, name)
		})
	}
	return g.Wait()
}
