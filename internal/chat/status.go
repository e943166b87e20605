package chat

import "sync"

// RoomStatus is the aggregate lifecycle state of a room.
type RoomStatus int

const (
	RoomStatusInitialized RoomStatus = iota
	RoomStatusAttaching
	RoomStatusAttached
	RoomStatusDetaching
	RoomStatusDetached
	RoomStatusSuspended
	RoomStatusFailed
	RoomStatusReleasing
	RoomStatusReleased
)

func (s RoomStatus) String() string {
	switch s {
	case RoomStatusInitialized:
		return "initialized"
	case RoomStatusAttaching:
		return "attaching"
	case RoomStatusAttached:
		return "attached"
	case RoomStatusDetaching:
		return "detaching"
	case RoomStatusDetached:
		return "detached"
	case RoomStatusSuspended:
		return "suspended"
	case RoomStatusFailed:
		return "failed"
	case RoomStatusReleasing:
		return "releasing"
	case RoomStatusReleased:
		return "released"
	default:
		return "unknown"
	}
}

// StatusChange is delivered to status listeners on every transition.
type StatusChange struct {
	Previous RoomStatus
	Current  RoomStatus
	Error    *ErrorInfo
}

// statusTracker is the single source of truth for a room's current status.
// It performs no transition validation; legality is the lifecycle manager's
// job. Notification is synchronous but listeners are invoked outside the
// lock, so a listener may call Set again without deadlocking.
type statusTracker struct {
	mu        sync.Mutex
	current   RoomStatus
	err       *ErrorInfo
	listeners map[int]func(StatusChange)
	nextID    int
}

func newStatusTracker() *statusTracker {
	return &statusTracker{
		current:   RoomStatusInitialized,
		listeners: make(map[int]func(StatusChange)),
	}
}

func (t *statusTracker) Current() RoomStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *statusTracker) Error() *ErrorInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Set overwrites the current status unconditionally and notifies every
// listener, including for a transition to the same value.
func (t *statusTracker) Set(status RoomStatus, err *ErrorInfo) {
	t.SetDeferred(status, err)()
}

// SetDeferred records the transition immediately but hands the listener
// notification back to the caller, for callers that must make the new
// status visible to concurrent state checks while still holding their own
// lock. The returned func is run once, after that lock is dropped.
func (t *statusTracker) SetDeferred(status RoomStatus, err *ErrorInfo) func() {
	t.mu.Lock()
	change := StatusChange{Previous: t.current, Current: status, Error: err}
	t.current = status
	t.err = err
	snapshot := make([]func(StatusChange), 0, len(t.listeners))
	for _, l := range t.listeners {
		snapshot = append(snapshot, l)
	}
	t.mu.Unlock()

	return func() {
		for _, l := range snapshot {
			l(change)
		}
	}
}

type statusSubscription struct {
	tracker *statusTracker
	id      int
}

func (s *statusSubscription) Off() {
	s.tracker.mu.Lock()
	defer s.tracker.mu.Unlock()
	delete(s.tracker.listeners, s.id)
}

// OnChange registers listener for every subsequent status change. Each
// registration is an independent subscription even for an identical
// function value.
func (t *statusTracker) OnChange(listener func(StatusChange)) Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = listener
	return &statusSubscription{tracker: t, id: id}
}

// OnChangeOnce registers listener for the next status change only.
func (t *statusTracker) OnChangeOnce(listener func(StatusChange)) Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	var once sync.Once
	t.listeners[id] = func(change StatusChange) {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
			listener(change)
		})
	}
	return &statusSubscription{tracker: t, id: id}
}
