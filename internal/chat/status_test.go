package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTracker_StartsInitialized(t *testing.T) {
	tr := newStatusTracker()
	assert.Equal(t, RoomStatusInitialized, tr.Current())
	assert.Nil(t, tr.Error())
}

func TestStatusTracker_ChangeCarriesPreviousAndError(t *testing.T) {
	tr := newStatusTracker()
	var got StatusChange
	tr.OnChange(func(change StatusChange) { got = change })

	reason := NewErrorInfo(ErrCodeRoomInFailedState, "boom")
	tr.Set(RoomStatusFailed, reason)

	assert.Equal(t, RoomStatusInitialized, got.Previous)
	assert.Equal(t, RoomStatusFailed, got.Current)
	assert.Equal(t, reason, got.Error)
	assert.Equal(t, reason, tr.Error())
}

func TestStatusTracker_DuplicateListenersAreIndependent(t *testing.T) {
	tr := newStatusTracker()
	var calls int
	listener := func(StatusChange) { calls++ }

	first := tr.OnChange(listener)
	second := tr.OnChange(listener)

	tr.Set(RoomStatusAttaching, nil)
	assert.Equal(t, 2, calls)

	first.Off()
	tr.Set(RoomStatusAttached, nil)
	assert.Equal(t, 3, calls)

	second.Off()
	tr.Set(RoomStatusDetaching, nil)
	assert.Equal(t, 3, calls)
}

func TestStatusTracker_SameValueStillEmits(t *testing.T) {
	tr := newStatusTracker()
	var calls int
	tr.OnChange(func(StatusChange) { calls++ })

	tr.Set(RoomStatusAttached, nil)
	tr.Set(RoomStatusAttached, nil)
	assert.Equal(t, 2, calls)
}

func TestStatusTracker_SetDeferredUpdatesBeforeNotifying(t *testing.T) {
	tr := newStatusTracker()
	var calls int
	tr.OnChange(func(StatusChange) { calls++ })

	reason := NewErrorInfo(ErrCodeRoomInFailedState, "boom")
	notify := tr.SetDeferred(RoomStatusFailed, reason)

	assert.Equal(t, RoomStatusFailed, tr.Current())
	assert.Equal(t, reason, tr.Error())
	assert.Zero(t, calls)

	notify()
	assert.Equal(t, 1, calls)
}

func TestStatusTracker_OnChangeOnce(t *testing.T) {
	tr := newStatusTracker()
	var calls int
	tr.OnChangeOnce(func(StatusChange) { calls++ })

	tr.Set(RoomStatusAttaching, nil)
	tr.Set(RoomStatusAttached, nil)
	assert.Equal(t, 1, calls)
}

func TestStatusTracker_OnChangeOnceCancelledBeforeFiring(t *testing.T) {
	tr := newStatusTracker()
	var calls int
	sub := tr.OnChangeOnce(func(StatusChange) { calls++ })
	sub.Off()

	tr.Set(RoomStatusAttaching, nil)
	assert.Zero(t, calls)
}

func TestStatusTracker_ListenerMayReenter(t *testing.T) {
	tr := newStatusTracker()
	var seen []RoomStatus
	tr.OnChange(func(change StatusChange) {
		seen = append(seen, change.Current)
		if change.Current == RoomStatusAttaching {
			tr.Set(RoomStatusAttached, nil)
		}
	})

	tr.Set(RoomStatusAttaching, nil)

	require.Equal(t, []RoomStatus{RoomStatusAttaching, RoomStatusAttached}, seen)
	assert.Equal(t, RoomStatusAttached, tr.Current())
}
