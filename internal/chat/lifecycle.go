package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// opWaiter is one queued attach/detach/release call waiting for the gate.
type opWaiter struct {
	release bool
	ready   chan struct{}
}

// operationGate serializes lifecycle operations on one room. Release
// requests queue ahead of attach/detach requests so a release is never
// starved; waiters of equal priority are granted in FIFO order.
type operationGate struct {
	mu      sync.Mutex
	busy    bool
	waiters []*opWaiter
}

func (g *operationGate) acquire(ctx context.Context, release bool) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		return nil
	}
	w := &opWaiter{release: release, ready: make(chan struct{})}
	if release {
		idx := 0
		for idx < len(g.waiters) && g.waiters[idx].release {
			idx++
		}
		g.waiters = append(g.waiters, nil)
		copy(g.waiters[idx+1:], g.waiters[idx:])
		g.waiters[idx] = w
	} else {
		g.waiters = append(g.waiters, w)
	}
	g.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, q := range g.waiters {
			if q == w {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The gate was handed to us while we were cancelling; pass it on.
		g.release()
		return ctx.Err()
	}
}

func (g *operationGate) release() {
	g.mu.Lock()
	if len(g.waiters) > 0 {
		w := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.mu.Unlock()
		close(w.ready)
		return
	}
	g.busy = false
	g.mu.Unlock()
}

// opResult lets a second caller await an in-flight attach or detach
// instead of queuing a redundant operation of its own.
type opResult struct {
	done chan struct{}
	err  error
}

// lifecycleManager orchestrates attach, detach and release across a room's
// contributors, derives the aggregate RoomStatus, and recovers from
// transient and non-transient channel outages. One instance per room.
type lifecycleManager struct {
	logger           zerolog.Logger
	status           *statusTracker
	contributors     []contributor
	transientTimeout time.Duration
	retryInterval    time.Duration

	gate operationGate

	mu                    sync.Mutex
	opInProgress          bool
	recovering            bool
	intentionallyDetached bool
	firstAttach           map[Feature]bool
	transientTimers       map[Feature]*time.Timer
	pendingDiscontinuity  map[Feature]*ErrorInfo
	inflightAttach        *opResult
	inflightDetach        *opResult
	subs                  []Subscription

	releaseOnce sync.Once
	releaseCh   chan struct{}
}

func newLifecycleManager(
	status *statusTracker,
	contributors []contributor,
	logger zerolog.Logger,
	transientTimeout time.Duration,
	retryInterval time.Duration,
) *lifecycleManager {
	m := &lifecycleManager{
		logger:               logger,
		status:               status,
		contributors:         contributors,
		transientTimeout:     transientTimeout,
		retryInterval:        retryInterval,
		firstAttach:          make(map[Feature]bool),
		transientTimers:      make(map[Feature]*time.Timer),
		pendingDiscontinuity: make(map[Feature]*ErrorInfo),
		releaseCh:            make(chan struct{}),
	}
	for _, c := range contributors {
		c := c
		m.subs = append(m.subs, c.Channel().On(func(sc ChannelStateChange) {
			m.handleStateChange(c, sc)
		}))
		m.subs = append(m.subs, c.Channel().OnUpdate(func(sc ChannelStateChange) {
			m.handleUpdate(c, sc)
		}))
	}
	return m
}

// Attach drives every contributor to attached, in construction order. On
// the first contributor failure the already-attached contributors are
// rolled back and the call rejects with the failing feature's error.
func (m *lifecycleManager) Attach(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkAttachableLocked(); err != nil {
		m.mu.Unlock()
		if err == errAlreadyInTarget {
			return nil
		}
		return err
	}
	if r := m.inflightAttach; r != nil {
		m.mu.Unlock()
		select {
		case <-r.done:
			return r.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Unlock()

	if err := m.gate.acquire(ctx, false); err != nil {
		return err
	}
	defer m.gate.release()

	m.mu.Lock()
	if err := m.checkAttachableLocked(); err != nil {
		m.mu.Unlock()
		if err == errAlreadyInTarget {
			return nil
		}
		return err
	}
	res := &opResult{done: make(chan struct{})}
	m.inflightAttach = res
	m.opInProgress = true
	m.intentionallyDetached = false
	m.clearTransientTimersLocked()
	m.mu.Unlock()

	m.status.Set(RoomStatusAttaching, nil)
	_, target, attachErr := m.attachAll(ctx)

	m.mu.Lock()
	m.opInProgress = false
	m.inflightAttach = nil
	var pending []queuedDiscontinuity
	if attachErr == nil {
		pending = m.takePendingLocked()
	}
	m.mu.Unlock()

	if attachErr == nil {
		m.status.Set(RoomStatusAttached, nil)
		m.dispatchDiscontinuities(pending)
		res.err = nil
		close(res.done)
		return nil
	}
	m.status.Set(target, attachErr)
	res.err = attachErr
	close(res.done)
	return attachErr
}

// errAlreadyInTarget signals that the operation is a no-op because the room
// already holds the target status. Never escapes the package.
var errAlreadyInTarget = fmt.Errorf("already in target state")

func (m *lifecycleManager) checkAttachableLocked() error {
	switch m.status.Current() {
	case RoomStatusAttached:
		return errAlreadyInTarget
	case RoomStatusReleasing:
		return NewErrorInfo(ErrCodeRoomIsReleasing, "cannot attach room: room is releasing")
	case RoomStatusReleased:
		return NewErrorInfo(ErrCodeRoomIsReleased, "cannot attach room: room is released")
	case RoomStatusFailed:
		return NewErrorInfo(ErrCodeRoomInFailedState, "cannot attach room: room is in a failed state")
	}
	return nil
}

// attachAll runs the sequential attach protocol shared by Attach and the
// recovery loop. It returns the failing contributor, the room status the
// operation should commit, and the error to surface; all nil/Attached on
// success. Rollback of previously attached contributors happens here.
func (m *lifecycleManager) attachAll(ctx context.Context) (contributor, RoomStatus, *ErrorInfo) {
	for i, c := range m.contributors {
		err := c.Channel().Attach(ctx)
		if err == nil {
			m.mu.Lock()
			m.firstAttach[c.Feature()] = true
			m.mu.Unlock()
			continue
		}

		attachErr := WrapError(c.Feature().attachmentErrorCode(),
			fmt.Sprintf("failed to attach %s feature", c.Feature()), err)
		var target RoomStatus
		switch state := c.Channel().State(); state {
		case ChannelStateSuspended:
			// A suspended channel mid-attach always resolves to detached
			// for cleanup purposes; the room itself surfaces Suspended.
			if derr := c.Channel().Detach(ctx); derr != nil {
				m.logger.Warn().Err(derr).Str("feature", c.Feature().String()).
					Msg("failed to settle suspended channel into detached")
			}
			target = RoomStatusSuspended
		case ChannelStateFailed:
			target = RoomStatusFailed
		case ChannelStateDetached:
			target = RoomStatusDetached
		default:
			attachErr = WrapError(ErrCodeInternal,
				fmt.Sprintf("unexpected channel state %q after failed attach of %s feature", state, c.Feature()), err)
			target = RoomStatusFailed
		}

		// Roll back everything else that reached a live state. A rollback
		// failure escalates the target status but the original error is
		// still what gets surfaced.
		for j, other := range m.contributors {
			if j == i {
				continue
			}
			switch other.Channel().State() {
			case ChannelStateDetached, ChannelStateInitialized, ChannelStateSuspended, ChannelStateFailed:
				continue
			}
			if derr := other.Channel().Detach(ctx); derr != nil {
				target = RoomStatusFailed
				m.logger.Error().Err(derr).Str("feature", other.Feature().String()).
					Msg("rollback detach failed")
			}
		}
		return c, target, attachErr
	}
	return nil, RoomStatusAttached, nil
}

// Detach drives every contributor to detached. A contributor whose detach
// fails transiently is retried on the next pass; a contributor whose
// channel has failed is skipped and downgrades the final status to Failed.
func (m *lifecycleManager) Detach(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkDetachableLocked(); err != nil {
		m.mu.Unlock()
		if err == errAlreadyInTarget {
			return nil
		}
		return err
	}
	if r := m.inflightDetach; r != nil {
		m.mu.Unlock()
		select {
		case <-r.done:
			return r.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Unlock()

	if err := m.gate.acquire(ctx, false); err != nil {
		return err
	}
	defer m.gate.release()

	m.mu.Lock()
	if err := m.checkDetachableLocked(); err != nil {
		m.mu.Unlock()
		if err == errAlreadyInTarget {
			return nil
		}
		return err
	}
	res := &opResult{done: make(chan struct{})}
	m.inflightDetach = res
	m.opInProgress = true
	m.intentionallyDetached = true
	m.clearTransientTimersLocked()
	m.mu.Unlock()

	m.status.Set(RoomStatusDetaching, nil)
	detachErr := m.detachAll(ctx)

	m.mu.Lock()
	m.opInProgress = false
	m.inflightDetach = nil
	m.mu.Unlock()

	if detachErr == nil {
		m.status.Set(RoomStatusDetached, nil)
	} else {
		m.status.Set(RoomStatusFailed, detachErr)
	}
	res.err = errOrNil(detachErr)
	close(res.done)
	return errOrNil(detachErr)
}

func errOrNil(err *ErrorInfo) error {
	if err == nil {
		return nil
	}
	return err
}

func (m *lifecycleManager) checkDetachableLocked() error {
	switch m.status.Current() {
	case RoomStatusDetached:
		return errAlreadyInTarget
	case RoomStatusReleasing:
		return NewErrorInfo(ErrCodeRoomIsReleasing, "cannot detach room: room is releasing")
	case RoomStatusReleased:
		return NewErrorInfo(ErrCodeRoomIsReleased, "cannot detach room: room is released")
	case RoomStatusFailed:
		return NewErrorInfo(ErrCodeRoomInFailedState, "cannot detach room: room is in a failed state")
	}
	return nil
}

// detachAll gives every contributor a detach attempt per pass and keeps
// retrying the stragglers until they detach. Channels that have failed are
// not retried; the first such failure becomes the surfaced error.
func (m *lifecycleManager) detachAll(ctx context.Context) *ErrorInfo {
	pending := make(map[int]bool, len(m.contributors))
	for i := range m.contributors {
		pending[i] = true
	}
	var firstErr *ErrorInfo

	for len(pending) > 0 {
		for i, c := range m.contributors {
			if !pending[i] {
				continue
			}
			switch c.Channel().State() {
			case ChannelStateDetached, ChannelStateInitialized:
				delete(pending, i)
				continue
			case ChannelStateFailed:
				if firstErr == nil {
					firstErr = WrapError(c.Feature().detachmentErrorCode(),
						fmt.Sprintf("failed to detach %s feature", c.Feature()), errOrNil(c.Channel().ErrorReason()))
				}
				delete(pending, i)
				continue
			}
			err := c.Channel().Detach(ctx)
			if err == nil {
				delete(pending, i)
				continue
			}
			if c.Channel().State() == ChannelStateFailed {
				if firstErr == nil {
					firstErr = WrapError(c.Feature().detachmentErrorCode(),
						fmt.Sprintf("failed to detach %s feature", c.Feature()), err)
				}
				delete(pending, i)
				continue
			}
			m.logger.Warn().Err(err).Str("feature", c.Feature().String()).
				Msg("transient detach failure, will retry")
		}
		if len(pending) == 0 {
			break
		}
		select {
		case <-time.After(m.retryInterval):
		case <-ctx.Done():
			if firstErr == nil {
				for i, c := range m.contributors {
					if pending[i] {
						firstErr = WrapError(c.Feature().detachmentErrorCode(),
							fmt.Sprintf("detach of %s feature abandoned", c.Feature()), ctx.Err())
						break
					}
				}
			}
			return firstErr
		}
	}
	return firstErr
}

// Release permanently tears the room down. It retries the detach cycle on
// a fixed interval until a full pass succeeds; contributors whose channels
// have failed are skipped rather than retried. Release only errors when
// the caller's context is cancelled.
func (m *lifecycleManager) Release(ctx context.Context) error {
	if m.status.Current() == RoomStatusReleased {
		return nil
	}
	m.requestRelease()

	if err := m.gate.acquire(ctx, true); err != nil {
		return err
	}
	defer m.gate.release()

	switch m.status.Current() {
	case RoomStatusReleased:
		return nil
	case RoomStatusInitialized, RoomStatusDetached:
		// Nothing attached; no detach cycle needed.
		m.status.Set(RoomStatusReleased, nil)
		m.unsubscribeChannels()
		return nil
	}

	m.mu.Lock()
	m.opInProgress = true
	m.intentionallyDetached = true
	m.clearTransientTimersLocked()
	m.mu.Unlock()

	m.status.Set(RoomStatusReleasing, nil)

	pass := func() (struct{}, error) {
		for _, c := range m.contributors {
			switch c.Channel().State() {
			case ChannelStateFailed, ChannelStateDetached, ChannelStateInitialized:
				continue
			}
			if err := c.Channel().Detach(ctx); err != nil {
				if c.Channel().State() == ChannelStateFailed {
					continue
				}
				m.logger.Warn().Err(err).Str("feature", c.Feature().String()).
					Msg("release detach pass failed, retrying")
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, pass, backoff.WithBackOff(backoff.NewConstantBackOff(m.retryInterval)))

	m.mu.Lock()
	m.opInProgress = false
	m.mu.Unlock()

	if err != nil {
		// Only a cancelled context lands here; the room stays Releasing.
		return err
	}
	m.status.Set(RoomStatusReleased, nil)
	m.unsubscribeChannels()
	return nil
}

func (m *lifecycleManager) requestRelease() {
	m.releaseOnce.Do(func() { close(m.releaseCh) })
}

func (m *lifecycleManager) releaseRequested() bool {
	select {
	case <-m.releaseCh:
		return true
	default:
		return false
	}
}

func (m *lifecycleManager) unsubscribeChannels() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()
	for _, s := range subs {
		s.Off()
	}
}

// handleStateChange reacts to ambient contributor lifecycle events. While
// an orchestrated operation is in progress these are ignored for status
// purposes; discontinuity signals are still recorded.
func (m *lifecycleManager) handleStateChange(c contributor, sc ChannelStateChange) {
	var (
		dispatch      *ErrorInfo
		notifyFailed  func()
		startRecovery bool
	)

	m.mu.Lock()
	if sc.Current == ChannelStateAttached && !sc.Resumed &&
		m.firstAttach[c.Feature()] && !m.intentionallyDetached {
		reason := m.discontinuityReason(c, sc.Reason)
		if m.opInProgress {
			if _, ok := m.pendingDiscontinuity[c.Feature()]; !ok {
				m.pendingDiscontinuity[c.Feature()] = reason
			}
		} else {
			dispatch = reason
		}
	}

	if m.opInProgress {
		m.mu.Unlock()
		return
	}

	switch m.status.Current() {
	case RoomStatusFailed, RoomStatusReleasing, RoomStatusReleased:
		m.mu.Unlock()
		if dispatch != nil {
			c.DiscontinuityDetected(dispatch)
		}
		return
	}

	switch sc.Current {
	case ChannelStateAttached:
		if t, ok := m.transientTimers[c.Feature()]; ok {
			t.Stop()
			delete(m.transientTimers, c.Feature())
		}
	case ChannelStateFailed:
		m.clearTransientTimersLocked()
		// The terminal status must be in place before m.mu drops, so an
		// attach racing with this event is rejected rather than layered
		// on top of the failure. Listeners are notified after unlock.
		notifyFailed = m.status.SetDeferred(RoomStatusFailed,
			WrapError(c.Feature().attachmentErrorCode(),
				fmt.Sprintf("%s feature failed", c.Feature()), errOrNil(sc.Reason)))
	case ChannelStateSuspended:
		// Suspension gets no grace period.
		startRecovery = m.beginRecoveryLocked()
	case ChannelStateDetached:
		if _, ok := m.transientTimers[c.Feature()]; !ok {
			reason := sc.Reason
			m.transientTimers[c.Feature()] = time.AfterFunc(m.transientTimeout, func() {
				m.transientTimerFired(c, reason)
			})
		}
	}
	m.mu.Unlock()

	if dispatch != nil {
		c.DiscontinuityDetected(dispatch)
	}
	if notifyFailed != nil {
		notifyFailed()
		go m.detachOthersAfterFailure(c)
	}
	if startRecovery {
		go m.recoveryLoop(c, sc.Reason)
	}
}

// handleUpdate reacts to update events: a resume notification on a channel
// that stayed attached. A failed resume is a discontinuity.
func (m *lifecycleManager) handleUpdate(c contributor, sc ChannelStateChange) {
	if sc.Resumed || sc.Current != ChannelStateAttached || sc.Previous != ChannelStateAttached {
		return
	}
	m.mu.Lock()
	if !m.firstAttach[c.Feature()] {
		m.mu.Unlock()
		return
	}
	reason := m.discontinuityReason(c, sc.Reason)
	if m.opInProgress {
		if _, ok := m.pendingDiscontinuity[c.Feature()]; !ok {
			m.pendingDiscontinuity[c.Feature()] = reason
		}
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	c.DiscontinuityDetected(reason)
}

func (m *lifecycleManager) discontinuityReason(c contributor, reason *ErrorInfo) *ErrorInfo {
	if reason != nil {
		return reason
	}
	return NewErrorInfo(c.Feature().attachmentErrorCode(),
		fmt.Sprintf("discontinuity detected on %s feature", c.Feature()))
}

func (m *lifecycleManager) transientTimerFired(c contributor, reason *ErrorInfo) {
	m.mu.Lock()
	delete(m.transientTimers, c.Feature())
	if m.opInProgress {
		m.mu.Unlock()
		return
	}
	if c.Channel().State() == ChannelStateAttached {
		m.mu.Unlock()
		return
	}
	switch m.status.Current() {
	case RoomStatusFailed, RoomStatusReleasing, RoomStatusReleased:
		m.mu.Unlock()
		return
	}
	started := m.beginRecoveryLocked()
	m.mu.Unlock()
	if started {
		m.recoveryLoop(c, reason)
	}
}

// beginRecoveryLocked claims the recovery slot. Only one recovery runs at a
// time; a contributor failing while another recovery is active is absorbed
// by that recovery's next attach cycle (first detected wins).
func (m *lifecycleManager) beginRecoveryLocked() bool {
	if m.opInProgress || m.recovering || m.releaseRequested() {
		return false
	}
	m.recovering = true
	m.clearTransientTimersLocked()
	return true
}

// recoveryLoop is the non-transient outage handler: surface the outage via
// room status, detach everything else, wait for the offending channel to
// come back, then re-run the attach sequence. A failed re-attach makes the
// new offender the subject of the next cycle. Runs until the room reaches
// Attached or Failed, or a release takes over.
func (m *lifecycleManager) recoveryLoop(offending contributor, cause *ErrorInfo) {
	if err := m.gate.acquire(context.Background(), false); err != nil {
		m.mu.Lock()
		m.recovering = false
		m.mu.Unlock()
		return
	}
	defer m.gate.release()
	// Registered after the gate defer so it runs before the gate is handed
	// to a queued operation; that operation's opInProgress must not be
	// reset underneath it.
	defer func() {
		m.mu.Lock()
		m.recovering = false
		m.opInProgress = false
		m.mu.Unlock()
	}()

	m.mu.Lock()
	if m.intentionallyDetached {
		// An explicit detach won the gate while this recovery was queued;
		// the outage it was handling is moot.
		m.mu.Unlock()
		return
	}
	m.opInProgress = true
	m.mu.Unlock()

	ctx := context.Background()
	wait := backoff.NewExponentialBackOff()
	first := true

	for {
		if m.releaseRequested() {
			return
		}
		m.mu.Lock()
		superseded := m.intentionallyDetached
		m.mu.Unlock()
		if superseded {
			return
		}
		switch m.status.Current() {
		case RoomStatusReleasing, RoomStatusReleased, RoomStatusFailed:
			return
		}

		state := offending.Channel().State()
		if state == ChannelStateFailed {
			m.status.Set(RoomStatusFailed, m.failureReason(offending, cause))
			return
		}
		if state != ChannelStateAttached {
			if first {
				m.status.Set(roomStatusForChannel(state), cause)
			}
			for _, other := range m.contributors {
				if other == offending {
					continue
				}
				switch other.Channel().State() {
				case ChannelStateDetached, ChannelStateInitialized, ChannelStateFailed:
					continue
				}
				if err := other.Channel().Detach(ctx); err != nil {
					m.logger.Warn().Err(err).Str("feature", other.Feature().String()).
						Msg("best-effort detach during recovery failed")
				}
			}
			recovered, ok := m.waitForAttachedOrFailed(offending)
			if !ok {
				return
			}
			if recovered == ChannelStateFailed {
				m.status.Set(RoomStatusFailed, m.failureReason(offending, cause))
				return
			}
		}
		first = false

		failing, target, err := m.attachAll(ctx)
		if err == nil {
			m.mu.Lock()
			pending := m.takePendingLocked()
			m.mu.Unlock()
			m.status.Set(RoomStatusAttached, nil)
			m.dispatchDiscontinuities(pending)
			return
		}
		offending, cause = failing, err
		m.status.Set(target, err)
		if target == RoomStatusFailed {
			return
		}

		select {
		case <-time.After(wait.NextBackOff()):
		case <-m.releaseCh:
			return
		}
	}
}

// waitForAttachedOrFailed blocks until the contributor's channel reaches
// attached or failed. The second return is false if a release request
// aborted the wait.
func (m *lifecycleManager) waitForAttachedOrFailed(c contributor) (ChannelState, bool) {
	done := make(chan ChannelState, 1)
	sub := c.Channel().On(func(sc ChannelStateChange) {
		if sc.Current == ChannelStateAttached || sc.Current == ChannelStateFailed {
			select {
			case done <- sc.Current:
			default:
			}
		}
	})
	defer sub.Off()

	if s := c.Channel().State(); s == ChannelStateAttached || s == ChannelStateFailed {
		return s, true
	}
	select {
	case s := <-done:
		return s, true
	case <-m.releaseCh:
		return "", false
	}
}

func (m *lifecycleManager) failureReason(c contributor, fallback *ErrorInfo) *ErrorInfo {
	cause := errOrNil(c.Channel().ErrorReason())
	if cause == nil {
		cause = errOrNil(fallback)
	}
	return WrapError(c.Feature().attachmentErrorCode(),
		fmt.Sprintf("%s feature failed", c.Feature()), cause)
}

// detachOthersAfterFailure best-effort detaches the rest of the room after
// one contributor failed terminally. Errors are logged only.
func (m *lifecycleManager) detachOthersAfterFailure(failed contributor) {
	if err := m.gate.acquire(context.Background(), false); err != nil {
		return
	}
	defer m.gate.release()
	for _, other := range m.contributors {
		if other == failed {
			continue
		}
		switch other.Channel().State() {
		case ChannelStateDetached, ChannelStateInitialized, ChannelStateFailed:
			continue
		}
		if err := other.Channel().Detach(context.Background()); err != nil {
			m.logger.Warn().Err(err).Str("feature", other.Feature().String()).
				Msg("best-effort detach after failure")
		}
	}
}

func roomStatusForChannel(state ChannelState) RoomStatus {
	if state == ChannelStateSuspended {
		return RoomStatusSuspended
	}
	return RoomStatusDetached
}

func (m *lifecycleManager) clearTransientTimersLocked() {
	for f, t := range m.transientTimers {
		t.Stop()
		delete(m.transientTimers, f)
	}
}

type queuedDiscontinuity struct {
	contributor contributor
	reason      *ErrorInfo
}

// takePendingLocked drains the queued discontinuities in contributor order.
func (m *lifecycleManager) takePendingLocked() []queuedDiscontinuity {
	if len(m.pendingDiscontinuity) == 0 {
		return nil
	}
	out := make([]queuedDiscontinuity, 0, len(m.pendingDiscontinuity))
	for _, c := range m.contributors {
		if reason, ok := m.pendingDiscontinuity[c.Feature()]; ok {
			out = append(out, queuedDiscontinuity{contributor: c, reason: reason})
		}
	}
	m.pendingDiscontinuity = make(map[Feature]*ErrorInfo)
	return out
}

func (m *lifecycleManager) dispatchDiscontinuities(pending []queuedDiscontinuity) {
	for _, q := range pending {
		q.contributor.DiscontinuityDetected(q.reason)
	}
}
