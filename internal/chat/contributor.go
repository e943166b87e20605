package chat

import "sync"

// Feature identifies one of the room capabilities. Each enabled feature
// contributes exactly one channel to the room lifecycle.
type Feature int

const (
	FeatureMessages Feature = iota
	FeaturePresence
	FeatureTyping
	FeatureReactions
	FeatureOccupancy
)

func (f Feature) String() string {
	switch f {
	case FeatureMessages:
		return "messages"
	case FeaturePresence:
		return "presence"
	case FeatureTyping:
		return "typing"
	case FeatureReactions:
		return "reactions"
	case FeatureOccupancy:
		return "occupancy"
	default:
		return "unknown"
	}
}

func (f Feature) attachmentErrorCode() ErrorCode {
	switch f {
	case FeaturePresence:
		return ErrCodePresenceAttachmentFailed
	case FeatureTyping:
		return ErrCodeTypingAttachmentFailed
	case FeatureReactions:
		return ErrCodeReactionsAttachmentFailed
	case FeatureOccupancy:
		return ErrCodeOccupancyAttachmentFailed
	default:
		return ErrCodeMessagesAttachmentFailed
	}
}

func (f Feature) detachmentErrorCode() ErrorCode {
	switch f {
	case FeaturePresence:
		return ErrCodePresenceDetachmentFailed
	case FeatureTyping:
		return ErrCodeTypingDetachmentFailed
	case FeatureReactions:
		return ErrCodeReactionsDetachmentFailed
	case FeatureOccupancy:
		return ErrCodeOccupancyDetachmentFailed
	default:
		return ErrCodeMessagesDetachmentFailed
	}
}

// contributor is what the lifecycle manager sees of a feature: its channel
// plus the hook it fires when a continuity gap is detected. Membership in a
// room's contributor set is fixed at construction.
type contributor interface {
	Feature() Feature
	Channel() Channel
	DiscontinuityDetected(reason *ErrorInfo)
}

// discontinuityEmitter fans a discontinuity out to feature-level handlers.
// Duplicate handler registrations are independent subscriptions, same as
// the status tracker.
type discontinuityEmitter struct {
	mu        sync.Mutex
	listeners map[int]func(*ErrorInfo)
	nextID    int
}

func newDiscontinuityEmitter() *discontinuityEmitter {
	return &discontinuityEmitter{listeners: make(map[int]func(*ErrorInfo))}
}

func (e *discontinuityEmitter) Emit(reason *ErrorInfo) {
	e.mu.Lock()
	snapshot := make([]func(*ErrorInfo), 0, len(e.listeners))
	for _, l := range e.listeners {
		snapshot = append(snapshot, l)
	}
	e.mu.Unlock()
	for _, l := range snapshot {
		l(reason)
	}
}

type discontinuitySubscription struct {
	emitter *discontinuityEmitter
	id      int
}

func (s *discontinuitySubscription) Off() {
	s.emitter.mu.Lock()
	defer s.emitter.mu.Unlock()
	delete(s.emitter.listeners, s.id)
}

func (e *discontinuityEmitter) On(listener func(*ErrorInfo)) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = listener
	return &discontinuitySubscription{emitter: e, id: id}
}

// featureClient carries the pieces every feature shares. Concrete features
// embed it and add their own operations.
type featureClient struct {
	feature Feature
	channel Channel
	disc    *discontinuityEmitter
}

func newFeatureClient(feature Feature, channel Channel) featureClient {
	return featureClient{feature: feature, channel: channel, disc: newDiscontinuityEmitter()}
}

func (f *featureClient) Feature() Feature { return f.feature }
func (f *featureClient) Channel() Channel { return f.channel }

func (f *featureClient) DiscontinuityDetected(reason *ErrorInfo) {
	f.disc.Emit(reason)
}

// OnDiscontinuity registers a handler invoked when the feature's channel
// loses continuity and dependent state should be re-synced.
func (f *featureClient) OnDiscontinuity(listener func(*ErrorInfo)) Subscription {
	return f.disc.On(listener)
}
